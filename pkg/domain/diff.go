package domain

import (
	"reflect"
)

// StateDiff represents the changes between two snapshots of the same entity.
// It is designed to be serialized to JSON for partial updates on a client.
type StateDiff struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`

	StateName *string `json:"state_name,omitempty"`
	Version   *int64  `json:"version,omitempty"`

	// Context contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Context Context `json:"context,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
// It returns nil when nothing changed.
func Diff(oldState, newState *EntityState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{
		EntityType: newState.EntityType,
		EntityID:   newState.ID,
	}

	if oldState == nil || oldState.StateName != newState.StateName {
		diff.StateName = &newState.StateName
	}
	if oldState == nil || oldState.Version != newState.Version {
		diff.Version = &newState.Version
	}

	var oldContext Context
	if oldState != nil {
		oldContext = oldState.Context
	}
	diff.Context = ContextDelta(oldContext, newState.Context)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// ContextDelta returns the keys of next that are new or differ from prev,
// plus the keys of prev missing from next mapped to nil.
// It returns nil when the contexts are equal.
func ContextDelta(prev, next Context) Context {
	delta := make(Context)

	for k, newVal := range next {
		oldVal, exists := prev[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range prev {
		if _, exists := next[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.StateName == nil &&
		d.Version == nil &&
		len(d.Context) == 0
}
