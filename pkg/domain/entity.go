package domain

import "time"

// EntityState is the persisted snapshot of one entity.
type EntityState struct {
	ID         string  `json:"id"`
	EntityType string  `json:"entity_type"`
	StateName  string  `json:"state_name"`
	Context    Context `json:"context"`

	// Version increases by exactly one per successful command. A synthesized,
	// never-persisted state has version 0.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntityState synthesizes the implicit first observation of an entity.
func NewEntityState(entityType, entityID, initialState string, now time.Time) *EntityState {
	return &EntityState{
		ID:         entityID,
		EntityType: entityType,
		StateName:  initialState,
		Context:    Context{},
		Version:    0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a copy that shares nothing mutable with s.
func (s *EntityState) Clone() *EntityState {
	if s == nil {
		return nil
	}
	next := *s
	next.Context = s.Context.Clone()
	return &next
}

// Command is one request to move an entity along its lifecycle.
type Command struct {
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	Event      string  `json:"event"`
	Data       Context `json:"data,omitempty"`
	Actor      string  `json:"actor,omitempty"`
}

// TransitionResult describes a successful, schema-valid transition.
type TransitionResult struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Event      string    `json:"event"`
	OldContext Context   `json:"old_context"`
	NewContext Context   `json:"new_context"`
	Timestamp  time.Time `json:"timestamp"`
}

// Changes returns the context keys that were added, modified or removed.
// Removed keys are present with a nil value.
func (r *TransitionResult) Changes() Context {
	return ContextDelta(r.OldContext, r.NewContext)
}

// Verdict is the outcome of a dry-run transition check.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Target  string `json:"target,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// Filter narrows entity listings.
type Filter struct {
	// State keeps only entities currently in the named state.
	State string `json:"state,omitempty"`

	// Limit caps the number of results; zero or negative means unlimited.
	Limit int `json:"limit,omitempty"`

	Offset int `json:"offset,omitempty"`
}

// Matches reports whether s satisfies the filter's predicates (paging aside).
func (f Filter) Matches(s *EntityState) bool {
	return f.State == "" || s.StateName == f.State
}

// Page applies Offset and Limit to an already ordered slice.
func Page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
