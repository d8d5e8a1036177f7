package validator

import (
	"github.com/aretw0/espalier/pkg/domain"
)

// Report carries the non-fatal findings of a successful validation.
type Report struct {
	// Unreachable lists, in declaration order, the states that cannot be reached
	// from the initial state.
	Unreachable []string
}

// Validate checks the structure and reference integrity of spec.
// It stops at the first violation, walking states in declaration order and each
// state's transitions in declaration order. On success it scans the transition
// graph breadth-first from the initial state and reports unreachable states.
//
// Validate never mutates spec and may be called any number of times.
func Validate(spec *domain.Specification) (*Report, error) {
	if spec.ID == "" {
		return nil, &domain.SpecError{Reason: "empty id"}
	}
	if spec.ContextSchema == nil {
		return nil, &domain.SpecError{SpecID: spec.ID, Reason: "missing context schema"}
	}
	for _, field := range spec.ContextSchema.Fields() {
		if spec.ContextSchema[field] == nil {
			return nil, &domain.SpecError{SpecID: spec.ID, Reason: "nil field type: " + field}
		}
	}

	g := spec.Graph()
	start, ok := g.Index(spec.InitialState)
	if !ok {
		return nil, &domain.InvalidStateError{State: spec.InitialState}
	}

	seenStates := make(map[string]bool, len(spec.States))
	for _, st := range spec.States {
		if seenStates[st.Name] {
			return nil, &domain.SpecError{SpecID: spec.ID, Reason: "duplicate state", State: st.Name}
		}
		seenStates[st.Name] = true

		if err := checkAction(spec, st.Entry); err != nil {
			return nil, err
		}
		if err := checkAction(spec, st.Exit); err != nil {
			return nil, err
		}

		seenEvents := make(map[string]bool, len(st.On))
		for _, t := range st.On {
			if seenEvents[t.Event] {
				return nil, &domain.SpecError{SpecID: spec.ID, Reason: "duplicate event", State: st.Name, Event: t.Event}
			}
			seenEvents[t.Event] = true

			if _, ok := g.Index(t.Target); !ok {
				return nil, &domain.SpecError{
					SpecID: spec.ID,
					Reason: "unknown target",
					State:  st.Name,
					Event:  t.Event,
					Target: t.Target,
				}
			}
			if t.Guard != "" {
				if _, ok := spec.Guard(t.Guard); !ok {
					return nil, &domain.GuardNotFoundError{Guard: t.Guard}
				}
			}
			if err := checkAction(spec, t.Action); err != nil {
				return nil, err
			}
		}
	}

	report := &Report{}
	for i, reached := range g.Reachable(start) {
		if !reached {
			report.Unreachable = append(report.Unreachable, g.Name(i))
		}
	}
	return report, nil
}

func checkAction(spec *domain.Specification, name string) error {
	if name == "" {
		return nil
	}
	if _, ok := spec.Action(name); !ok {
		return &domain.ActionNotFoundError{Action: name}
	}
	return nil
}
