package dsl

import "github.com/aretw0/espalier/pkg/domain"

// StateBuilder provides a fluent API for configuring a state.
type StateBuilder struct {
	state       domain.State
	transitions []*TransitionBuilder
	builder     *Builder
}

// Entry sets the action run when the state is entered.
func (s *StateBuilder) Entry(action string) *StateBuilder {
	s.state.Entry = action
	return s
}

// Exit sets the action run when the state is left.
func (s *StateBuilder) Exit(action string) *StateBuilder {
	s.state.Exit = action
	return s
}

// On adds a transition to target, fired by event.
func (s *StateBuilder) On(event, target string) *TransitionBuilder {
	tb := &TransitionBuilder{
		transition: domain.Transition{Event: event, Target: target},
		state:      s,
	}
	s.transitions = append(s.transitions, tb)
	return tb
}

// Terminal removes every outgoing transition (end of the lifecycle).
func (s *StateBuilder) Terminal() *StateBuilder {
	s.transitions = nil
	return s
}

// Build returns the underlying domain.State.
// This is primarily used by the Builder, but exposed for advanced usage.
func (s *StateBuilder) Build() domain.State {
	st := s.state
	st.On = make([]domain.Transition, 0, len(s.transitions))
	for _, tb := range s.transitions {
		st.On = append(st.On, tb.transition)
	}
	return st
}

// TransitionBuilder configures one transition.
type TransitionBuilder struct {
	transition domain.Transition
	state      *StateBuilder
}

// Guard names the guard that must hold.
func (t *TransitionBuilder) Guard(name string) *TransitionBuilder {
	t.transition.Guard = name
	return t
}

// Action names the action run between exit and entry.
func (t *TransitionBuilder) Action(name string) *TransitionBuilder {
	t.transition.Action = name
	return t
}

// With adds a static data value merged into the context before the guard runs.
func (t *TransitionBuilder) With(key string, value any) *TransitionBuilder {
	if t.transition.StaticData == nil {
		t.transition.StaticData = make(domain.Context)
	}
	t.transition.StaticData[key] = value
	return t
}

// On adds another transition to the same state.
func (t *TransitionBuilder) On(event, target string) *TransitionBuilder {
	return t.state.On(event, target)
}
