package domain

import (
	"sort"

	"github.com/aretw0/espalier/pkg/schema"
)

// Guard is a side-effect-free predicate gating a transition.
// It observes the merged context (stored context overlaid with command data).
type Guard func(ctx Context) bool

// Action is a pure context transformer invoked on exit, on transition or on entry.
// It receives a private copy of the context and returns the replacement.
type Action func(ctx Context) Context

// Transition is an event-keyed edge leaving a state.
type Transition struct {
	Event  string `json:"event" yaml:"event"`
	Target string `json:"target" yaml:"target"`

	// Guard names an entry of Specification.Guards that must hold for the edge to fire.
	Guard string `json:"guard,omitempty" yaml:"guard,omitempty"`

	// Action names an entry of Specification.Actions run between the exit and entry actions.
	Action string `json:"action,omitempty" yaml:"action,omitempty"`

	// StaticData is merged into the working context before the guard runs.
	// Command data takes precedence over it.
	StaticData Context `json:"static_data,omitempty" yaml:"data,omitempty"`
}

// State is one named state of a Specification.
type State struct {
	Name string `json:"name" yaml:"name"`

	// On lists the outgoing transitions in declaration order. Events are unique per state.
	On []Transition `json:"on,omitempty" yaml:"on,omitempty"`

	Entry string `json:"entry,omitempty" yaml:"entry,omitempty"`
	Exit  string `json:"exit,omitempty" yaml:"exit,omitempty"`
}

// Transition returns the outgoing transition registered for event.
func (s *State) Transition(event string) (Transition, bool) {
	for _, t := range s.On {
		if t.Event == event {
			return t, true
		}
	}
	return Transition{}, false
}

// Events lists the events accepted by the state, in declaration order.
func (s *State) Events() []string {
	events := make([]string, 0, len(s.On))
	for _, t := range s.On {
		events = append(events, t.Event)
	}
	return events
}

// Terminal reports whether the state has no outgoing transitions.
func (s *State) Terminal() bool {
	return len(s.On) == 0
}

// Specification is the static definition of one entity type's lifecycle.
// It must not be modified after it has been sealed by a registry.
type Specification struct {
	ID            string        `json:"id" yaml:"id"`
	ContextSchema schema.Schema `json:"context_schema" yaml:"context"`
	InitialState  string        `json:"initial_state" yaml:"initial"`
	States        []State       `json:"states" yaml:"states"`

	Guards  map[string]Guard  `json:"-" yaml:"-"`
	Actions map[string]Action `json:"-" yaml:"-"`

	graph *Graph
}

// Seal freezes the specification and builds its state index.
// Calling Seal more than once is a no-op. It is not safe to call concurrently;
// registries seal specifications before publishing them.
func (s *Specification) Seal() {
	if s.graph == nil {
		s.graph = NewGraph(s)
	}
}

// Sealed reports whether Seal has been called.
func (s *Specification) Sealed() bool {
	return s.graph != nil
}

// Graph returns the state graph, building a fresh one if the specification is not sealed.
func (s *Specification) Graph() *Graph {
	if s.graph != nil {
		return s.graph
	}
	return NewGraph(s)
}

// State looks up a state by name.
func (s *Specification) State(name string) (*State, bool) {
	if s.graph != nil {
		i, ok := s.graph.Index(name)
		if !ok {
			return nil, false
		}
		return &s.States[i], true
	}
	for i := range s.States {
		if s.States[i].Name == name {
			return &s.States[i], true
		}
	}
	return nil, false
}

// StateNames lists the state names in declaration order.
func (s *Specification) StateNames() []string {
	names := make([]string, 0, len(s.States))
	for _, st := range s.States {
		names = append(names, st.Name)
	}
	return names
}

// GuardNames lists the registered guard names, sorted.
func (s *Specification) GuardNames() []string {
	return sortedKeys(s.Guards)
}

// ActionNames lists the registered action names, sorted.
func (s *Specification) ActionNames() []string {
	return sortedKeys(s.Actions)
}

// Guard resolves a guard by name. Nil entries count as missing.
func (s *Specification) Guard(name string) (Guard, bool) {
	g, ok := s.Guards[name]
	return g, ok && g != nil
}

// Action resolves an action by name. Nil entries count as missing.
func (s *Specification) Action(name string) (Action, bool) {
	a, ok := s.Actions[name]
	return a, ok && a != nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
