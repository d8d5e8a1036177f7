package dsl

import (
	"fmt"

	"github.com/aretw0/espalier/internal/validator"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/schema"
)

// Builder manages the specification construction.
type Builder struct {
	spec   domain.Specification
	states []*StateBuilder
	index  map[string]*StateBuilder
}

// New creates a new specification builder for the entity type id.
func New(id string) *Builder {
	return &Builder{
		spec: domain.Specification{
			ID:            id,
			ContextSchema: schema.Schema{},
			Guards:        make(map[string]domain.Guard),
			Actions:       make(map[string]domain.Action),
		},
		index: make(map[string]*StateBuilder),
	}
}

// Schema replaces the context schema.
func (b *Builder) Schema(s schema.Schema) *Builder {
	b.spec.ContextSchema = s
	return b
}

// Field adds one field to the context schema.
func (b *Builder) Field(name string, t schema.Type) *Builder {
	if b.spec.ContextSchema == nil {
		b.spec.ContextSchema = schema.Schema{}
	}
	b.spec.ContextSchema[name] = t
	return b
}

// Initial sets the initial state. It defaults to the first declared state.
func (b *Builder) Initial(state string) *Builder {
	b.spec.InitialState = state
	return b
}

// Guard registers a named guard.
func (b *Builder) Guard(name string, fn domain.Guard) *Builder {
	b.spec.Guards[name] = fn
	return b
}

// Action registers a named action.
func (b *Builder) Action(name string, fn domain.Action) *Builder {
	b.spec.Actions[name] = fn
	return b
}

// State creates a new state in the specification.
// If the state already exists, it returns the existing builder.
// States keep the order of their first declaration.
func (b *Builder) State(name string) *StateBuilder {
	if sb, ok := b.index[name]; ok {
		return sb
	}
	sb := &StateBuilder{
		state:   domain.State{Name: name},
		builder: b,
	}
	b.index[name] = sb
	b.states = append(b.states, sb)
	return sb
}

// Build assembles and validates the specification.
func (b *Builder) Build() (*domain.Specification, error) {
	spec := b.spec
	spec.States = make([]domain.State, 0, len(b.states))
	for _, sb := range b.states {
		spec.States = append(spec.States, sb.Build())
	}
	if spec.InitialState == "" && len(spec.States) > 0 {
		spec.InitialState = spec.States[0].Name
	}

	spec.Guards = make(map[string]domain.Guard, len(b.spec.Guards))
	for k, v := range b.spec.Guards {
		spec.Guards[k] = v
	}
	spec.Actions = make(map[string]domain.Action, len(b.spec.Actions))
	for k, v := range b.spec.Actions {
		spec.Actions[k] = v
	}

	if _, err := validator.Validate(&spec); err != nil {
		return nil, fmt.Errorf("invalid specification: %w", err)
	}
	return &spec, nil
}

// MustBuild is like Build but panics on an invalid specification.
func (b *Builder) MustBuild() *domain.Specification {
	spec, err := b.Build()
	if err != nil {
		panic(err)
	}
	return spec
}
