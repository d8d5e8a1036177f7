package ports

import "github.com/aretw0/espalier/pkg/domain"

// SpecRegistry holds the specifications known to a Service, keyed by id (the entity type).
type SpecRegistry interface {
	// Register validates and publishes a specification.
	// Registering an id twice fails with domain.ErrSpecAlreadyRegistered.
	Register(spec *domain.Specification) error

	// Get returns the specification registered under id, or a *domain.SpecNotFoundError.
	Get(id string) (*domain.Specification, error)

	// All returns every registered specification ordered by id.
	All() []*domain.Specification
}

// SpecSource produces specifications from an external definition.
type SpecSource interface {
	// ListSpecs returns the ids of the specifications the source can load.
	ListSpecs() ([]string, error)

	// LoadSpec builds the specification with the given id.
	LoadSpec(id string) (*domain.Specification, error)
}
