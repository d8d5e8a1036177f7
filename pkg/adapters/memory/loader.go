package memory

import (
	"fmt"
	"sort"

	"github.com/aretw0/espalier/pkg/domain"
)

// Source implements ports.SpecSource over specifications built in Go code.
// It is useful for tests and for hosts that embed their lifecycles.
type Source struct {
	specs map[string]*domain.Specification
}

// NewSource creates a Source holding the given specifications.
// A later specification replaces an earlier one with the same id.
func NewSource(specs ...*domain.Specification) *Source {
	s := &Source{specs: make(map[string]*domain.Specification, len(specs))}
	for _, spec := range specs {
		s.specs[spec.ID] = spec
	}
	return s
}

// LoadSpec returns the specification with the given id.
func (s *Source) LoadSpec(id string) (*domain.Specification, error) {
	spec, ok := s.specs[id]
	if !ok {
		return nil, fmt.Errorf("spec %s: %w", id, &domain.SpecNotFoundError{ID: id})
	}
	return spec, nil
}

// ListSpecs returns all specification ids, sorted.
func (s *Source) ListSpecs() ([]string, error) {
	ids := make([]string, 0, len(s.specs))
	for id := range s.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
