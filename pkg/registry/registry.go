package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/internal/validator"
	"github.com/aretw0/espalier/pkg/domain"
)

// Registry manages the available specifications, one per entity type.
// Specifications are validated and sealed before they become visible.
type Registry struct {
	mu     sync.RWMutex
	specs  map[string]*domain.Specification
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report validation warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		specs:  make(map[string]*domain.Specification),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates spec and adds it to the registry.
// Returns domain.ErrSpecAlreadyRegistered if the id is taken.
func (r *Registry) Register(spec *domain.Specification) error {
	if err := r.prepare(spec); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.ID]; exists {
		return fmt.Errorf("register %q: %w", spec.ID, domain.ErrSpecAlreadyRegistered)
	}
	r.specs[spec.ID] = spec
	return nil
}

// Replace validates spec and swaps it in, whether or not the id was registered.
// Entities already persisted keep their state names; Service.Query reports drift.
func (r *Registry) Replace(spec *domain.Specification) error {
	if err := r.prepare(spec); err != nil {
		return err
	}

	r.mu.Lock()
	_, existed := r.specs[spec.ID]
	r.specs[spec.ID] = spec
	r.mu.Unlock()

	if existed {
		r.logger.Info("specification replaced", "spec", spec.ID)
	}
	return nil
}

// Get looks up a specification by id.
func (r *Registry) Get(id string) (*domain.Specification, error) {
	r.mu.RLock()
	spec, ok := r.specs[id]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.SpecNotFoundError{ID: id}
	}
	return spec, nil
}

// All returns the registered specifications ordered by id.
func (r *Registry) All() []*domain.Specification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Specification, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) prepare(spec *domain.Specification) error {
	if spec == nil {
		return &domain.SpecError{Reason: "nil specification"}
	}
	report, err := validator.Validate(spec)
	if err != nil {
		return err
	}
	if len(report.Unreachable) > 0 {
		r.logger.Warn("unreachable states", "spec", spec.ID, "states", report.Unreachable)
	}
	spec.Seal()
	return nil
}
