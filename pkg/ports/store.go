package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// StateStore defines the interface for persisting entity state and its audit trail.
//
// Every error returned by an implementation must be a *domain.StorageError tagged
// with the failing operation.
type StateStore interface {
	// Save persists the state and appends the audit entry as one atomic unit.
	// It fails with domain.ErrVersionConflict when the stored version (0 if absent)
	// is not state.Version-1.
	Save(ctx context.Context, entityType, entityID string, state *domain.EntityState, audit *domain.AuditEntry) error

	// Load retrieves the current state of an entity.
	// Returns domain.ErrEntityNotFound if nothing was saved yet.
	Load(ctx context.Context, entityType, entityID string) (*domain.EntityState, error)

	// Query lists the entities of a type matching the filter, ordered by id.
	Query(ctx context.Context, entityType string, filter domain.Filter) ([]*domain.EntityState, error)

	// History returns the audit trail of an entity, newest first.
	// A limit of zero or less means unlimited.
	History(ctx context.Context, entityType, entityID string, limit, offset int) ([]*domain.AuditEntry, error)
}
