package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

type entityKey struct {
	entityType string
	entityID   string
}

type record struct {
	state   *domain.EntityState
	history []*domain.AuditEntry // oldest first
}

// Store implements ports.StateStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[entityKey]*record
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[entityKey]*record),
	}
}

// Save persists the state in memory and appends the audit entry.
func (s *Store) Save(ctx context.Context, entityType, entityID string, state *domain.EntityState, audit *domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError(domain.OpSave, entityType, entityID, err)
	}

	key := entityKey{entityType, entityID}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.data[key]
	var stored int64
	if rec != nil {
		stored = rec.state.Version
	}
	if stored != state.Version-1 {
		return domain.NewStorageError(domain.OpSave, entityType, entityID, domain.ErrVersionConflict)
	}

	if rec == nil {
		rec = &record{}
		s.data[key] = rec
	}
	// Copy to ensure isolation, similar to serialization
	rec.state = state.Clone()
	if audit != nil {
		entry := *audit
		entry.Data = audit.Data.Clone()
		rec.history = append(rec.history, &entry)
	}
	return nil
}

// Load retrieves the state from memory.
func (s *Store) Load(ctx context.Context, entityType, entityID string) (*domain.EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[entityKey{entityType, entityID}]
	if !ok {
		return nil, domain.NewStorageError(domain.OpLoad, entityType, entityID, domain.ErrEntityNotFound)
	}

	// Copy on read so caller can't mutate store state directly by pointer
	return rec.state.Clone(), nil
}

// Query lists the entities of a type, ordered by id.
func (s *Store) Query(ctx context.Context, entityType string, filter domain.Filter) ([]*domain.EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*domain.EntityState
	for key, rec := range s.data {
		if key.entityType != entityType || !filter.Matches(rec.state) {
			continue
		}
		matches = append(matches, rec.state.Clone())
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	return domain.Page(matches, filter.Limit, filter.Offset), nil
}

// History returns the audit trail of an entity, newest first.
func (s *Store) History(ctx context.Context, entityType, entityID string, limit, offset int) ([]*domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[entityKey{entityType, entityID}]
	if !ok {
		return []*domain.AuditEntry{}, nil
	}

	entries := make([]*domain.AuditEntry, 0, len(rec.history))
	for i := len(rec.history) - 1; i >= 0; i-- {
		entry := *rec.history[i]
		entry.Data = rec.history[i].Data.Clone()
		entries = append(entries, &entry)
	}
	return domain.Page(entries, limit, offset), nil
}
