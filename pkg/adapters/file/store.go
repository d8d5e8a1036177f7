package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// document is the on-disk layout of one entity: its state plus its audit trail, oldest first.
type document struct {
	State   *domain.EntityState  `json:"state"`
	History []*domain.AuditEntry `json:"history"`
}

// Store implements ports.StateStore using the local filesystem.
// It stores one JSON document per entity under <BasePath>/<entityType>/<entityID>.json.
// Writes are serialized inside the process; run a single writer per directory.
type Store struct {
	BasePath string

	mu sync.Mutex
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".espalier/entities".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".espalier", "entities")
	}
	return &Store{BasePath: basePath}
}

// escape turns an identifier into a safe path element.
func escape(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return url.PathEscape(name), nil
}

func (s *Store) paths(entityType, entityID string) (dir, file string, err error) {
	t, err := escape(entityType)
	if err != nil {
		return "", "", err
	}
	dir = filepath.Join(s.BasePath, t)
	if entityID == "" {
		return dir, "", nil
	}
	id, err := escape(entityID)
	if err != nil {
		return "", "", err
	}
	return dir, filepath.Join(dir, id+".json"), nil
}

func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to read entity file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity document: %w", err)
	}
	if doc.State == nil {
		return nil, fmt.Errorf("entity document %s has no state", filepath.Base(path))
	}
	return &doc, nil
}

// Save persists the entity document to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, entityType, entityID string, state *domain.EntityState, audit *domain.AuditEntry) error {
	wrap := func(err error) error {
		return domain.NewStorageError(domain.OpSave, entityType, entityID, err)
	}

	dir, destPath, err := s.paths(entityType, entityID)
	if err != nil {
		return wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := readDocument(destPath)
	switch {
	case errors.Is(err, domain.ErrEntityNotFound):
		doc = &document{}
	case err != nil:
		return wrap(err)
	}

	var stored int64
	if doc.State != nil {
		stored = doc.State.Version
	}
	if stored != state.Version-1 {
		return wrap(domain.ErrVersionConflict)
	}

	doc.State = state
	if audit != nil {
		doc.History = append(doc.History, audit)
	}

	if err := ctx.Err(); err != nil {
		return wrap(err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return wrap(fmt.Errorf("failed to ensure entity directory: %w", err))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return wrap(fmt.Errorf("failed to marshal entity document: %w", err))
	}
	return wrap(atomicWrite(dir, destPath, data))
}

func atomicWrite(dir, destPath string, data []byte) error {
	// 1. Create Temp File
	// we use the same directory to ensure we are on the same filesystem (required for atomic rename)
	tmpFile, err := os.CreateTemp(dir, "tmp-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Cleanup temp file in case of failure
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	// 2. Write Data
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// 3. Fsync to ensure durability
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// 4. Close File (cannot rename open file on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// 5. Atomic Rename
	// On Windows, os.Rename fails if dest exists. We must remove it first.
	if _, err := os.Stat(destPath); err == nil && runtime.GOOS == "windows" {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing entity file for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to entity file: %w", err)
	}
	return nil
}

// Load retrieves the entity state from its JSON file.
func (s *Store) Load(ctx context.Context, entityType, entityID string) (*domain.EntityState, error) {
	_, path, err := s.paths(entityType, entityID)
	if err != nil {
		return nil, domain.NewStorageError(domain.OpLoad, entityType, entityID, err)
	}

	doc, err := readDocument(path)
	if err != nil {
		return nil, domain.NewStorageError(domain.OpLoad, entityType, entityID, err)
	}
	return doc.State, nil
}

// Query lists the entities of a type, ordered by id.
func (s *Store) Query(ctx context.Context, entityType string, filter domain.Filter) ([]*domain.EntityState, error) {
	wrap := func(err error) error {
		return domain.NewStorageError(domain.OpQuery, entityType, "", err)
	}

	dir, _, err := s.paths(entityType, "")
	if err != nil {
		return nil, wrap(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*domain.EntityState{}, nil
		}
		return nil, wrap(fmt.Errorf("failed to list entities: %w", err))
	}

	var matches []*domain.EntityState
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, wrap(err)
		}

		doc, err := readDocument(filepath.Join(dir, name))
		if err != nil {
			return nil, wrap(err)
		}
		if filter.Matches(doc.State) {
			matches = append(matches, doc.State)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	return domain.Page(matches, filter.Limit, filter.Offset), nil
}

// History returns the audit trail of an entity, newest first.
func (s *Store) History(ctx context.Context, entityType, entityID string, limit, offset int) ([]*domain.AuditEntry, error) {
	_, path, err := s.paths(entityType, entityID)
	if err != nil {
		return nil, domain.NewStorageError(domain.OpHistory, entityType, entityID, err)
	}

	doc, err := readDocument(path)
	if errors.Is(err, domain.ErrEntityNotFound) {
		return []*domain.AuditEntry{}, nil
	}
	if err != nil {
		return nil, domain.NewStorageError(domain.OpHistory, entityType, entityID, err)
	}

	entries := make([]*domain.AuditEntry, 0, len(doc.History))
	for i := len(doc.History) - 1; i >= 0; i-- {
		entries = append(entries, doc.History[i])
	}
	return domain.Page(entries, limit, offset), nil
}
