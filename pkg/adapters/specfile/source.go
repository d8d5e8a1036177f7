package specfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
)

// Source implements ports.SpecSource over a directory of YAML documents.
// Files ending in .yaml or .yml are read; the id declared in a file wins over its name.
type Source struct {
	Dir    string
	loader *Loader
}

// NewSource creates a Source reading dir.
func NewSource(dir string, opts ...Option) *Source {
	return &Source{Dir: dir, loader: NewLoader(opts...)}
}

// LoadSpec returns the specification with the given id.
func (s *Source) LoadSpec(id string) (*domain.Specification, error) {
	specs, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if spec.ID == id {
			return spec, nil
		}
	}
	return nil, fmt.Errorf("spec %s: %w", id, &domain.SpecNotFoundError{ID: id})
}

// ListSpecs returns the ids of every document in the directory, sorted.
func (s *Source) ListSpecs() ([]string, error) {
	specs, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		ids = append(ids, spec.ID)
	}
	return ids, nil
}

// LoadAll parses every document, ordered by id. Two files declaring the same id fail.
func (s *Source) LoadAll() ([]*domain.Specification, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list specifications: %w", err)
	}

	seen := make(map[string]string)
	var specs []*domain.Specification
	for _, e := range entries {
		if e.IsDir() || !isSpecFile(e.Name()) {
			continue
		}
		path := filepath.Join(s.Dir, e.Name())
		spec, err := s.loader.LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[spec.ID]; dup {
			return nil, fmt.Errorf("id collision: %q declared by %s and %s", spec.ID, prev, path)
		}
		seen[spec.ID] = path
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs, nil
}

// Scan parses every document like LoadAll but keeps going past failures.
// It returns the documents that parsed, ordered by id, and one error per
// file that did not. Of two files declaring the same id only the first, by
// file name, is kept.
func (s *Source) Scan() ([]*domain.Specification, []error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to list specifications: %w", err)}
	}

	var (
		specs []*domain.Specification
		errs  []error
	)
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !isSpecFile(e.Name()) {
			continue
		}
		path := filepath.Join(s.Dir, e.Name())
		spec, err := s.loader.LoadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if prev, dup := seen[spec.ID]; dup {
			errs = append(errs, fmt.Errorf("id collision: %q declared by %s and %s", spec.ID, prev, path))
			continue
		}
		seen[spec.ID] = path
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs, errs
}

func isSpecFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
