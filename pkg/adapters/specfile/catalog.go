package specfile

import (
	"sort"

	"github.com/aretw0/espalier/pkg/domain"
)

// Catalog holds Go guards and actions that specification files can reference by name.
// It is not safe for concurrent registration; fill it before loading.
type Catalog struct {
	guards  map[string]domain.Guard
	actions map[string]domain.Action
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		guards:  make(map[string]domain.Guard),
		actions: make(map[string]domain.Action),
	}
}

// Guard registers a guard under name, replacing any previous one.
func (c *Catalog) Guard(name string, fn domain.Guard) *Catalog {
	c.guards[name] = fn
	return c
}

// Action registers an action under name, replacing any previous one.
func (c *Catalog) Action(name string, fn domain.Action) *Catalog {
	c.actions[name] = fn
	return c
}

// GuardNames lists the registered guards, sorted.
func (c *Catalog) GuardNames() []string {
	return sortedKeys(c.guards)
}

// ActionNames lists the registered actions, sorted.
func (c *Catalog) ActionNames() []string {
	return sortedKeys(c.actions)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
