package specfile

import (
	"fmt"

	"github.com/aretw0/espalier/internal/dto"
	"github.com/aretw0/espalier/pkg/domain"
)

type actionResolver struct {
	raw      map[string]any
	catalog  *Catalog
	done     map[string]domain.Action
	visiting map[string]bool
}

func newActionResolver(raw map[string]any, catalog *Catalog) *actionResolver {
	return &actionResolver{
		raw:      raw,
		catalog:  catalog,
		done:     make(map[string]domain.Action),
		visiting: make(map[string]bool),
	}
}

func (r *actionResolver) all() (map[string]domain.Action, error) {
	out := make(map[string]domain.Action, len(r.catalog.actions)+len(r.raw))
	for name, fn := range r.catalog.actions {
		out[name] = fn
	}
	for _, name := range sortedKeys(r.raw) {
		a, err := r.named(name)
		if err != nil {
			return nil, err
		}
		out[name] = a
	}
	return out, nil
}

func (r *actionResolver) named(name string) (domain.Action, error) {
	if a, ok := r.done[name]; ok {
		return a, nil
	}
	raw, declared := r.raw[name]
	if !declared {
		if a, ok := r.catalog.actions[name]; ok && a != nil {
			return a, nil
		}
		return nil, fmt.Errorf("action %q: no declaration or catalog entry", name)
	}
	if r.visiting[name] {
		return nil, fmt.Errorf("action %q: reference cycle", name)
	}
	r.visiting[name] = true
	defer delete(r.visiting, name)

	a, err := r.compileRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("action %q: %w", name, err)
	}
	r.done[name] = a
	return a, nil
}

// compileRaw accepts a catalog reference, an inline definition or a list of both.
func (r *actionResolver) compileRaw(raw any) (domain.Action, error) {
	switch v := raw.(type) {
	case string:
		return r.named(v)

	case map[string]any:
		var def dto.ActionDef
		if err := decodeStrict(v, &def); err != nil {
			return nil, err
		}
		return r.compile(def)

	case []any:
		steps := make([]domain.Action, 0, len(v))
		for i, item := range v {
			step, err := r.compileRaw(item)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			steps = append(steps, step)
		}
		return func(c domain.Context) domain.Context {
			for _, step := range steps {
				c = step(c)
				if c == nil {
					c = make(domain.Context)
				}
			}
			return c
		}, nil
	}
	return nil, fmt.Errorf("invalid action definition type: %T", raw)
}

func (r *actionResolver) compile(def dto.ActionDef) (domain.Action, error) {
	var ref domain.Action
	if def.Ref != "" {
		a, err := r.named(def.Ref)
		if err != nil {
			return nil, err
		}
		ref = a
	}
	for field, delta := range def.Increment {
		if _, ok := toFloat(delta); !ok {
			return nil, fmt.Errorf("increment %q: expected a number, got %T", field, delta)
		}
	}
	if ref == nil && len(def.Set) == 0 && len(def.Increment) == 0 && len(def.Unset) == 0 {
		return nil, fmt.Errorf("empty action: expected one of ref, set, increment, unset")
	}

	set := domain.Context(def.Set)
	increment := def.Increment
	unset := def.Unset

	return func(c domain.Context) domain.Context {
		if ref != nil {
			c = ref(c)
			if c == nil {
				c = make(domain.Context)
			}
		}
		for k, v := range set.Clone() {
			c[k] = v
		}
		for k, delta := range increment {
			if sum, ok := add(c[k], delta); ok {
				c[k] = sum
			}
		}
		for _, k := range unset {
			delete(c, k)
		}
		return c
	}, nil
}

// add sums two numbers, keeping integer types when both are integers.
// A missing current value counts as zero; non-numeric values are left unchanged.
func add(cur, delta any) (any, bool) {
	if cur == nil {
		return delta, true
	}
	ci, cok := toInt(cur)
	di, dok := toInt(delta)
	if cok && dok {
		if _, wide := cur.(int64); wide {
			return ci + di, true
		}
		return int(ci + di), true
	}
	cf, ok := toFloat(cur)
	if !ok {
		return cur, false
	}
	df, _ := toFloat(delta)
	return cf + df, true
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}
