package specfile

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/aretw0/espalier/internal/dto"
	"github.com/aretw0/espalier/pkg/domain"
)

// Comparison operators accepted by declarative guards.
const (
	OpEq     = "eq"
	OpNe     = "ne"
	OpGt     = "gt"
	OpGte    = "gte"
	OpLt     = "lt"
	OpLte    = "lte"
	OpExists = "exists"
	OpAbsent = "absent"
)

type guardResolver struct {
	raw      map[string]any
	catalog  *Catalog
	done     map[string]domain.Guard
	visiting map[string]bool
}

func newGuardResolver(raw map[string]any, catalog *Catalog) *guardResolver {
	return &guardResolver{
		raw:      raw,
		catalog:  catalog,
		done:     make(map[string]domain.Guard),
		visiting: make(map[string]bool),
	}
}

// all compiles every declared guard and merges them over the catalog.
func (r *guardResolver) all() (map[string]domain.Guard, error) {
	out := make(map[string]domain.Guard, len(r.catalog.guards)+len(r.raw))
	for name, fn := range r.catalog.guards {
		out[name] = fn
	}
	for _, name := range sortedKeys(r.raw) {
		g, err := r.named(name)
		if err != nil {
			return nil, err
		}
		out[name] = g
	}
	return out, nil
}

// named resolves a guard declared in the file first, then in the catalog.
func (r *guardResolver) named(name string) (domain.Guard, error) {
	if g, ok := r.done[name]; ok {
		return g, nil
	}
	raw, declared := r.raw[name]
	if !declared {
		if g, ok := r.catalog.guards[name]; ok && g != nil {
			return g, nil
		}
		return nil, fmt.Errorf("guard %q: no declaration or catalog entry", name)
	}
	if r.visiting[name] {
		return nil, fmt.Errorf("guard %q: reference cycle", name)
	}
	r.visiting[name] = true
	defer delete(r.visiting, name)

	def, err := decodeGuard(raw)
	if err != nil {
		return nil, fmt.Errorf("guard %q: %w", name, err)
	}
	g, err := r.compile(def)
	if err != nil {
		return nil, fmt.Errorf("guard %q: %w", name, err)
	}
	r.done[name] = g
	return g, nil
}

func decodeGuard(raw any) (dto.GuardDef, error) {
	var def dto.GuardDef
	switch v := raw.(type) {
	case string:
		def.Ref = v
	case map[string]any:
		if err := decodeStrict(v, &def); err != nil {
			return def, err
		}
	default:
		return def, fmt.Errorf("invalid guard definition type: %T", raw)
	}
	return def, nil
}

func (r *guardResolver) compile(def dto.GuardDef) (domain.Guard, error) {
	switch {
	case def.Ref != "":
		return r.named(def.Ref)

	case len(def.All) > 0:
		parts, err := r.compileAll(def.All)
		if err != nil {
			return nil, err
		}
		return func(c domain.Context) bool {
			for _, g := range parts {
				if !g(c) {
					return false
				}
			}
			return true
		}, nil

	case len(def.Any) > 0:
		parts, err := r.compileAll(def.Any)
		if err != nil {
			return nil, err
		}
		return func(c domain.Context) bool {
			for _, g := range parts {
				if g(c) {
					return true
				}
			}
			return false
		}, nil

	case def.Not != nil:
		inner, err := r.compile(*def.Not)
		if err != nil {
			return nil, err
		}
		return func(c domain.Context) bool { return !inner(c) }, nil

	case def.Field != "":
		return comparison(def.Field, strings.ToLower(def.Op), def.Value)
	}
	return nil, fmt.Errorf("empty guard: expected one of field, all, any, not, ref")
}

func (r *guardResolver) compileAll(defs []dto.GuardDef) ([]domain.Guard, error) {
	out := make([]domain.Guard, 0, len(defs))
	for i, d := range defs {
		g, err := r.compile(d)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func comparison(field, op string, want any) (domain.Guard, error) {
	switch op {
	case OpExists:
		return func(c domain.Context) bool {
			v, ok := c[field]
			return ok && v != nil
		}, nil
	case OpAbsent:
		return func(c domain.Context) bool {
			v, ok := c[field]
			return !ok || v == nil
		}, nil
	case OpEq, "":
		return func(c domain.Context) bool { return equal(c[field], want) }, nil
	case OpNe:
		return func(c domain.Context) bool { return !equal(c[field], want) }, nil
	case OpGt, OpGte, OpLt, OpLte:
		if _, ok := orderable(want); !ok {
			return nil, fmt.Errorf("field %q: operator %s needs a number or string, got %T", field, op, want)
		}
		return func(c domain.Context) bool {
			n, ok := compare(c[field], want)
			if !ok {
				return false
			}
			switch op {
			case OpGt:
				return n > 0
			case OpGte:
				return n >= 0
			case OpLt:
				return n < 0
			default:
				return n <= 0
			}
		}, nil
	}
	return nil, fmt.Errorf("field %q: unknown operator %q", field, op)
}

func equal(got, want any) bool {
	if a, ok := toFloat(got); ok {
		if b, ok := toFloat(want); ok {
			return a == b
		}
	}
	return reflect.DeepEqual(got, want)
}

func orderable(v any) (any, bool) {
	if f, ok := toFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return nil, false
}

// compare orders two numbers or two strings. It reports false for mixed or other types.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
