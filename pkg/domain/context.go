package domain

// Context is the structured payload carried by an entity, transformed only by actions.
type Context map[string]any

// Clone returns a deep copy of the context. Nested maps and slices produced by
// JSON decoding ([]any, map[string]any) are copied as well, so actions working
// on a clone can never reach the caller's data.
func (c Context) Clone() Context {
	if c == nil {
		return Context{}
	}
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Context:
		return t.Clone()
	case map[string]any:
		return map[string]any(Context(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Merge returns a new context holding base overlaid with each layer in order.
// The merge is shallow: a top-level key present in a later layer replaces the
// earlier value entirely, nested maps included.
func Merge(base Context, layers ...Context) Context {
	out := base.Clone()
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = cloneValue(v)
		}
	}
	return out
}
