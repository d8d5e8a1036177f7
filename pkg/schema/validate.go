package schema

import "sort"

// Schema maps context field names to their types.
// Fields absent from the schema are allowed and never checked.
type Schema map[string]Type

// Fields returns the field names in sorted order.
func (s Schema) Fields() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks every field of schema against data.
// An empty schema accepts any data.
func Validate(schema Schema, data map[string]any) error {
	return schema.check(data, schema.Fields())
}

// ValidateFields checks only the named fields. Naming a field the schema
// does not declare is a violation.
func ValidateFields(schema Schema, data map[string]any, fields ...string) error {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	return schema.check(data, sorted)
}

func (s Schema) check(data map[string]any, fields []string) error {
	var v Violations
	for _, name := range fields {
		t, declared := s[name]
		if !declared {
			v = append(v, &FieldError{Field: name, Reason: "not declared"})
			continue
		}
		value, present := data[name]
		switch {
		case !present && IsOptional(t):
		case !present:
			v = append(v, &FieldError{Field: name, Reason: "required"})
		default:
			if err := t.Validate(value); err != nil {
				v = append(v, &FieldError{Field: name, Reason: err.Error(), Value: value})
			}
		}
	}
	if len(v) == 0 {
		return nil
	}
	return v
}
