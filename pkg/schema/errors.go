package schema

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is one context field that does not satisfy its declared type.
type FieldError struct {
	Field  string
	Reason string
	Value  any // nil when the field is missing
}

func (e *FieldError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%T)", e.Field, e.Reason, e.Value)
}

// Violations collects every FieldError of one check, ordered by field name.
type Violations []*FieldError

func (v Violations) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes each FieldError to errors.As.
func (v Violations) Unwrap() []error {
	out := make([]error, len(v))
	for i, fe := range v {
		out[i] = fe
	}
	return out
}

// FieldErrors extracts the field failures carried by err, if any.
func FieldErrors(err error) []*FieldError {
	var v Violations
	if errors.As(err, &v) {
		return v
	}
	return nil
}
