// Package schema provides the type system used to validate entity context.
//
// A Schema maps field names to types. Built-in types are string, int, number
// (alias float), bool, map, any, slices written as "[elem]", and optional
// fields written with a trailing "?". Fields not named by the schema are
// allowed, so a schema constrains only what it declares.
//
// Basic usage:
//
//	s := schema.Schema{
//	    "count":   schema.Number(),
//	    "message": schema.Optional(schema.String()),
//	    "tags":    schema.Slice(schema.String()),
//	}
//
//	if err := schema.Validate(s, map[string]any{"count": 1}); err != nil {
//	    // Handle validation errors
//	}
//
// Schemas can be parsed from type strings, which is how specification files
// declare them:
//
//	s, err := schema.ParseTypeMap(map[string]string{
//	    "count":   "number",
//	    "message": "string?",
//	})
//
// Custom validators can be registered for domain-specific validation:
//
//	positive := schema.Custom("positive", func(v any) error {
//	    n, ok := v.(int)
//	    if !ok || n <= 0 {
//	        return fmt.Errorf("must be a positive int")
//	    }
//	    return nil
//	})
package schema
