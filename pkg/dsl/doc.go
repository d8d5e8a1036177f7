/*
Package dsl provides a Go DSL (Domain Specific Language) for programmatically constructing Specifications.

It allows developers to define entity lifecycles using a type-safe, fluent builder pattern
instead of relying on external YAML files. This is particularly useful when guards and actions
are ordinary Go closures, for unit testing, and for leveraging IDE autocompletion/type-checking.

Example usage:

	package main

	import (
		"github.com/aretw0/espalier/pkg/domain"
		"github.com/aretw0/espalier/pkg/dsl"
		"github.com/aretw0/espalier/pkg/schema"
	)

	func main() {
		b := dsl.New("order").
			Field("items", schema.Int()).
			Guard("hasItems", func(c domain.Context) bool { return c["items"].(int) > 0 })

		b.State("draft").
			On("SUBMIT", "review").Guard("hasItems").
			On("CANCEL", "cancelled")

		b.State("review").On("APPROVE", "done")
		b.State("done")
		b.State("cancelled")

		spec, err := b.Build()
		// ... register spec with a registry.Registry
	}
*/
package dsl
