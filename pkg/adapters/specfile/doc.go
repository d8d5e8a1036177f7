// Package specfile loads Specifications from YAML documents.
//
// A document names the entity type, its context schema, its initial state and
// its states in declaration order:
//
//	id: order
//	initial: draft
//	context:
//	  items: int
//	  note: string?
//	guards:
//	  hasItems: {field: items, op: gt, value: 0}
//	actions:
//	  addItem: {increment: {items: 1}}
//	states:
//	  draft:
//	    on:
//	      ADD: {target: draft, action: addItem}
//	      SUBMIT: {target: submitted, guard: hasItems}
//	      CANCEL: cancelled
//	  submitted:
//	  cancelled:
//
// A bare target name is shorthand for {target: name}. Guards compare context
// fields (eq, ne, gt, gte, lt, lte, exists, absent) and compose with all, any
// and not. Actions set, increment and unset fields. Both can reference Go
// functions registered in a Catalog through ref, or by name from a transition.
package specfile
