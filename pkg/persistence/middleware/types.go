// Package middleware wraps a ports.StateStore with data-protection behavior:
// encryption of entity context at rest and masking of sensitive audit data.
package middleware

import "github.com/aretw0/espalier/pkg/ports"

// Middleware allows wrapping a StateStore to add behavior.
type Middleware func(ports.StateStore) ports.StateStore

// Chain applies mws to store. The first middleware is the outermost.
func Chain(store ports.StateStore, mws ...Middleware) ports.StateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
