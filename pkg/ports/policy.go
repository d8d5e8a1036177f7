package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// PolicyProvider decides whether an actor may send an event to an entity type.
// It is enforced by the outer adapters (HTTP, MCP), never by the Service itself.
type PolicyProvider interface {
	// CanExecute returns false (or a *domain.PolicyError) to deny the command.
	CanExecute(ctx context.Context, actor, entityType, event string) (bool, error)

	// Advice returns the advisory retry and rate descriptor for the pair.
	Advice(entityType, event string) domain.RetryAdvice
}
