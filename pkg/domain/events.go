package domain

import (
	"context"
	"time"
)

// CommittedEvent is emitted after a command has been executed and persisted.
type CommittedEvent struct {
	Command  Command
	Result   *TransitionResult
	State    *EntityState
	Audit    *AuditEntry
	Duration time.Duration
}

// RejectedEvent is emitted when a command fails at any step.
type RejectedEvent struct {
	Command  Command
	Kind     string
	Err      error
	Duration time.Duration
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously on the calling goroutine and must not block.
type LifecycleHooks struct {
	OnCommitted func(context.Context, *CommittedEvent)
	OnRejected  func(context.Context, *RejectedEvent)
}

// Combine returns hooks that invoke every non-nil callback of each argument in order.
func Combine(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnCommitted: func(ctx context.Context, e *CommittedEvent) {
			for _, h := range hooks {
				if h.OnCommitted != nil {
					h.OnCommitted(ctx, e)
				}
			}
		},
		OnRejected: func(ctx context.Context, e *RejectedEvent) {
			for _, h := range hooks {
				if h.OnRejected != nil {
					h.OnRejected(ctx, e)
				}
			}
		},
	}
}
