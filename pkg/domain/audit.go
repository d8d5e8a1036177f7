package domain

import "time"

// AuditResult is the outcome recorded by an AuditEntry.
type AuditResult string

const (
	AuditSuccess AuditResult = "success"
	AuditFailed  AuditResult = "failed"
)

// AuditEntry is an immutable record of one attempted command.
// Entries are append-only and keyed by (EntityType, EntityID).
type AuditEntry struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	EntityType string        `json:"entity_type"`
	EntityID   string        `json:"entity_id"`
	Event      string        `json:"event"`
	From       string        `json:"from"`
	To         string        `json:"to,omitempty"`
	Actor      string        `json:"actor,omitempty"`
	Data       Context       `json:"data,omitempty"`
	Result     AuditResult   `json:"result"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// RetryAdvice is an advisory descriptor published by a policy provider.
// The core never acts on it; callers and adapters may.
type RetryAdvice struct {
	MaxAttempts int           `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	Backoff     time.Duration `json:"backoff,omitempty" yaml:"backoff,omitempty"`

	// PerMinute is the advertised command rate for the (entity type, event) pair.
	PerMinute int `json:"per_minute,omitempty" yaml:"per_minute,omitempty"`
}
