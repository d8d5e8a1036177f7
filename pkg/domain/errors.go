package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEntityNotFound is returned (wrapped in a StorageError) when no state has been
// persisted for an entity yet.
var ErrEntityNotFound = errors.New("entity not found")

// ErrVersionConflict is returned by storage providers that detect a concurrent
// write: the stored version is not the one the new state was derived from.
var ErrVersionConflict = errors.New("version conflict")

// ErrSpecAlreadyRegistered is returned when a specification id is registered twice.
var ErrSpecAlreadyRegistered = errors.New("specification already registered")

// InvalidStateError reports a state name unknown to the specification.
type InvalidStateError struct {
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %q", e.State)
}

// TransitionNotAllowedError reports an event the current state does not accept.
type TransitionNotAllowedError struct {
	From      string
	Event     string
	Available []string
}

func (e *TransitionNotAllowedError) Error() string {
	return fmt.Sprintf("event %q not allowed in state %q (available: [%s])",
		e.Event, e.From, strings.Join(e.Available, ", "))
}

// GuardNotFoundError reports a dangling guard reference.
type GuardNotFoundError struct {
	Guard string
}

func (e *GuardNotFoundError) Error() string {
	return fmt.Sprintf("guard %q not found", e.Guard)
}

// ActionNotFoundError reports a dangling action reference.
type ActionNotFoundError struct {
	Action string
}

func (e *ActionNotFoundError) Error() string {
	return fmt.Sprintf("action %q not found", e.Action)
}

// GuardFailedError reports a guard that evaluated to false.
type GuardFailedError struct {
	Guard  string
	Reason string
}

func (e *GuardFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("guard %q failed", e.Guard)
	}
	return fmt.Sprintf("guard %q failed: %s", e.Guard, e.Reason)
}

// ValidationError reports a post-action context that does not satisfy the schema.
type ValidationError struct {
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	if e.Cause == nil {
		return "context validation failed: " + e.Reason
	}
	return fmt.Sprintf("context validation failed: %s: %v", e.Reason, e.Cause)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// SpecNotFoundError reports an entity type with no registered specification.
type SpecNotFoundError struct {
	ID string
}

func (e *SpecNotFoundError) Error() string {
	return fmt.Sprintf("specification %q not found", e.ID)
}

// SpecError reports a structural defect found while validating a specification.
type SpecError struct {
	SpecID string
	Reason string

	// State, Event and Target locate the defect when applicable.
	State  string
	Event  string
	Target string
}

func (e *SpecError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "specification %q: %s", e.SpecID, e.Reason)
	if e.Target != "" {
		fmt.Fprintf(&sb, " %q", e.Target)
	}
	if e.State != "" {
		fmt.Fprintf(&sb, " (state %q", e.State)
		if e.Event != "" {
			fmt.Fprintf(&sb, ", event %q", e.Event)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// StorageOp tags the storage operation that failed.
type StorageOp string

const (
	OpSave    StorageOp = "save"
	OpLoad    StorageOp = "load"
	OpQuery   StorageOp = "query"
	OpHistory StorageOp = "getHistory"
)

// StorageError wraps a failure raised by a storage provider.
type StorageError struct {
	Op         StorageOp
	EntityType string
	EntityID   string
	Err        error
}

func (e *StorageError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.EntityType, e.Err)
	}
	return fmt.Sprintf("storage %s %s/%s: %v", e.Op, e.EntityType, e.EntityID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err, keeping it unchanged when it already is a StorageError.
func NewStorageError(op StorageOp, entityType, entityID string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, EntityType: entityType, EntityID: entityID, Err: err}
}

// PolicyError reports an authorization denial raised by a policy provider.
type PolicyError struct {
	Actor      string
	EntityType string
	Event      string
	Reason     string
}

func (e *PolicyError) Error() string {
	actor := e.Actor
	if actor == "" {
		actor = "anonymous"
	}
	msg := fmt.Sprintf("actor %q may not send %q to %s", actor, e.Event, e.EntityType)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Error kinds returned by KindOf.
const (
	KindInvalidState         = "invalid_state"
	KindTransitionNotAllowed = "transition_not_allowed"
	KindGuardNotFound        = "guard_not_found"
	KindActionNotFound       = "action_not_found"
	KindGuardFailed          = "guard_failed"
	KindValidation           = "validation"
	KindSpecNotFound         = "spec_not_found"
	KindSpec                 = "spec"
	KindNotFound             = "not_found"
	KindVersionConflict      = "version_conflict"
	KindStorage              = "storage"
	KindPolicy               = "policy"
	KindInternal             = "internal"
)

// KindOf classifies err into one of the Kind constants. It returns "" for nil.
func KindOf(err error) string {
	if err == nil {
		return ""
	}

	var (
		invalidState  *InvalidStateError
		notAllowed    *TransitionNotAllowedError
		guardNotFound *GuardNotFoundError
		actionMissing *ActionNotFoundError
		guardFailed   *GuardFailedError
		validation    *ValidationError
		specNotFound  *SpecNotFoundError
		specErr       *SpecError
		storageErr    *StorageError
		policyErr     *PolicyError
	)

	switch {
	case errors.As(err, &invalidState):
		return KindInvalidState
	case errors.As(err, &notAllowed):
		return KindTransitionNotAllowed
	case errors.As(err, &guardNotFound):
		return KindGuardNotFound
	case errors.As(err, &actionMissing):
		return KindActionNotFound
	case errors.As(err, &guardFailed):
		return KindGuardFailed
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &specNotFound):
		return KindSpecNotFound
	case errors.As(err, &specErr), errors.Is(err, ErrSpecAlreadyRegistered):
		return KindSpec
	case errors.Is(err, ErrEntityNotFound):
		return KindNotFound
	case errors.Is(err, ErrVersionConflict):
		return KindVersionConflict
	case errors.As(err, &storageErr):
		return KindStorage
	case errors.As(err, &policyErr):
		return KindPolicy
	default:
		return KindInternal
	}
}
