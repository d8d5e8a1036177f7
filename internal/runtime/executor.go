package runtime

import (
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/schema"
)

// Executor applies one command to one entity state.
// It reads only its arguments and never mutates them; it is safe for concurrent use.
type Executor struct {
	now func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the clock used to stamp transition results.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor creates an Executor using the wall clock unless WithClock is given.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the transition selected by cmd.Event from state.
//
// The steps run in a fixed order and the first failure stops the attempt:
// state lookup, transition lookup, context merge, guard, exit action,
// transition action, entry action and finally schema validation.
// Guards only ever observe the merged context, never an action's output.
func (e *Executor) Execute(spec *domain.Specification, state *domain.EntityState, cmd domain.Command) (*domain.TransitionResult, error) {
	current, transition, working, err := e.prepare(spec, state, cmd)
	if err != nil {
		return nil, err
	}

	target, ok := spec.State(transition.Target)
	if !ok {
		return nil, &domain.InvalidStateError{State: transition.Target}
	}

	for _, name := range []string{current.Exit, transition.Action, target.Entry} {
		if name == "" {
			continue
		}
		working, err = apply(spec, name, working)
		if err != nil {
			return nil, err
		}
	}

	if err := schema.Validate(spec.ContextSchema, working); err != nil {
		return nil, &domain.ValidationError{Reason: "context does not match schema", Cause: err}
	}

	return &domain.TransitionResult{
		From:       current.Name,
		To:         target.Name,
		Event:      cmd.Event,
		OldContext: state.Context.Clone(),
		NewContext: working,
		Timestamp:  e.now(),
	}, nil
}

// Evaluate performs the lookup and guard steps of Execute without running any action.
// A refused command yields a Verdict with Allowed false together with the refusal error.
func (e *Executor) Evaluate(spec *domain.Specification, state *domain.EntityState, cmd domain.Command) (domain.Verdict, error) {
	_, transition, _, err := e.prepare(spec, state, cmd)
	if err != nil {
		return domain.Verdict{
			Allowed: false,
			Reason:  err.Error(),
			Kind:    domain.KindOf(err),
		}, err
	}
	return domain.Verdict{Allowed: true, Target: transition.Target}, nil
}

// prepare resolves the current state and transition, builds the merged working
// context and evaluates the guard.
func (e *Executor) prepare(spec *domain.Specification, state *domain.EntityState, cmd domain.Command) (*domain.State, domain.Transition, domain.Context, error) {
	current, ok := spec.State(state.StateName)
	if !ok {
		return nil, domain.Transition{}, nil, &domain.InvalidStateError{State: state.StateName}
	}

	transition, ok := current.Transition(cmd.Event)
	if !ok {
		return nil, domain.Transition{}, nil, &domain.TransitionNotAllowedError{
			From:      current.Name,
			Event:     cmd.Event,
			Available: current.Events(),
		}
	}

	// Command data overrides static transition data, which overrides the stored context.
	working := domain.Merge(state.Context, transition.StaticData, cmd.Data)

	if transition.Guard != "" {
		guard, ok := spec.Guard(transition.Guard)
		if !ok {
			return nil, domain.Transition{}, nil, &domain.GuardNotFoundError{Guard: transition.Guard}
		}
		if !guard(working.Clone()) {
			return nil, domain.Transition{}, nil, &domain.GuardFailedError{Guard: transition.Guard, Reason: "returned false"}
		}
	}

	return current, transition, working, nil
}

func apply(spec *domain.Specification, name string, ctx domain.Context) (domain.Context, error) {
	action, ok := spec.Action(name)
	if !ok {
		return nil, &domain.ActionNotFoundError{Action: name}
	}
	next := action(ctx.Clone())
	if next == nil {
		return domain.Context{}, nil
	}
	return next, nil
}
