package espalier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/internal/runtime"
	"github.com/aretw0/espalier/pkg/adapters/system"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

const instrumentationName = "github.com/aretw0/espalier"

// EntityLocker serializes work on a single entity. See package entitylock.
type EntityLocker interface {
	WithLock(ctx context.Context, entityType, entityID string, fn func(context.Context) error) error
}

// Service is the high-level entry point of the library.
// It ties the specification registry and the storage provider to the transition executor.
type Service struct {
	registry ports.SpecRegistry
	store    ports.StateStore
	compute  ports.Compute
	executor *runtime.Executor
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	tracer   trace.Tracer
	locker   EntityLocker
}

// Option defines a functional option for configuring the Service.
type Option func(*Service)

// WithCompute replaces the wall clock and UUID generator.
func WithCompute(c ports.Compute) Option {
	return func(s *Service) {
		s.compute = c
	}
}

// WithLogger sets a custom structured logger for the Service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHooks registers observability hooks. Use domain.Combine to register several.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Service) {
		s.hooks = hooks
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider (default: the global one).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(instrumentationName)
	}
}

// WithEntityLock serializes Execute calls per entity through locker.
func WithEntityLock(locker EntityLocker) Option {
	return func(s *Service) {
		s.locker = locker
	}
}

// New creates a Service backed by the given registry and storage provider.
func New(registry ports.SpecRegistry, store ports.StateStore, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		store:    store,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.compute == nil {
		s.compute = system.New()
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.tracer == nil {
		s.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	s.executor = runtime.NewExecutor(runtime.WithClock(s.compute.Now))
	return s
}

// Execute applies cmd to its entity and persists the new state with one audit entry.
// A failure at any step leaves storage untouched and is returned unchanged.
func (s *Service) Execute(ctx context.Context, cmd domain.Command) (*domain.TransitionResult, error) {
	start := s.compute.Now()

	ctx, span := s.tracer.Start(ctx, "espalier.Execute", trace.WithAttributes(
		attribute.String("entity.type", cmd.EntityType),
		attribute.String("entity.id", cmd.EntityID),
		attribute.String("event", cmd.Event),
	))
	defer span.End()

	var (
		result *domain.TransitionResult
		state  *domain.EntityState
		audit  *domain.AuditEntry
	)
	run := func(ctx context.Context) error {
		var err error
		result, state, audit, err = s.execute(ctx, cmd, start)
		return err
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, cmd.EntityType, cmd.EntityID, run)
	} else {
		err = run(ctx)
	}

	if err != nil {
		kind := domain.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		s.logger.Warn("command rejected",
			"entity_type", cmd.EntityType,
			"entity_id", cmd.EntityID,
			"event", cmd.Event,
			"kind", kind,
			"err", err,
		)
		if s.hooks.OnRejected != nil {
			s.hooks.OnRejected(ctx, &domain.RejectedEvent{
				Command:  cmd,
				Kind:     kind,
				Err:      err,
				Duration: s.compute.Now().Sub(start),
			})
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("from", result.From),
		attribute.String("to", result.To),
		attribute.Int64("version", state.Version),
	)
	s.logger.Debug("command committed",
		"entity_type", cmd.EntityType,
		"entity_id", cmd.EntityID,
		"event", cmd.Event,
		"from", result.From,
		"to", result.To,
		"version", state.Version,
	)
	if s.hooks.OnCommitted != nil {
		s.hooks.OnCommitted(ctx, &domain.CommittedEvent{
			Command:  cmd,
			Result:   result,
			State:    state,
			Audit:    audit,
			Duration: audit.Duration,
		})
	}
	return result, nil
}

func (s *Service) execute(ctx context.Context, cmd domain.Command, start time.Time) (*domain.TransitionResult, *domain.EntityState, *domain.AuditEntry, error) {
	spec, err := s.registry.Get(cmd.EntityType)
	if err != nil {
		return nil, nil, nil, err
	}

	current, err := s.loadOrInit(ctx, spec, cmd.EntityType, cmd.EntityID)
	if err != nil {
		return nil, nil, nil, err
	}

	result, err := s.executor.Execute(spec, current, cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	now := s.compute.Now()
	next := &domain.EntityState{
		ID:         cmd.EntityID,
		EntityType: cmd.EntityType,
		StateName:  result.To,
		Context:    result.NewContext.Clone(),
		Version:    current.Version + 1,
		CreatedAt:  current.CreatedAt,
		UpdatedAt:  now,
	}

	var data domain.Context
	if len(cmd.Data) > 0 {
		data = cmd.Data.Clone()
	}
	audit := &domain.AuditEntry{
		ID:         s.compute.UUID(),
		Timestamp:  now,
		EntityType: cmd.EntityType,
		EntityID:   cmd.EntityID,
		Event:      cmd.Event,
		From:       result.From,
		To:         result.To,
		Actor:      cmd.Actor,
		Data:       data,
		Result:     domain.AuditSuccess,
		Duration:   now.Sub(start),
	}

	if err := s.store.Save(ctx, cmd.EntityType, cmd.EntityID, next, audit); err != nil {
		return nil, nil, nil, err
	}
	return result, next, audit, nil
}

// loadOrInit loads the entity or, when storage has never seen it, synthesizes
// it at the initial state with version 0.
func (s *Service) loadOrInit(ctx context.Context, spec *domain.Specification, entityType, entityID string) (*domain.EntityState, error) {
	state, err := s.store.Load(ctx, entityType, entityID)
	if err == nil {
		return state, nil
	}
	if errors.Is(err, domain.ErrEntityNotFound) {
		return domain.NewEntityState(entityType, entityID, spec.InitialState, s.compute.Now()), nil
	}
	return nil, err
}

// Query loads an entity and checks that its state still exists in the current
// specification, detecting drift after a specification upgrade.
func (s *Service) Query(ctx context.Context, entityType, entityID string) (*domain.EntityState, error) {
	spec, err := s.registry.Get(entityType)
	if err != nil {
		return nil, err
	}

	state, err := s.store.Load(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if _, ok := spec.State(state.StateName); !ok {
		return nil, &domain.InvalidStateError{State: state.StateName}
	}
	return state, nil
}

// List returns the entities of a type matching filter.
func (s *Service) List(ctx context.Context, entityType string, filter domain.Filter) ([]*domain.EntityState, error) {
	return s.store.Query(ctx, entityType, filter)
}

// History returns the audit trail of an entity, newest first.
func (s *Service) History(ctx context.Context, entityType, entityID string, limit, offset int) ([]*domain.AuditEntry, error) {
	return s.store.History(ctx, entityType, entityID, limit, offset)
}

// CanTransition reports whether event would currently be accepted for the entity,
// without running any action or persisting anything.
// Refusals by the specification are reported in the Verdict; the error is only set
// when the specification or the entity cannot be resolved.
func (s *Service) CanTransition(ctx context.Context, entityType, entityID, event string, data domain.Context) (domain.Verdict, error) {
	ctx, span := s.tracer.Start(ctx, "espalier.CanTransition", trace.WithAttributes(
		attribute.String("entity.type", entityType),
		attribute.String("entity.id", entityID),
		attribute.String("event", event),
	))
	defer span.End()

	spec, err := s.registry.Get(entityType)
	if err != nil {
		span.RecordError(err)
		return domain.Verdict{}, err
	}

	state, err := s.loadOrInit(ctx, spec, entityType, entityID)
	if err != nil {
		span.RecordError(err)
		return domain.Verdict{}, err
	}

	verdict, _ := s.executor.Evaluate(spec, state, domain.Command{
		EntityType: entityType,
		EntityID:   entityID,
		Event:      event,
		Data:       data,
	})
	span.SetAttributes(attribute.Bool("allowed", verdict.Allowed))
	return verdict, nil
}

// Specification returns the registered specification for an entity type.
func (s *Service) Specification(id string) (*domain.Specification, error) {
	return s.registry.Get(id)
}

// Specifications returns every registered specification ordered by id.
func (s *Service) Specifications() []*domain.Specification {
	return s.registry.All()
}
