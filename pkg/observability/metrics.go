package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aretw0/espalier/pkg/domain"
)

const namespace = "espalier"

// Metrics holds the collectors fed by the Service lifecycle hooks.
type Metrics struct {
	Commands    *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg falls back to prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed, by entity type, event and outcome.",
		}, []string{"entity_type", "event", "result", "kind"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed transitions, by entity type and state pair.",
		}, []string{"entity_type", "from", "to"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent executing a command, persistence included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity_type", "event"}),
	}
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCommitted: func(_ context.Context, e *domain.CommittedEvent) {
			cmd := e.Command
			m.Commands.WithLabelValues(cmd.EntityType, cmd.Event, string(domain.AuditSuccess), "").Inc()
			m.Transitions.WithLabelValues(cmd.EntityType, e.Result.From, e.Result.To).Inc()
			m.Duration.WithLabelValues(cmd.EntityType, cmd.Event).Observe(e.Duration.Seconds())
		},
		OnRejected: func(_ context.Context, e *domain.RejectedEvent) {
			cmd := e.Command
			m.Commands.WithLabelValues(cmd.EntityType, cmd.Event, string(domain.AuditFailed), e.Kind).Inc()
			m.Duration.WithLabelValues(cmd.EntityType, cmd.Event).Observe(e.Duration.Seconds())
		},
	}
}
