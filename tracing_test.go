package espalier_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/domain"
)

func newTracedService(t *testing.T) (*espalier.Service, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	svc, _, _ := newService(t, espalier.WithTracerProvider(tp))
	return svc, recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestService_TracesCommittedCommand(t *testing.T) {
	svc, recorder := newTracedService(t)

	_, err := svc.Execute(context.Background(), addCmd("o-1"))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "espalier.Execute", span.Name())
	assert.NotEqual(t, codes.Error, span.Status().Code)

	version, ok := spanAttr(span, "version")
	require.True(t, ok)
	assert.Equal(t, int64(1), version.AsInt64())

	typ, _ := spanAttr(span, "entity.type")
	assert.Equal(t, "order", typ.AsString())
	to, _ := spanAttr(span, "to")
	assert.Equal(t, "draft", to.AsString())
}

func TestService_TracesRejectedCommand(t *testing.T) {
	svc, recorder := newTracedService(t)

	_, err := svc.Execute(context.Background(), domain.Command{EntityType: "order", EntityID: "o-1", Event: "SUBMIT"})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "espalier.Execute", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, domain.KindGuardFailed, span.Status().Description)
	assert.Equal(t, domain.KindGuardFailed, domain.KindOf(err))

	_, ok := spanAttr(span, "version")
	assert.False(t, ok, "rejected commands carry no version")
	require.NotEmpty(t, span.Events(), "the error is recorded on the span")
	assert.Equal(t, "exception", span.Events()[0].Name)
}

func TestService_TracesCanTransition(t *testing.T) {
	svc, recorder := newTracedService(t)

	verdict, err := svc.CanTransition(context.Background(), "order", "o-1", "SUBMIT", nil)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "espalier.CanTransition", spans[0].Name())
	allowed, ok := spanAttr(spans[0], "allowed")
	require.True(t, ok)
	assert.False(t, allowed.AsBool())
}
