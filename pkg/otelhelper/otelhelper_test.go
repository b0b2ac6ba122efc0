package otelhelper_test

import (
	"fmt"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetError_RecordsKind(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := otelhelper.StartSpan(t.Context(), tracer, "engine.step", attribute.String(otelhelper.NodeIDKey, "ask"))
	otelhelper.SetError(span, fmt.Errorf("node ask: %w", models.ErrUnhandledBranch))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(otelhelper.ErrorKindKey, "UnhandledBranch"))
	assert.Contains(t, spans[0].Attributes(), attribute.String(otelhelper.NodeIDKey, "ask"))
}

func TestNoop(t *testing.T) {
	_, span := otelhelper.Noop().Start(t.Context(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
}
