package otelhelper

import (
	"github.com/dukex/chatflow/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const ErrorKindKey = "chatflow.error.kind"

// SetError marks span failed and records err with its taxonomy kind.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	kind := attribute.String(ErrorKindKey, string(models.KindOf(err)))

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(kind)
	span.AddEvent("error_occurred", trace.WithAttributes(
		append(attrs, kind)...,
	))
}
