package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eventfold/entity-sourcing-go/entity"
)

// TracingCollector implements entity.TracingCollector on the
// OpenTelemetry tracing API, creating one span per repository operation.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a collector on the given tracer, typically
// obtained from your OpenTelemetry TracerProvider.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts a span with the given name and attributes and returns
// the span-carrying context together with a SpanContext wrapper.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, entity.SpanContext) {
	spanOptions := make([]trace.SpanStartOption, 0, len(attrs))
	for key, value := range attrs {
		spanOptions = append(spanOptions, trace.WithAttributes(attribute.String(key, value)))
	}

	spanCtx, span := t.tracer.Start(ctx, name, spanOptions...)

	return spanCtx, &OTelSpanContext{span: span}
}

// FinishSpan sets final attributes and status on the span and ends it.
func (t *TracingCollector) FinishSpan(spanCtx entity.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*OTelSpanContext)
	if !ok {
		return
	}

	for key, value := range attrs {
		otelSpanCtx.span.SetAttributes(attribute.String(key, value))
	}

	otelSpanCtx.setSpanStatus(status)
	otelSpanCtx.span.End()
}

var _ entity.TracingCollector = (*TracingCollector)(nil)

// OTelSpanContext implements entity.SpanContext by wrapping an
// OpenTelemetry span.
type OTelSpanContext struct {
	span trace.Span
}

// SetStatus sets the span status from a generic status string.
func (s *OTelSpanContext) SetStatus(status string) {
	s.setSpanStatus(status)
}

// AddAttribute adds a string attribute to the span.
func (s *OTelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

// setSpanStatus maps the repository's status strings to OpenTelemetry
// status codes. Unknown strings are kept as a span attribute.
func (s *OTelSpanContext) setSpanStatus(status string) {
	switch status {
	case entity.StatusSuccess, "ok", "completed":
		s.span.SetStatus(codes.Ok, "")
	case entity.StatusError, "failed", "failure":
		s.span.SetStatus(codes.Error, "operation failed")
	case entity.StatusNotFound:
		s.span.SetStatus(codes.Ok, "")
		s.span.SetAttributes(attribute.String("status", status))
	case "cancelled", "canceled":
		s.span.SetStatus(codes.Error, "operation cancelled")
	case "timeout":
		s.span.SetStatus(codes.Error, "operation timed out")
	default:
		s.span.SetAttributes(attribute.String("status", status))
	}
}

var _ entity.SpanContext = (*OTelSpanContext)(nil)
