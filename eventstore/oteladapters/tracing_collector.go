package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	statusSuccess    = "success"
	statusError      = "error"
	attrErrorType    = "error_type"
	eventNameFailure = "failure"
	unknownFailure   = "operation failed"
)

// TracingCollector creates one OpenTelemetry span per load, save, append, read or command dispatch.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a TracingCollector that starts its spans with tracer.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts an internal span as a child of the span in ctx.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	spanCtx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(toAttributes(attrs)...),
	)

	return spanCtx, &Span{span: span}
}

// FinishSpan sets the final attributes and status and ends the span. An "error_type" attribute
// becomes the status description and a span event as well.
func (t *TracingCollector) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	s, ok := spanCtx.(*Span)
	if !ok {
		return
	}

	s.span.SetAttributes(toAttributes(attrs)...)

	if errorType, found := attrs[attrErrorType]; found && status == statusError {
		s.span.AddEvent(eventNameFailure, trace.WithAttributes(attribute.String(attrErrorType, errorType)))
		s.span.SetStatus(codes.Error, errorType)
	} else {
		s.SetStatus(status)
	}

	s.span.End()
}

// Span adapts an OpenTelemetry span to eventstore.SpanContext.
type Span struct {
	span trace.Span
}

// OTelSpan returns the wrapped span.
func (s *Span) OTelSpan() trace.Span {
	return s.span
}

// SetStatus maps "success" to codes.Ok and "error" to codes.Error. Any other status is kept as a "status" attribute.
func (s *Span) SetStatus(status string) {
	switch status {
	case statusSuccess:
		s.span.SetStatus(codes.Ok, "")
	case statusError:
		s.span.SetStatus(codes.Error, unknownFailure)
	default:
		s.span.SetAttributes(attribute.String("status", status))
	}
}

func (s *Span) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

func toAttributes(attrs map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for key, value := range attrs {
		kvs = append(kvs, attribute.String(key, value))
	}

	return kvs
}

var (
	_ eventstore.TracingCollector = (*TracingCollector)(nil)
	_ eventstore.SpanContext      = (*Span)(nil)
)
