package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with resilience-unit span
// management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for an operation protected by unit.
	StartSpan(ctx context.Context, unit string) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// newTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span named after the protected unit.
func (t *tracerImpl) StartSpan(ctx context.Context, unit string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "resilience.run."+unit,
		trace.WithAttributes(
			attribute.String("resilience.unit", unit),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// newNoopTracer creates a no-op tracer.
func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, unit string) (context.Context, trace.Span) {
	return t.noop.Start(ctx, "resilience.run."+unit)
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
