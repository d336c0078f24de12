package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/faultgate/resilience"
)

// Middleware wraps protected operations with tracing, a duration metric
// and logging. Wrap it around the operation passed to Facade.Run so the
// span covers only the real work, not the admission checks.
//
// Contract:
//   - Concurrency: Wrap() returns a goroutine-safe Operation.
//   - Context: propagates context through tracing spans.
//   - Errors: errors from the wrapped operation are recorded and
//     propagated unchanged.
type Middleware struct {
	tracer       Tracer
	durationHist metric.Float64Histogram
	logger       Logger
}

// NewMiddleware creates a Middleware recording to the given telemetry
// components.
func NewMiddleware(tracer Tracer, meter metric.Meter, logger Logger) (*Middleware, error) {
	durationHist, err := meter.Float64Histogram(
		"resilience.operation.duration_ms",
		metric.WithDescription("Protected operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Middleware{
		tracer:       tracer,
		durationHist: durationHist,
		logger:       logger,
	}, nil
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	return NewMiddleware(newTracer(obs.Tracer()), obs.Meter(), obs.Logger())
}

// Wrap returns op instrumented for the named unit.
func (m *Middleware) Wrap(unit string, op resilience.Operation) resilience.Operation {
	return func(ctx context.Context) error {
		ctx, span := m.tracer.StartSpan(ctx, unit)
		start := time.Now()

		err := op(ctx)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)

		m.durationHist.Record(ctx, float64(duration.Milliseconds()),
			metric.WithAttributes(
				attribute.String("unit", unit),
				attribute.Bool("error", err != nil),
			))

		logger := m.logger.WithUnit(unit)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			logger.Error(ctx, "protected operation failed", fields...)
		} else {
			logger.Debug(ctx, "protected operation completed", fields...)
		}

		return err
	}
}
