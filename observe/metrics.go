package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/faultgate/resilience"
)

// EventSink implements resilience.Sink on OpenTelemetry counters. Each
// event type maps to its own counter, keyed by the unit name; state
// transitions additionally carry the from/to states.
type EventSink struct {
	successCount    metric.Int64Counter
	failureCount    metric.Int64Counter
	rejectionCount  metric.Int64Counter
	transitionCount metric.Int64Counter
}

// NewEventSink creates an EventSink recording to meter.
func NewEventSink(meter metric.Meter) (*EventSink, error) {
	successCount, err := meter.Int64Counter(
		"resilience.success",
		metric.WithDescription("Successful operations recorded against a resilience unit"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	failureCount, err := meter.Int64Counter(
		"resilience.failure",
		metric.WithDescription("Failed operations recorded against a resilience unit"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	rejectionCount, err := meter.Int64Counter(
		"resilience.rejection",
		metric.WithDescription("Submissions rejected by a bulkhead or rate limiter"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	transitionCount, err := meter.Int64Counter(
		"resilience.state_transition",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &EventSink{
		successCount:    successCount,
		failureCount:    failureCount,
		rejectionCount:  rejectionCount,
		transitionCount: transitionCount,
	}, nil
}

// Emit records the event. It never blocks and never panics.
func (s *EventSink) Emit(ev resilience.Event) {
	ctx := context.Background()
	unitAttr := metric.WithAttributes(attribute.String("unit", ev.Unit))

	switch ev.Type {
	case resilience.EventSuccess:
		s.successCount.Add(ctx, 1, unitAttr)

	case resilience.EventFailure:
		s.failureCount.Add(ctx, 1, unitAttr)

	case resilience.EventRejection:
		s.rejectionCount.Add(ctx, 1, unitAttr)

	case resilience.EventStateTransition:
		s.transitionCount.Add(ctx, 1, metric.WithAttributes(
			attribute.String("unit", ev.Unit),
			attribute.String("from_state", ev.From.String()),
			attribute.String("to_state", ev.To.String()),
		))
	}
}

var _ resilience.Sink = (*EventSink)(nil)
