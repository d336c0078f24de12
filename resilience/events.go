package resilience

import "time"

// EventType classifies an observability event.
type EventType string

// Event types emitted by breakers, bulkheads and the rate limiter.
const (
	EventSuccess         EventType = "success"
	EventFailure         EventType = "failure"
	EventStateTransition EventType = "state_transition"
	EventRejection       EventType = "rejection"
)

// Event is a structured observability record emitted to the configured
// Sink. Unit is the resilience-unit name (or the limiter key for rate
// limit rejections). From and To are set only for state transitions.
type Event struct {
	Unit string
	Type EventType
	From State
	To   State
	Time time.Time
}

// Sink receives observability events. Implementations must be safe for
// concurrent use and must not block: events are emitted from the request
// hot path (outside any breaker lock, but still on the caller's
// goroutine). They must not panic.
type Sink interface {
	Emit(ev Event)
}

// NopSink discards all events. It is the default when no sink is
// configured.
type NopSink struct{}

// Emit discards the event.
func (NopSink) Emit(Event) {}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }
