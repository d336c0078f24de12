package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is rejecting all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the dependency recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string form.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a state from its string form.
func (s *State) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"closed"`:
		*s = StateClosed
	case `"open"`:
		*s = StateOpen
	case `"half-open"`:
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown state: %s", data)
	}
	return nil
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures while closed
	// before the circuit opens.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes while
	// half-open before the circuit closes again.
	// Default: 1
	SuccessThreshold int

	// RecoveryTimeout is how long the circuit stays open before a
	// recovery probe is allowed.
	// Default: 30 seconds
	RecoveryTimeout time.Duration

	// OnStateChange is called after the circuit state changes. It runs
	// outside the breaker's lock and may be slow, but must not panic.
	OnStateChange func(from, to State)

	// Clock supplies time reads. Default: the wall clock.
	Clock Clock
}

// CircuitBreaker implements the circuit breaker pattern for one named
// dependency.
//
// A success while closed resets the failure count to zero, so the
// breaker trips on consecutive failures, not on accumulated ones.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	sink   Sink

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	lastFailure  time.Time
	lastActivity time.Time
}

// NewCircuitBreaker creates a circuit breaker named name. A nil sink
// discards events.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, sink Sink) *CircuitBreaker {
	// Apply defaults
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.Clock == nil {
		config.Clock = realClock{}
	}
	if sink == nil {
		sink = NopSink{}
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		sink:   sink,
		state:  StateClosed,
	}
}

// Name returns the breaker's registry name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs op through the circuit breaker and records its outcome.
// If the circuit is open and fallback is non-nil, fallback runs instead
// and op is never invoked; a fallback outcome is not recorded against the
// breaker. If the circuit is open and fallback is nil, Execute returns
// *CircuitOpenError. Errors from op are recorded as failures and returned
// unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation, fallback Operation) error {
	if err := cb.Allow(); err != nil {
		if fallback != nil {
			return fallback(ctx)
		}
		return err
	}

	err := op(ctx)
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Allow reports whether a call may proceed. It returns nil while the
// circuit is closed or half-open, and *CircuitOpenError while open. If
// the recovery timeout has elapsed, Allow performs the open to half-open
// transition and admits the call.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	now := cb.config.Clock.Now()
	cb.lastActivity = now

	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}

	if now.Sub(cb.lastFailure) < cb.config.RecoveryTimeout {
		cb.mu.Unlock()
		return &CircuitOpenError{Unit: cb.name}
	}

	// Recovery timeout elapsed: probe the dependency.
	cb.transitionLocked(StateHalfOpen, now)
	cb.mu.Unlock()

	cb.notify(StateOpen, StateHalfOpen, now)
	return nil
}

// RecordSuccess records a successful call against the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	now := cb.config.Clock.Now()
	cb.lastActivity = now

	from := cb.state
	transitioned := false

	switch cb.state {
	case StateClosed:
		cb.failures = 0

	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionLocked(StateClosed, now)
			transitioned = true
		}

	case StateOpen:
		// A success can race an open transition; it carries no signal.
	}
	cb.mu.Unlock()

	cb.sink.Emit(Event{Unit: cb.name, Type: EventSuccess, Time: now})
	if transitioned {
		cb.notify(from, StateClosed, now)
	}
}

// RecordFailure records a failed call against the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	now := cb.config.Clock.Now()
	cb.lastActivity = now
	cb.lastFailure = now

	from := cb.state
	transitioned := false

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionLocked(StateOpen, now)
			transitioned = true
		}

	case StateHalfOpen:
		// Any failure during the probe reopens the circuit.
		cb.transitionLocked(StateOpen, now)
		transitioned = true

	case StateOpen:
		// Already open; the new lastFailure extends the recovery window.
	}
	cb.mu.Unlock()

	cb.sink.Emit(Event{Unit: cb.name, Type: EventFailure, Time: now})
	if transitioned {
		cb.notify(from, StateOpen, now)
	}
}

// State returns the current circuit state without side effects.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Healthy reports whether the circuit is closed.
func (cb *CircuitBreaker) Healthy() bool {
	return cb.State() == StateClosed
}

// tryRecover performs the open to half-open transition if the recovery
// timeout has elapsed at now. It is called by the registry sweep and is
// idempotent with the lazy check in Allow: both evaluate the same stored
// timestamp, so redundant evaluation is safe. Reports whether a
// transition happened.
func (cb *CircuitBreaker) tryRecover(now time.Time) bool {
	cb.mu.Lock()
	if cb.state != StateOpen || now.Sub(cb.lastFailure) < cb.config.RecoveryTimeout {
		cb.mu.Unlock()
		return false
	}
	cb.transitionLocked(StateHalfOpen, now)
	cb.mu.Unlock()

	cb.notify(StateOpen, StateHalfOpen, now)
	return true
}

// lastActivityAt returns the time of the breaker's most recent event,
// used by the registry's idle eviction.
func (cb *CircuitBreaker) lastActivityAt() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastActivity
}

// transitionLocked moves the FSM to state, resetting counters at the
// transition boundary and nowhere else. Callers hold cb.mu.
func (cb *CircuitBreaker) transitionLocked(state State, now time.Time) {
	cb.state = state
	switch state {
	case StateOpen:
		cb.successes = 0
		cb.lastFailure = now
	case StateHalfOpen:
		cb.successes = 0
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
	}
}

// notify emits a state_transition event and invokes OnStateChange. It
// must be called without holding cb.mu.
func (cb *CircuitBreaker) notify(from, to State, now time.Time) {
	cb.sink.Emit(Event{
		Unit: cb.name,
		Type: EventStateTransition,
		From: from,
		To:   to,
		Time: now,
	})
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// BreakerSnapshot contains circuit breaker statistics for dashboards and
// the health endpoint. It is a point-in-time copy, not a live view.
type BreakerSnapshot struct {
	State       State
	Failures    int
	Successes   int
	LastFailure time.Time
	Healthy     bool
}

// Snapshot returns the breaker's current statistics.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerSnapshot{
		State:       cb.state,
		Failures:    cb.failures,
		Successes:   cb.successes,
		LastFailure: cb.lastFailure,
		Healthy:     cb.state == StateClosed,
	}
}
