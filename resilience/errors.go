package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience rejections. The typed errors below
// unwrap to these, so callers can match either way:
//
//	errors.Is(err, resilience.ErrCircuitOpen)
//
// or pull the unit name out:
//
//	var coe *resilience.CircuitOpenError
//	if errors.As(err, &coe) { log(coe.Unit) }
var (
	// ErrCircuitOpen is returned when the circuit breaker is open and no
	// fallback was supplied.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrBulkheadOverflow is returned when the bulkhead and its queue are
	// at capacity, or a queued caller timed out waiting for a slot.
	ErrBulkheadOverflow = errors.New("resilience: bulkhead at capacity")

	// ErrRateLimited is returned when the fixed-window budget for the key
	// is exhausted.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")
)

// CircuitOpenError reports that the breaker guarding Unit is open.
type CircuitOpenError struct {
	Unit string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("resilience: circuit breaker %q is open", e.Unit)
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// BulkheadOverflowError reports that the pool guarding Unit rejected a
// submission.
type BulkheadOverflowError struct {
	Unit string
}

func (e *BulkheadOverflowError) Error() string {
	return fmt.Sprintf("resilience: bulkhead %q at capacity", e.Unit)
}

func (e *BulkheadOverflowError) Unwrap() error { return ErrBulkheadOverflow }

// RateLimitedError reports that the window budget for Key is exhausted.
type RateLimitedError struct {
	Key string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("resilience: rate limit exceeded for key %q", e.Key)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// OperationError wraps an error returned by the protected operation
// itself. The failure has already been recorded against the breaker for
// Unit. Unwrap returns the original error unchanged, so errors.Is and
// errors.As against the business error keep working.
type OperationError struct {
	Unit string
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("resilience: operation on %q failed: %v", e.Unit, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
