package health

import (
	"github.com/jonwraymond/faultgate/resilience"
)

// Status represents the aggregated health of the protected units.
type Status int

const (
	// StatusHealthy indicates every circuit breaker is closed.
	StatusHealthy Status = iota
	// StatusDegraded indicates at least one breaker is probing recovery.
	StatusDegraded
	// StatusUnhealthy indicates at least one breaker is open.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// FromSnapshot derives the overall status from a registry snapshot.
// Open outranks half-open, half-open outranks closed. An empty
// snapshot is healthy.
func FromSnapshot(snap map[string]resilience.UnitHealth) Status {
	status := StatusHealthy
	for _, unit := range snap {
		switch unit.State {
		case resilience.StateOpen:
			return StatusUnhealthy
		case resilience.StateHalfOpen:
			status = StatusDegraded
		}
	}
	return status
}
