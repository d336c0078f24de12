// Package health exposes HTTP probe endpoints derived from the state of
// a resilience registry.
//
// Overall health follows the circuit breaker states: every breaker
// closed means healthy, any breaker half-open means degraded, and any
// breaker open means unhealthy. Liveness is independent of breaker
// state so a wedged dependency never restarts the process.
//
// Basic usage:
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, registry)
//	// GET /healthz  liveness
//	// GET /readyz   readiness derived from breaker states
//	// GET /health   per-unit JSON snapshot
package health
