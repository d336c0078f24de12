package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jonwraymond/faultgate/resilience"
)

// LivenessHandler returns an HTTP handler for liveness probes.
// It reports only that the process is running, never breaker state.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler returns an HTTP handler for readiness probes. The
// response code follows the aggregated breaker state: 200 when healthy
// or degraded, 503 when any breaker is open.
func ReadinessHandler(reg *resilience.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := FromSnapshot(reg.Snapshot())

		w.Header().Set("Content-Type", "text/plain")

		switch status {
		case StatusHealthy:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		case StatusDegraded:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("DEGRADED"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("UNHEALTHY"))
		}
	}
}

// SnapshotResponse is the JSON body of the detailed health endpoint.
type SnapshotResponse struct {
	Status    string                           `json:"status"`
	Timestamp string                           `json:"timestamp"`
	Units     map[string]resilience.UnitHealth `json:"units,omitempty"`
}

// SnapshotHandler returns an HTTP handler serving the per-unit health
// snapshot as JSON.
func SnapshotHandler(reg *resilience.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := reg.Snapshot()
		status := FromSnapshot(snap)

		response := SnapshotResponse{
			Status:    status.String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Units:     snap,
		}

		w.Header().Set("Content-Type", "application/json")

		if status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(response)
	}
}

// UnitHandler returns an HTTP handler for a single unit's health.
// Unknown units respond with 404.
func UnitHandler(reg *resilience.Registry, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := reg.Snapshot()
		unit, ok := snap[name]

		w.Header().Set("Content-Type", "application/json")

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "unknown unit: " + name,
			})
			return
		}

		if unit.State == resilience.StateOpen {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(unit)
	}
}

// RegisterHandlers registers all health endpoints on the given mux.
func RegisterHandlers(mux *http.ServeMux, reg *resilience.Registry) {
	mux.HandleFunc("/healthz", LivenessHandler())
	mux.HandleFunc("/readyz", ReadinessHandler(reg))
	mux.HandleFunc("/health", SnapshotHandler(reg))
}
