// Package observe provides the observability stack for the resilience
// layer: an OpenTelemetry-backed event sink for breaker, bulkhead and
// rate-limit events, a structured JSON logger, and a tracing middleware
// for protected operations.
package observe
