// Package resilience provides process-wide fault isolation for calls to
// external dependencies.
//
// The package is built from four primitives and one entry point:
//
//   - Circuit Breaker: per-dependency fault detector with a three-state
//     machine (closed, open, half-open), threshold-based tripping and
//     timed automatic recovery.
//
//   - Bulkhead: bounded-concurrency isolation pool with a bounded FIFO
//     backlog, so saturation of one dependency cannot exhaust capacity
//     needed by another.
//
//   - Rate Limiter: per-key fixed-window admission control. Fixed-window
//     counting admits up to 2x the limit across a window boundary; this
//     is a documented trade-off for O(1) decisions, not a bug.
//
//   - Registry: process-wide named collection of breakers and bulkheads
//     with compute-if-absent creation, a periodic recovery sweep and idle
//     eviction. Construct one explicitly and hand it to whoever needs it;
//     there is no package-level singleton.
//
//   - Facade: the single entry point business services call.
//
// # Usage
//
//	reg := resilience.NewRegistry(resilience.RegistryConfig{})
//	reg.Start()
//	defer reg.Stop()
//
//	facade := resilience.NewFacade(reg)
//
//	err := facade.Run(ctx, "payments-db", func(ctx context.Context) error {
//	    return chargeCard(ctx, order)
//	})
//
// A caller that can tolerate an open circuit supplies a fallback:
//
//	err := facade.Run(ctx, "recommendations",
//	    fetchPersonalized,
//	    resilience.WithFallback(fetchPopular),
//	)
//
// Failed operations surface as *OperationError wrapping the original
// error, so errors.Is and errors.As against the business error still
// work. Rejections surface as *CircuitOpenError, *BulkheadOverflowError
// or *RateLimitedError, all matchable with the package sentinels.
package resilience
