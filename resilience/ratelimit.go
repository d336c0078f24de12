package resilience

import (
	"sync"
	"time"
)

// RateLimiter implements per-key fixed-window admission control. A key's
// counter lives in the window that contains the current instant; when the
// window rolls over, the count starts from zero again.
//
// Fixed-window counting admits up to 2x the limit across a window
// boundary (limit admissions at the end of one window plus limit at the
// start of the next). That artifact is accepted in exchange for O(1)
// non-blocking decisions.
type RateLimiter struct {
	clock Clock
	sink  Sink

	mu        sync.Mutex
	counters  map[string]*windowCounter
	lastPrune time.Time
}

// windowCounter holds the admission count for one key in one window.
// The window duration is stored per key because different keys may be
// checked with different windows.
type windowCounter struct {
	windowID int64
	window   time.Duration
	count    int
}

// NewRateLimiter creates a rate limiter. A nil clock uses the wall
// clock; a nil sink discards events.
func NewRateLimiter(clock Clock, sink Sink) *RateLimiter {
	if clock == nil {
		clock = realClock{}
	}
	if sink == nil {
		sink = NopSink{}
	}

	return &RateLimiter{
		clock:    clock,
		sink:     sink,
		counters: make(map[string]*windowCounter),
	}
}

// Allow reports whether one more admission for key fits inside the
// current window's budget of limit. The check and increment are atomic:
// Allow returns true iff the pre-increment count was below limit. A
// non-positive limit admits everything.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return true
	}
	if window <= 0 {
		window = time.Minute
	}

	now := rl.clock.Now()
	windowID := now.UnixNano() / int64(window)

	rl.mu.Lock()
	rl.pruneLocked(now, window)

	wc, ok := rl.counters[key]
	if !ok || wc.window != window || wc.windowID != windowID {
		wc = &windowCounter{windowID: windowID, window: window}
		rl.counters[key] = wc
	}

	allowed := wc.count < limit
	if allowed {
		wc.count++
	}
	rl.mu.Unlock()

	if !allowed {
		rl.sink.Emit(Event{Unit: key, Type: EventRejection, Time: now})
	}
	return allowed
}

// pruneLocked drops counters whose own window has elapsed. The scan is
// throttled to at most once per the calling window duration, so the map
// never grows beyond the keys seen in recent windows. Callers hold rl.mu.
func (rl *RateLimiter) pruneLocked(now time.Time, window time.Duration) {
	if now.Sub(rl.lastPrune) < window {
		return
	}
	rl.lastPrune = now

	for key, wc := range rl.counters {
		if now.UnixNano()/int64(wc.window) > wc.windowID {
			delete(rl.counters, key)
		}
	}
}

// Count returns the admission count recorded for key in the current
// window. It is an introspection helper for tests and dashboards.
func (rl *RateLimiter) Count(key string, window time.Duration) int {
	if window <= 0 {
		window = time.Minute
	}
	windowID := rl.clock.Now().UnixNano() / int64(window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	wc, ok := rl.counters[key]
	if !ok || wc.window != window || wc.windowID != windowID {
		return 0
	}
	return wc.count
}
