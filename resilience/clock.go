package resilience

import "time"

// Clock abstracts wall-clock reads so that timed behavior (recovery
// eligibility, rate-limit windows, idle eviction) can be tested without
// sleeping. Production code uses the zero-value realClock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
}

// realClock is a Clock backed by the time package. It holds no state and
// is safe for concurrent use.
type realClock struct{}

func (realClock) Now() time.Time                  { return time.Now() }
func (realClock) Since(t time.Time) time.Duration { return time.Since(t) }
