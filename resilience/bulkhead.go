package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of in-flight operations.
	// Default: 10
	MaxConcurrent int

	// MaxQueueDepth is how many callers may wait for a slot once all are
	// taken. Submissions beyond the queue are rejected immediately.
	// Default: 0 (no queue, reject when saturated)
	MaxQueueDepth int

	// QueueWait bounds how long a queued caller waits for a slot before
	// the wait is converted into a rejection.
	// Default: 0 (wait until a slot frees or ctx is cancelled)
	QueueWait time.Duration
}

// Bulkhead limits concurrent access to one named dependency. Queued
// callers are admitted in FIFO order.
type Bulkhead struct {
	name   string
	config BulkheadConfig
	sem    *semaphore.Weighted
	sink   Sink

	mu       sync.Mutex
	active   int
	waiting  int
	rejected int64
}

// NewBulkhead creates a bulkhead named name. A nil sink discards events.
func NewBulkhead(name string, config BulkheadConfig, sink Sink) *Bulkhead {
	// Apply defaults
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	if config.MaxQueueDepth < 0 {
		config.MaxQueueDepth = 0
	}
	if sink == nil {
		sink = NopSink{}
	}

	return &Bulkhead{
		name:   name,
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
		sink:   sink,
	}
}

// Name returns the bulkhead's registry name.
func (b *Bulkhead) Name() string { return b.name }

// Acquire claims an execution slot. If all slots are taken and the queue
// is full, it returns *BulkheadOverflowError immediately. A queued caller
// blocks until a slot frees, the configured QueueWait elapses (rejection)
// or ctx is cancelled (ctx.Err). Every successful Acquire must be paired
// with Release.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	// Fast path: free slot available.
	if b.sem.TryAcquire(1) {
		b.admitted()
		return nil
	}

	b.mu.Lock()
	if b.waiting >= b.config.MaxQueueDepth {
		b.rejected++
		b.mu.Unlock()
		b.sink.Emit(Event{Unit: b.name, Type: EventRejection, Time: time.Now()})
		return &BulkheadOverflowError{Unit: b.name}
	}
	b.waiting++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.waiting--
		b.mu.Unlock()
	}()

	waitCtx := ctx
	if b.config.QueueWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.config.QueueWait)
		defer cancel()
	}

	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			// The caller's own context ended; don't mask that.
			return ctx.Err()
		}
		b.mu.Lock()
		b.rejected++
		b.mu.Unlock()
		b.sink.Emit(Event{Unit: b.name, Type: EventRejection, Time: time.Now()})
		return &BulkheadOverflowError{Unit: b.name}
	}

	b.admitted()
	return nil
}

// Release frees a slot claimed by Acquire.
func (b *Bulkhead) Release() {
	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	b.sem.Release(1)
}

// Execute runs op within the bulkhead, releasing the slot on every exit
// path.
func (b *Bulkhead) Execute(ctx context.Context, op Operation) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()

	return op(ctx)
}

func (b *Bulkhead) admitted() {
	b.mu.Lock()
	b.active++
	b.mu.Unlock()
}

// inFlight reports the number of active slots, used by the registry to
// skip idle eviction of busy units.
func (b *Bulkhead) inFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// BulkheadSnapshot contains bulkhead occupancy statistics.
type BulkheadSnapshot struct {
	Active        int
	Waiting       int
	MaxConcurrent int
	MaxQueueDepth int
	Rejected      int64
}

// Snapshot returns the bulkhead's current occupancy.
func (b *Bulkhead) Snapshot() BulkheadSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BulkheadSnapshot{
		Active:        b.active,
		Waiting:       b.waiting,
		MaxConcurrent: b.config.MaxConcurrent,
		MaxQueueDepth: b.config.MaxQueueDepth,
		Rejected:      b.rejected,
	}
}
