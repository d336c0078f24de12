package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewBulkhead_Defaults(t *testing.T) {
	b := NewBulkhead("api", BulkheadConfig{}, nil)

	if b.config.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", b.config.MaxConcurrent)
	}
	if b.config.MaxQueueDepth != 0 {
		t.Errorf("MaxQueueDepth = %d, want 0", b.config.MaxQueueDepth)
	}
}

func TestBulkhead_RejectsBeyondCapacity(t *testing.T) {
	b := NewBulkhead("api", BulkheadConfig{MaxConcurrent: 2}, nil)

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() = %v", err)
	}
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("second Acquire() = %v", err)
	}

	// No queue configured: the third submission is rejected immediately.
	err := b.Acquire(context.Background())
	if !errors.Is(err, ErrBulkheadOverflow) {
		t.Fatalf("third Acquire() = %v, want ErrBulkheadOverflow", err)
	}

	var boe *BulkheadOverflowError
	if !errors.As(err, &boe) || boe.Unit != "api" {
		t.Errorf("error does not carry pool name: %v", err)
	}

	// Releasing one slot admits exactly one more.
	b.Release()
	if err := b.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire() after Release() = %v, want nil", err)
	}
	if err := b.Acquire(context.Background()); !errors.Is(err, ErrBulkheadOverflow) {
		t.Errorf("Acquire() at capacity = %v, want ErrBulkheadOverflow", err)
	}
}

func TestBulkhead_QueueAdmitsWhenSlotFrees(t *testing.T) {
	b := NewBulkhead("api", BulkheadConfig{
		MaxConcurrent: 1,
		MaxQueueDepth: 1,
	}, nil)

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}

	admitted := make(chan error, 1)
	go func() {
		admitted <- b.Acquire(context.Background())
	}()

	// Wait until the goroutine is queued.
	waitFor(t, func() bool { return b.Snapshot().Waiting == 1 })

	b.Release()

	select {
	case err := <-admitted:
		if err != nil {
			t.Errorf("queued Acquire() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued caller was not admitted after Release")
	}
}

func TestBulkhead_QueueDepthBound(t *testing.T) {
	b := NewBulkhead("api", BulkheadConfig{
		MaxConcurrent: 1,
		MaxQueueDepth: 1,
	}, nil)

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queued := make(chan error, 1)
	go func() {
		queued <- b.Acquire(ctx)
	}()
	waitFor(t, func() bool { return b.Snapshot().Waiting == 1 })

	// Queue is full now: the next submission is rejected, not queued.
	if err := b.Acquire(context.Background()); !errors.Is(err, ErrBulkheadOverflow) {
		t.Errorf("Acquire() with full queue = %v, want ErrBulkheadOverflow", err)
	}

	cancel()
	if err := <-queued; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled queued Acquire() = %v, want context.Canceled", err)
	}
}

func TestBulkhead_QueueWaitTimeout(t *testing.T) {
	b := NewBulkhead("api", BulkheadConfig{
		MaxConcurrent: 1,
		MaxQueueDepth: 1,
		QueueWait:     20 * time.Millisecond,
	}, nil)

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}

	start := time.Now()
	err := b.Acquire(context.Background())
	if !errors.Is(err, ErrBulkheadOverflow) {
		t.Errorf("timed-out Acquire() = %v, want ErrBulkheadOverflow", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Acquire() returned after %v, want >= QueueWait", elapsed)
	}
}

func TestBulkhead_CallerCancellation(t *testing.T) {
	b := NewBulkhead("api", BulkheadConfig{
		MaxConcurrent: 1,
		MaxQueueDepth: 1,
		QueueWait:     time.Minute,
	}, nil)

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Acquire(ctx)
	}()
	waitFor(t, func() bool { return b.Snapshot().Waiting == 1 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() after caller cancel = %v, want context.Canceled", err)
	}
}

func TestBulkhead_Execute_ReleasesOnError(t *testing.T) {
	b := NewBulkhead("api", BulkheadConfig{MaxConcurrent: 1}, nil)
	testErr := errors.New("boom")

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		return testErr
	})
	if err != testErr {
		t.Errorf("Execute() = %v, want %v", err, testErr)
	}

	// The slot must be free again.
	if err := b.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire() after failed Execute = %v, want nil", err)
	}
}

func TestBulkhead_SnapshotCountsRejections(t *testing.T) {
	b := NewBulkhead("api", BulkheadConfig{MaxConcurrent: 1}, nil)

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	_ = b.Acquire(context.Background())
	_ = b.Acquire(context.Background())

	s := b.Snapshot()
	if s.Active != 1 {
		t.Errorf("Active = %d, want 1", s.Active)
	}
	if s.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", s.Rejected)
	}
}

func TestBulkhead_ConcurrentLoad(t *testing.T) {
	const workers = 40

	b := NewBulkhead("api", BulkheadConfig{MaxConcurrent: 5}, nil)

	var mu sync.Mutex
	var peak, current int

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				current--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 5 {
		t.Errorf("peak concurrency = %d, want <= 5", peak)
	}
	if b.Snapshot().Active != 0 {
		t.Errorf("Active after drain = %d, want 0", b.Snapshot().Active)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}
