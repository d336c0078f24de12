package resilience

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRegistry_GetOrCreate_ReturnsSameInstance(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})

	cb1, b1 := reg.GetOrCreate("db")
	cb2, b2 := reg.GetOrCreate("db")

	if cb1 != cb2 {
		t.Error("GetOrCreate returned different breakers for the same name")
	}
	if b1 != b2 {
		t.Error("GetOrCreate returned different bulkheads for the same name")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistry_GetOrCreate_ConcurrentCreation(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})

	const goroutines = 50
	breakers := make([]*CircuitBreaker, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			breakers[n], _ = reg.GetOrCreate("db")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if breakers[i] != breakers[0] {
			t.Fatal("concurrent GetOrCreate produced more than one instance")
		}
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistry_ConfigResolution(t *testing.T) {
	reg := NewRegistry(RegistryConfig{
		Defaults: UnitConfig{
			FailureThreshold: 7,
			MaxConcurrent:    3,
		},
		Units: map[string]UnitConfig{
			"slow-api": {MaxConcurrent: 1},
		},
	})

	// Listed unit: override merged over defaults.
	cfg := reg.UnitConfigFor("slow-api")
	if cfg.MaxConcurrent != 1 {
		t.Errorf("slow-api MaxConcurrent = %d, want 1", cfg.MaxConcurrent)
	}
	if cfg.FailureThreshold != 7 {
		t.Errorf("slow-api FailureThreshold = %d, want 7 (inherited)", cfg.FailureThreshold)
	}

	// Unlisted unit: defaults merged over package base.
	cfg = reg.UnitConfigFor("anything")
	if cfg.FailureThreshold != 7 {
		t.Errorf("unlisted FailureThreshold = %d, want 7", cfg.FailureThreshold)
	}
	if cfg.SuccessThreshold != 1 {
		t.Errorf("unlisted SuccessThreshold = %d, want 1 (package default)", cfg.SuccessThreshold)
	}

	// The created breaker observes the resolved config.
	cb, _ := reg.GetOrCreate("slow-api")
	if cb.config.FailureThreshold != 7 {
		t.Errorf("breaker FailureThreshold = %d, want 7", cb.config.FailureThreshold)
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := NewRegistry(RegistryConfig{
		Units: map[string]UnitConfig{
			"db": {FailureThreshold: 1},
		},
	})

	reg.Breaker("db").RecordFailure()
	reg.Breaker("cache").RecordSuccess()

	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d units, want 2", len(snap))
	}

	db := snap["db"]
	if db.State != StateOpen || db.Healthy {
		t.Errorf("db = %+v, want open and unhealthy", db)
	}
	if db.LastFailure.IsZero() {
		t.Error("db.LastFailure is zero, want set")
	}

	cache := snap["cache"]
	if cache.State != StateClosed || !cache.Healthy {
		t.Errorf("cache = %+v, want closed and healthy", cache)
	}
}

func TestRegistry_SweepOnce_RecoversEligibleBreakers(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(RegistryConfig{
		Clock: clock,
		Units: map[string]UnitConfig{
			"db":    {FailureThreshold: 1, RecoveryTimeout: 10 * time.Second},
			"cache": {FailureThreshold: 1, RecoveryTimeout: time.Hour},
		},
	})

	reg.Breaker("db").RecordFailure()
	reg.Breaker("cache").RecordFailure()

	clock.Advance(30 * time.Second)
	reg.SweepOnce()

	// Only the breaker past its recovery timeout transitions.
	if got := reg.Breaker("db").State(); got != StateHalfOpen {
		t.Errorf("db state after sweep = %v, want half-open", got)
	}
	if got := reg.Breaker("cache").State(); got != StateOpen {
		t.Errorf("cache state after sweep = %v, want open", got)
	}
}

func TestRegistry_SweepEmitsTransitionEvents(t *testing.T) {
	var mu sync.Mutex
	var transitions []Event

	clock := newFakeClock()
	reg := NewRegistry(RegistryConfig{
		Clock: clock,
		Sink: SinkFunc(func(ev Event) {
			if ev.Type != EventStateTransition {
				return
			}
			mu.Lock()
			transitions = append(transitions, ev)
			mu.Unlock()
		}),
		Units: map[string]UnitConfig{
			"db": {FailureThreshold: 1, RecoveryTimeout: time.Second},
		},
	})

	reg.Breaker("db").RecordFailure() // closed>open
	clock.Advance(2 * time.Second)
	reg.SweepOnce() // open>half-open

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 {
		t.Fatalf("got %d transition events, want 2", len(transitions))
	}
	if transitions[1].From != StateOpen || transitions[1].To != StateHalfOpen {
		t.Errorf("sweep transition = %+v, want open>half-open", transitions[1])
	}
}

func TestRegistry_EvictIdleOnce(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(RegistryConfig{
		Clock:         clock,
		IdleRetention: time.Hour,
	})

	reg.Breaker("stale").RecordSuccess()
	reg.GetOrCreate("untouched")

	clock.Advance(30 * time.Minute)
	reg.Breaker("active").RecordSuccess()

	clock.Advance(45 * time.Minute)
	reg.EvictIdleOnce()

	// stale (75m idle) and untouched (75m since creation) go; active
	// (45m idle) stays.
	if reg.Len() != 1 {
		t.Fatalf("Len() after eviction = %d, want 1", reg.Len())
	}
	if _, ok := reg.Snapshot()["active"]; !ok {
		t.Error("active unit was evicted, want kept")
	}
}

func TestRegistry_EvictSkipsUnitsWithWorkInFlight(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(RegistryConfig{
		Clock:         clock,
		IdleRetention: time.Hour,
	})

	cb, b := reg.GetOrCreate("busy")
	cb.RecordSuccess()
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Hour)
	reg.EvictIdleOnce()

	if reg.Len() != 1 {
		t.Error("unit with in-flight work was evicted")
	}

	b.Release()
	reg.EvictIdleOnce()
	if reg.Len() != 0 {
		t.Error("idle unit survived eviction after release")
	}
}

func TestRegistry_StartStop(t *testing.T) {
	reg := NewRegistry(RegistryConfig{
		SweepInterval:    time.Millisecond,
		EvictionInterval: time.Millisecond,
	})

	reg.Start()
	reg.Start() // idempotent

	time.Sleep(10 * time.Millisecond)

	reg.Stop()
	reg.Stop() // idempotent
}

func TestRegistry_StopWithoutStart(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	reg.Stop() // must not hang
}

func TestRegistry_SweepPanicIsContained(t *testing.T) {
	var mu sync.Mutex
	var reported []error

	reg := NewRegistry(RegistryConfig{
		SweepInterval: time.Millisecond,
		Sink: SinkFunc(func(ev Event) {
			if ev.Type == EventStateTransition {
				panic("sink blew up")
			}
		}),
		OnSweepError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
		Units: map[string]UnitConfig{
			"db": {FailureThreshold: 1, RecoveryTimeout: time.Millisecond},
		},
	})

	// Open the breaker without tripping the panicking sink path: the
	// failure event is fine, only transitions panic. Recording the
	// failure transitions closed>open, which panics on this goroutine,
	// so do it inside a recover.
	func() {
		defer func() { _ = recover() }()
		reg.Breaker("db").RecordFailure()
	}()

	reg.Start()
	defer reg.Stop()

	// The sweep will find the open breaker, transition it, panic in the
	// sink, report through OnSweepError and keep running.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) > 0
	})
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := &Config{
		Defaults:      UnitConfig{FailureThreshold: 2},
		Units:         map[string]UnitConfig{"db": {MaxConcurrent: 1}},
		SweepInterval: time.Second,
	}

	reg := NewRegistryFromConfig(cfg, nil, nil)

	if got := reg.UnitConfigFor("db").FailureThreshold; got != 2 {
		t.Errorf("db FailureThreshold = %d, want 2", got)
	}
	if reg.config.SweepInterval != time.Second {
		t.Errorf("SweepInterval = %v, want 1s", reg.config.SweepInterval)
	}
}
