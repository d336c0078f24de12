package resilience

import (
	"fmt"
	"sync"
	"time"
)

// Package-level defaults applied when neither the unit nor the registry
// defaults specify a value.
var baseUnitConfig = UnitConfig{
	FailureThreshold: 5,
	SuccessThreshold: 1,
	RecoveryTimeout:  30 * time.Second,
	MaxConcurrent:    10,
	MaxQueueDepth:    0,
	RateLimit:        0, // unlimited unless configured
	RateWindow:       time.Minute,
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Defaults fills in unset fields for every unit.
	Defaults UnitConfig

	// Units maps unit names to overrides applied when the unit is first
	// created. Units not listed here get Defaults.
	Units map[string]UnitConfig

	// SweepInterval is how often open breakers are checked for recovery
	// eligibility.
	// Default: 5 seconds
	SweepInterval time.Duration

	// EvictionInterval is how often idle units are scanned for removal.
	// Default: 1 hour
	EvictionInterval time.Duration

	// IdleRetention is how long a unit may be inactive before the
	// eviction scan removes it.
	// Default: 24 hours
	IdleRetention time.Duration

	// Sink receives observability events from every unit.
	Sink Sink

	// OnSweepError is called when a background loop iteration panics.
	// The loop itself keeps running after a backoff. Runs on the loop's
	// goroutine; must not panic.
	OnSweepError func(err error)

	// Clock supplies time reads. Default: the wall clock.
	Clock Clock
}

// Registry is the process-wide named collection of circuit breakers and
// bulkheads. Each unit name maps to exactly one breaker and one bulkhead,
// created on first reference. The registry is the only owner of unit
// lifecycle; breakers manage their own state transitions.
//
// Construct one Registry per process (or per test) and share it by
// handle. Start launches the recovery sweep and idle eviction loops;
// Stop terminates them.
type Registry struct {
	config RegistryConfig

	mu    sync.RWMutex
	units map[string]*unit

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// unit bundles the breaker and bulkhead sharing one name.
type unit struct {
	breaker  *CircuitBreaker
	bulkhead *Bulkhead
	config   UnitConfig
	created  time.Time
}

// NewRegistry creates a registry. Zero-value config fields take the
// documented defaults.
func NewRegistry(config RegistryConfig) *Registry {
	// Apply defaults
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Second
	}
	if config.EvictionInterval <= 0 {
		config.EvictionInterval = time.Hour
	}
	if config.IdleRetention <= 0 {
		config.IdleRetention = 24 * time.Hour
	}
	if config.Sink == nil {
		config.Sink = NopSink{}
	}
	if config.Clock == nil {
		config.Clock = realClock{}
	}
	config.Defaults = config.Defaults.merge(baseUnitConfig)

	return &Registry{
		config: config,
		units:  make(map[string]*unit),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// NewRegistryFromConfig builds a registry from a loaded Config plus the
// runtime-only dependencies that cannot live in a file.
func NewRegistryFromConfig(cfg *Config, sink Sink, onSweepError func(error)) *Registry {
	return NewRegistry(RegistryConfig{
		Defaults:         cfg.Defaults,
		Units:            cfg.Units,
		SweepInterval:    cfg.SweepInterval,
		EvictionInterval: cfg.EvictionInterval,
		IdleRetention:    cfg.IdleRetention,
		Sink:             sink,
		OnSweepError:     onSweepError,
	})
}

// GetOrCreate returns the unit's breaker and bulkhead, creating them on
// first reference. Concurrent creators of the same name resolve to one
// stored instance. Overrides beyond the static configuration are merged
// over the registry defaults; they only apply on creation.
func (r *Registry) GetOrCreate(name string, overrides ...UnitConfig) (*CircuitBreaker, *Bulkhead) {
	r.mu.RLock()
	u, ok := r.units[name]
	r.mu.RUnlock()
	if ok {
		return u.breaker, u.bulkhead
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if u, ok = r.units[name]; ok {
		return u.breaker, u.bulkhead
	}

	cfg := r.unitConfigLocked(name)
	for _, o := range overrides {
		cfg = o.merge(cfg)
	}

	u = &unit{
		breaker: NewCircuitBreaker(name, CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			SuccessThreshold: cfg.SuccessThreshold,
			RecoveryTimeout:  cfg.RecoveryTimeout,
			Clock:            r.config.Clock,
		}, r.config.Sink),
		bulkhead: NewBulkhead(name, BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueueDepth: cfg.MaxQueueDepth,
			QueueWait:     cfg.QueueWait,
		}, r.config.Sink),
		config:  cfg,
		created: r.config.Clock.Now(),
	}
	r.units[name] = u

	return u.breaker, u.bulkhead
}

// Breaker returns the breaker for name, creating the unit if needed.
func (r *Registry) Breaker(name string) *CircuitBreaker {
	cb, _ := r.GetOrCreate(name)
	return cb
}

// Bulkhead returns the bulkhead for name, creating the unit if needed.
func (r *Registry) Bulkhead(name string) *Bulkhead {
	_, b := r.GetOrCreate(name)
	return b
}

// UnitConfigFor returns the effective configuration for name: the static
// per-unit overrides merged over the defaults. It does not create the
// unit.
func (r *Registry) UnitConfigFor(name string) UnitConfig {
	r.mu.RLock()
	if u, ok := r.units[name]; ok {
		cfg := u.config
		r.mu.RUnlock()
		return cfg
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unitConfigLocked(name)
}

func (r *Registry) unitConfigLocked(name string) UnitConfig {
	if override, ok := r.config.Units[name]; ok {
		return override.merge(r.config.Defaults)
	}
	return r.config.Defaults
}

// UnitHealth is one unit's entry in the health snapshot.
type UnitHealth struct {
	State       State     `json:"state"`
	Failures    int       `json:"failure_count"`
	Successes   int       `json:"success_count"`
	LastFailure time.Time `json:"last_failure_at"`
	Healthy     bool      `json:"healthy"`
}

// Snapshot returns the health of every known unit, keyed by name. It is
// intended for dashboards and the health endpoint, not the hot path.
func (r *Registry) Snapshot() map[string]UnitHealth {
	r.mu.RLock()
	breakers := make(map[string]*CircuitBreaker, len(r.units))
	for name, u := range r.units {
		breakers[name] = u.breaker
	}
	r.mu.RUnlock()

	// Per-breaker locks are taken outside the registry lock so a slow
	// snapshot never stalls unit creation.
	out := make(map[string]UnitHealth, len(breakers))
	for name, cb := range breakers {
		s := cb.Snapshot()
		out[name] = UnitHealth{
			State:       s.State,
			Failures:    s.Failures,
			Successes:   s.Successes,
			LastFailure: s.LastFailure,
			Healthy:     s.Healthy,
		}
	}
	return out
}

// Len returns the number of known units.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}

// Start launches the recovery sweep and idle eviction loops. It is safe
// to call once; further calls are no-ops.
func (r *Registry) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

// Stop terminates the background loops and waits for them to exit. Safe
// to call multiple times, and safe to call even if Start never ran.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})

	r.startOnce.Do(func() {
		// Start never ran; nothing to wait for.
		close(r.doneCh)
	})
	<-r.doneCh
}

// run is the background loop driving both the recovery sweep and idle
// eviction from a single goroutine. A panic in one iteration is reported
// through OnSweepError and the loop resumes after a backoff.
func (r *Registry) run() {
	defer close(r.doneCh)

	sweep := time.NewTicker(r.config.SweepInterval)
	defer sweep.Stop()
	evict := time.NewTicker(r.config.EvictionInterval)
	defer evict.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-sweep.C:
			if !r.guarded(r.SweepOnce) {
				return
			}
		case <-evict.C:
			if !r.guarded(r.EvictIdleOnce) {
				return
			}
		}
	}
}

// guarded runs fn, converting a panic into an OnSweepError report plus a
// backoff sleep. Reports false when the registry stopped during backoff.
func (r *Registry) guarded(fn func()) (alive bool) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.config.OnSweepError != nil {
				r.config.OnSweepError(fmt.Errorf("resilience: background sweep panic: %v", rec))
			}
			select {
			case <-r.stopCh:
				alive = false
			case <-time.After(r.config.SweepInterval):
				alive = true
			}
		}
	}()

	fn()
	return true
}

// SweepOnce checks every open breaker for recovery eligibility and
// performs the open to half-open transition where due. It is exported so
// operators and tests can force a sweep; the periodic loop calls it on
// every tick. The eligibility check is a pure function of the stored
// failure timestamp, so sweeping concurrently with request traffic is
// safe.
func (r *Registry) SweepOnce() {
	now := r.config.Clock.Now()

	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.units))
	for _, u := range r.units {
		breakers = append(breakers, u.breaker)
	}
	r.mu.RUnlock()

	for _, cb := range breakers {
		cb.tryRecover(now)
	}
}

// EvictIdleOnce removes units with no breaker activity inside the
// retention window. Units with in-flight bulkhead work are kept
// regardless of breaker idleness.
func (r *Registry) EvictIdleOnce() {
	now := r.config.Clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for name, u := range r.units {
		last := u.breaker.lastActivityAt()
		if last.Before(u.created) {
			// Never touched since creation; the creation time counts as
			// activity so dynamically named units still age out.
			last = u.created
		}
		if now.Sub(last) < r.config.IdleRetention {
			continue
		}
		if u.bulkhead.inFlight() > 0 {
			continue
		}
		delete(r.units, name)
	}
}
