package resilience

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// UnitConfig holds the per-unit tuning knobs. Zero values inherit from
// the registry defaults, which in turn fall back to the package
// defaults, so a partially specified unit only overrides what it names.
type UnitConfig struct {
	// Circuit breaker.
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`

	// Bulkhead.
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxQueueDepth int           `yaml:"max_queue_depth"`
	QueueWait     time.Duration `yaml:"queue_wait"`

	// Rate limiting, applied when the caller supplies a rate-limit key.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

// merge returns c with zero fields filled in from base.
func (c UnitConfig) merge(base UnitConfig) UnitConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = base.FailureThreshold
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = base.SuccessThreshold
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = base.RecoveryTimeout
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = base.MaxConcurrent
	}
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = base.MaxQueueDepth
	}
	if c.QueueWait == 0 {
		c.QueueWait = base.QueueWait
	}
	if c.RateLimit == 0 {
		c.RateLimit = base.RateLimit
	}
	if c.RateWindow == 0 {
		c.RateWindow = base.RateWindow
	}
	return c
}

// Config is the static configuration surface for the whole subsystem:
// registry defaults, per-unit overrides and the background loop cadence.
type Config struct {
	// Defaults applies to every unit not listed in Units, and fills in
	// fields a listed unit leaves at zero.
	Defaults UnitConfig `yaml:"defaults"`

	// Units maps unit names to their overrides.
	Units map[string]UnitConfig `yaml:"units"`

	// SweepInterval is how often open breakers are checked for recovery
	// eligibility.
	// Default: 5 seconds
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// EvictionInterval is how often the registry scans for idle units.
	// Default: 1 hour
	EvictionInterval time.Duration `yaml:"eviction_interval"`

	// IdleRetention is how long a unit may sit with no activity before
	// eviction removes it.
	// Default: 24 hours
	IdleRetention time.Duration `yaml:"idle_retention"`
}

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}

	return &cfg, nil
}

// Validate rejects negative or otherwise meaningless settings. Zero
// values are valid everywhere and mean "use the default".
func (c *Config) Validate() error {
	if err := validateUnit("defaults", c.Defaults); err != nil {
		return err
	}
	for name, unit := range c.Units {
		if name == "" {
			return fmt.Errorf("unit with empty name")
		}
		if err := validateUnit(name, unit); err != nil {
			return err
		}
	}

	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must not be negative, got %v", c.SweepInterval)
	}
	if c.EvictionInterval < 0 {
		return fmt.Errorf("eviction_interval must not be negative, got %v", c.EvictionInterval)
	}
	if c.IdleRetention < 0 {
		return fmt.Errorf("idle_retention must not be negative, got %v", c.IdleRetention)
	}

	return nil
}

func validateUnit(name string, u UnitConfig) error {
	check := func(field string, v int) error {
		if v < 0 {
			return fmt.Errorf("unit %q: %s must not be negative, got %d", name, field, v)
		}
		return nil
	}

	if err := check("failure_threshold", u.FailureThreshold); err != nil {
		return err
	}
	if err := check("success_threshold", u.SuccessThreshold); err != nil {
		return err
	}
	if err := check("max_concurrent", u.MaxConcurrent); err != nil {
		return err
	}
	if err := check("max_queue_depth", u.MaxQueueDepth); err != nil {
		return err
	}
	if err := check("rate_limit", u.RateLimit); err != nil {
		return err
	}
	if u.RecoveryTimeout < 0 {
		return fmt.Errorf("unit %q: recovery_timeout must not be negative, got %v", name, u.RecoveryTimeout)
	}
	if u.QueueWait < 0 {
		return fmt.Errorf("unit %q: queue_wait must not be negative, got %v", name, u.QueueWait)
	}
	if u.RateWindow < 0 {
		return fmt.Errorf("unit %q: rate_window must not be negative, got %v", name, u.RateWindow)
	}

	return nil
}
