package health

import (
	"sync"
	"time"

	"github.com/glr76/PlannyWeb/internal/config"
)

const (
	DefaultInterval               = 15 * time.Second
	DefaultTimeout                = 5 * time.Second
	DefaultUnhealthyAfterFailures = 2
	DefaultHealthyAfterSuccesses  = 1
)

type Config struct {
	Interval               time.Duration
	Timeout                time.Duration
	UnhealthyAfterFailures int
	HealthyAfterSuccesses  int
}

func FromConfig(cfg config.HealthConfig) Config {
	return Config{
		Interval: time.Duration(cfg.IntervalMS) * time.Millisecond,
		Timeout:  time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UnhealthyAfterFailures <= 0 {
		c.UnhealthyAfterFailures = DefaultUnhealthyAfterFailures
	}
	if c.HealthyAfterSuccesses <= 0 {
		c.HealthyAfterSuccesses = DefaultHealthyAfterSuccesses
	}
	return c
}

// Checker turns a stream of probe outcomes into a healthy flag. It flips
// only after the configured number of consecutive failures or successes.
type Checker struct {
	mu        sync.Mutex
	cfg       Config
	healthy   bool
	failures  int
	successes int
	onChange  func(healthy bool)
}

func NewChecker(cfg Config, onChange func(healthy bool)) *Checker {
	return &Checker{cfg: cfg.withDefaults(), healthy: true, onChange: onChange}
}

func (c *Checker) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

func (c *Checker) RecordSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.successes++
	changed := !c.healthy && c.successes >= c.cfg.HealthyAfterSuccesses
	if changed {
		c.healthy = true
	}
	c.mu.Unlock()
	if changed && c.onChange != nil {
		c.onChange(true)
	}
}

func (c *Checker) RecordFailure() {
	c.mu.Lock()
	c.successes = 0
	c.failures++
	changed := c.healthy && c.failures >= c.cfg.UnhealthyAfterFailures
	if changed {
		c.healthy = false
	}
	c.mu.Unlock()
	if changed && c.onChange != nil {
		c.onChange(false)
	}
}
