package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/glr76/PlannyWeb/internal/config"
)

const defaultGrace = 5 * time.Second

// ShutdownPlan times the stop sequence. Drain is an optional pause after
// the listener closes so a platform router stops sending traffic; Grace
// bounds the wait for in-flight writes; ForceClose is a last pause before
// remaining connections are cut.
type ShutdownPlan struct {
	Drain      time.Duration
	Grace      time.Duration
	ForceClose time.Duration
}

// ShutdownPlanFromConfig converts the shutdown section. Zero drain and
// force close mean no pause; zero grace falls back to five seconds.
func ShutdownPlanFromConfig(cfg config.ShutdownConfig) (ShutdownPlan, error) {
	var errs []error
	for _, field := range []struct {
		key   string
		value int
	}{
		{"shutdown.drain_ms", cfg.DrainMS},
		{"shutdown.graceful_timeout_ms", cfg.GracefulTimeoutMS},
		{"shutdown.force_close_ms", cfg.ForceCloseMS},
	} {
		if field.value < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", field.key, field.value))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return ShutdownPlan{}, err
	}
	plan := ShutdownPlan{
		Drain:      time.Duration(cfg.DrainMS) * time.Millisecond,
		Grace:      time.Duration(cfg.GracefulTimeoutMS) * time.Millisecond,
		ForceClose: time.Duration(cfg.ForceCloseMS) * time.Millisecond,
	}
	return plan.withDefaults(), nil
}

func (p ShutdownPlan) withDefaults() ShutdownPlan {
	if p.Grace <= 0 {
		p.Grace = defaultGrace
	}
	if p.Drain < 0 {
		p.Drain = 0
	}
	if p.ForceClose < 0 {
		p.ForceClose = 0
	}
	return p
}
