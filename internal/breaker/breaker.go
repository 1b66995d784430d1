package breaker

import (
	"sync"
	"time"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type Config struct {
	Enabled                     bool
	FailureRateThresholdPercent int
	MinimumRequests             int
	EvaluationWindow            time.Duration
	OpenDuration                time.Duration
	HalfOpenMaxProbes           int
}

const (
	defaultFailureRate     = 50
	defaultMinimumRequests = 5
	defaultWindow          = 10 * time.Second
	defaultOpenDuration    = 15 * time.Second
	defaultHalfOpenProbes  = 1
)

func (c Config) withDefaults() Config {
	if c.FailureRateThresholdPercent <= 0 {
		c.FailureRateThresholdPercent = defaultFailureRate
	}
	if c.MinimumRequests <= 0 {
		c.MinimumRequests = defaultMinimumRequests
	}
	if c.EvaluationWindow <= 0 {
		c.EvaluationWindow = defaultWindow
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = defaultOpenDuration
	}
	if c.HalfOpenMaxProbes <= 0 {
		c.HalfOpenMaxProbes = defaultHalfOpenProbes
	}
	return c
}

// Breaker counts failures over a fixed window. Once the failure rate
// reaches the threshold it opens and rejects calls for OpenDuration, then
// lets HalfOpenMaxProbes calls through: all of them must succeed to close
// it again, any failure reopens it.
type Breaker struct {
	mu            sync.Mutex
	cfg           Config
	now           func() time.Time
	onChange      func(State)
	state         State
	reqCount      int
	failCount     int
	windowStart   time.Time
	openUntil     time.Time
	probeInFlight int
	probeSuccess  int
}

func New(cfg Config, now func() time.Time, onChange func(State)) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		cfg:         cfg.withDefaults(),
		now:         now,
		onChange:    onChange,
		state:       StateClosed,
		windowStart: now(),
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by exactly one Report.
func (b *Breaker) Allow() bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Before(b.openUntil) {
			return false
		}
		b.transition(StateHalfOpen)
		b.resetProbes()
	}
	if b.probeInFlight >= b.cfg.HalfOpenMaxProbes {
		return false
	}
	b.probeInFlight++
	return true
}

func (b *Breaker) Report(success bool) {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		if now.Sub(b.windowStart) > b.cfg.EvaluationWindow {
			b.windowStart = now
			b.reqCount, b.failCount = 0, 0
		}
		b.reqCount++
		if !success {
			b.failCount++
		}
		if b.reqCount >= b.cfg.MinimumRequests && b.failCount*100/b.reqCount >= b.cfg.FailureRateThresholdPercent {
			b.open(now)
		}
	case StateHalfOpen:
		if b.probeInFlight > 0 {
			b.probeInFlight--
		}
		if !success {
			b.open(now)
			return
		}
		b.probeSuccess++
		if b.probeSuccess >= b.cfg.HalfOpenMaxProbes {
			b.close(now)
		}
	}
}

func (b *Breaker) open(now time.Time) {
	b.openUntil = now.Add(b.cfg.OpenDuration)
	b.transition(StateOpen)
}

func (b *Breaker) close(now time.Time) {
	b.windowStart = now
	b.reqCount, b.failCount = 0, 0
	b.resetProbes()
	b.transition(StateClosed)
}

func (b *Breaker) resetProbes() {
	b.probeInFlight = 0
	b.probeSuccess = 0
}

func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	b.state = next
	if b.onChange != nil {
		b.onChange(next)
	}
}
