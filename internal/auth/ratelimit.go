package auth

import (
	"math"
	"net"
	"sync"
	"time"

	"github.com/glr76/PlannyWeb/internal/config"
)

const (
	defaultLoginRPS      = 1
	defaultLoginBurst    = 5
	defaultMaxFailures   = 10
	defaultBlockDuration = 10 * time.Minute
	maxTrackedClients    = 4096
)

type ThrottleConfig struct {
	RPS           int
	Burst         int
	MaxFailures   int
	BlockDuration time.Duration
	Now           func() time.Time
}

func ThrottleFromConfig(cfg config.AuthConfig) ThrottleConfig {
	return ThrottleConfig{
		RPS:           cfg.LoginRPS,
		Burst:         cfg.LoginBurst,
		MaxFailures:   cfg.MaxFailures,
		BlockDuration: time.Duration(cfg.BlockMS) * time.Millisecond,
	}
}

// LoginThrottle paces POST /login per client IP. Each IP has a token
// bucket for attempts and is locked out for BlockDuration once it guesses
// MaxFailures wrong passwords in a row.
type LoginThrottle struct {
	mu          sync.Mutex
	clients     map[string]*loginClient
	rate        float64
	burst       float64
	maxFailures int
	blockFor    time.Duration
	now         func() time.Time
}

type loginClient struct {
	tokens       float64
	refilled     time.Time
	failures     int
	blockedUntil time.Time
}

func NewLoginThrottle(cfg ThrottleConfig) *LoginThrottle {
	rate := cfg.RPS
	if rate <= 0 {
		rate = defaultLoginRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultLoginBurst
	}
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	blockFor := cfg.BlockDuration
	if blockFor <= 0 {
		blockFor = defaultBlockDuration
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &LoginThrottle{
		clients:     make(map[string]*loginClient),
		rate:        float64(rate),
		burst:       float64(burst),
		maxFailures: maxFailures,
		blockFor:    blockFor,
		now:         now,
	}
}

// Check takes one attempt from the client's bucket. When the attempt is
// refused it reports how long the client should wait.
func (l *LoginThrottle) Check(addr string) (time.Duration, bool) {
	if l == nil {
		return 0, true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.client(clientIP(addr), now)
	if now.Before(c.blockedUntil) {
		return c.blockedUntil.Sub(now), false
	}
	c.tokens = min(l.burst, c.tokens+now.Sub(c.refilled).Seconds()*l.rate)
	c.refilled = now
	if c.tokens < 1 {
		wait := (1 - c.tokens) / l.rate
		return time.Duration(wait * float64(time.Second)), false
	}
	c.tokens--
	return 0, true
}

// Failed counts a wrong password and starts the lockout at the limit.
func (l *LoginThrottle) Failed(addr string) {
	if l == nil {
		return
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.client(clientIP(addr), now)
	if now.Before(c.blockedUntil) {
		return
	}
	c.failures++
	if c.failures >= l.maxFailures {
		c.blockedUntil = now.Add(l.blockFor)
		c.failures = 0
	}
}

// Succeeded clears the failure streak; the bucket keeps pacing.
func (l *LoginThrottle) Succeeded(addr string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if c := l.clients[clientIP(addr)]; c != nil {
		c.failures = 0
	}
}

func (l *LoginThrottle) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// client must be called with mu held.
func (l *LoginThrottle) client(ip string, now time.Time) *loginClient {
	if c := l.clients[ip]; c != nil {
		return c
	}
	if len(l.clients) >= maxTrackedClients {
		l.forgetIdle(now)
	}
	c := &loginClient{tokens: l.burst, refilled: now}
	l.clients[ip] = c
	return c
}

// forgetIdle drops clients that are not locked out, have no failure
// streak and whose bucket has refilled.
func (l *LoginThrottle) forgetIdle(now time.Time) {
	refill := time.Duration(math.Ceil(l.burst/l.rate)) * time.Second
	for ip, c := range l.clients {
		if now.Before(c.blockedUntil) || c.failures > 0 {
			continue
		}
		if now.Sub(c.refilled) >= refill {
			delete(l.clients, ip)
		}
	}
}

func clientIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
