package transport

import (
	"net"
	"net/http"
	"time"

	"github.com/glr76/PlannyWeb/internal/config"
)

// UserAgent is sent on backend API calls that do not set their own.
const UserAgent = "planny-server/1.0"

// Options shape the client the REST backends (GitHub, Supabase) use.
// Zero fields take the defaults of backend.http.*.
type Options struct {
	Timeout               time.Duration
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
	MaxIdleConnsPerHost   int
	UserAgent             string
}

func FromConfig(cfg config.HTTPConfig) Options {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return Options{
		Timeout:               ms(cfg.TimeoutMS),
		DialTimeout:           ms(cfg.DialTimeoutMS),
		ResponseHeaderTimeout: ms(cfg.ResponseHeaderTimeoutMS),
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.ResponseHeaderTimeout <= 0 {
		o.ResponseHeaderTimeout = 20 * time.Second
	}
	// a read must never wait for headers longer than the whole call may take
	if o.ResponseHeaderTimeout > o.Timeout {
		o.ResponseHeaderTimeout = o.Timeout
	}
	if o.MaxIdleConnsPerHost <= 0 {
		o.MaxIdleConnsPerHost = 16
	}
	if o.UserAgent == "" {
		o.UserAgent = UserAgent
	}
	return o
}

// NewClient returns a client whose requests bypass intermediate caches
// and identify the planner, so reads observe the backend's latest state.
func NewClient(opts Options) *http.Client {
	opts = opts.withDefaults()
	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 30 * time.Second}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   opts.DialTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		IdleConnTimeout:       90 * time.Second,
		// both REST backends talk to a single API host
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &backendHeaders{next: base, userAgent: opts.UserAgent},
	}
}

type backendHeaders struct {
	next      http.RoundTripper
	userAgent string
}

func (t *backendHeaders) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" && req.Header.Get("Cache-Control") != "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Cache-Control") == "" {
		req.Header.Set("Cache-Control", "no-cache")
	}
	return t.next.RoundTrip(req)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the
// wrapped transport.
func (t *backendHeaders) CloseIdleConnections() {
	if c, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
