package obs

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	backendRoundTrip *prometheus.HistogramVec
	backendErrors    *prometheus.CounterVec
	writeConflicts   prometheus.Counter
	verifyAttempts   prometheus.Histogram
	verifyUnmatched  prometheus.Counter
	loginFailures    *prometheus.CounterVec
	backendUp        *prometheus.GaugeVec
	breakerState     *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_requests_total",
		Help: "Total HTTP requests",
	}, []string{"route", "status_class"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_request_duration_seconds",
		Help:    "HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_store_cache_total",
		Help: "Write-through cache lookups",
	}, []string{"result"})

	backendRoundTrip := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_backend_roundtrip_seconds",
		Help:    "Backend round trip duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "op"})

	backendErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_backend_errors_total",
		Help: "Total backend errors",
	}, []string{"backend", "op", "category"})

	writeConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_write_conflicts_total",
		Help: "Writes rejected by an optimistic revision check",
	})

	verifyAttempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_verify_attempts",
		Help:    "Read-back attempts per verified write",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
	})

	verifyUnmatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_verify_unmatched_total",
		Help: "Writes whose read-back did not converge within budget",
	})

	loginFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_login_failures_total",
		Help: "Rejected login attempts",
	}, []string{"reason"})

	backendUp := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planner_backend_up",
		Help: "Result of the last active backend probe",
	}, []string{"backend"})

	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "planner_backend_breaker_state",
		Help: "Backend circuit breaker state (0 closed, 1 open, 2 half open)",
	}, []string{"backend"})

	registry.MustRegister(requests, requestDuration, cacheLookups, backendRoundTrip, backendErrors, writeConflicts, verifyAttempts, verifyUnmatched, loginFailures, backendUp, breakerState)

	return &Metrics{
		registry:         registry,
		requests:         requests,
		requestDuration:  requestDuration,
		cacheLookups:     cacheLookups,
		backendRoundTrip: backendRoundTrip,
		backendErrors:    backendErrors,
		writeConflicts:   writeConflicts,
		verifyAttempts:   verifyAttempts,
		verifyUnmatched:  verifyUnmatched,
		loginFailures:    loginFailures,
		backendUp:        backendUp,
		breakerState:     breakerState,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveBackendRoundTrip(backend string, op string, duration time.Duration) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	m.backendRoundTrip.WithLabelValues(defaultString(backend, "unknown"), op).Observe(duration.Seconds())
}

func (m *Metrics) RecordBackendError(backend string, op string, category string) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	m.backendErrors.WithLabelValues(defaultString(backend, "unknown"), op, defaultString(category, "unknown")).Inc()
}

func (m *Metrics) RecordWriteConflict() {
	if m == nil {
		return
	}
	m.writeConflicts.Inc()
}

func (m *Metrics) ObserveVerify(attempts int, matched bool) {
	if m == nil {
		return
	}
	m.verifyAttempts.Observe(float64(attempts))
	if !matched {
		m.verifyUnmatched.Inc()
	}
}

func (m *Metrics) RecordLoginFailure(reason string) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	m.loginFailures.WithLabelValues(defaultString(reason, "unknown")).Inc()
}

func (m *Metrics) SetBackendUp(backend string, up bool) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	value := 0.0
	if up {
		value = 1.0
	}
	m.backendUp.WithLabelValues(defaultString(backend, "unknown")).Set(value)
}

// SetBreakerState records 0 for closed, 1 for open and 2 for half open.
func (m *Metrics) SetBreakerState(backend string, state int) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	m.breakerState.WithLabelValues(defaultString(backend, "unknown")).Set(float64(state))
}

func statusClass(status int) string {
	if status <= 0 {
		return "unknown"
	}
	class := status / 100
	return fmt.Sprintf("%dxx", class)
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
