package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/glr76/PlannyWeb/internal/auth"
	"github.com/glr76/PlannyWeb/internal/limits"
	"github.com/glr76/PlannyWeb/internal/obs"
	"github.com/glr76/PlannyWeb/internal/planner"
	"github.com/glr76/PlannyWeb/internal/runtime"
	"github.com/glr76/PlannyWeb/internal/store"
)

type Options struct {
	Store        *store.Store
	Auth         *auth.Authenticator
	Selections   *planner.Selections
	Metrics      *obs.Metrics
	Logger       zerolog.Logger
	PublicFS     afero.Fs
	MaxBodyBytes int64
	CORSOrigins  []string
	Inflight     *runtime.InflightTracker
	Overload     *limits.OverloadLimiter
	Now          func() time.Time
}

type handler struct {
	store        *store.Store
	auth         *auth.Authenticator
	selections   *planner.Selections
	metrics      *obs.Metrics
	logger       zerolog.Logger
	accessLog    zerolog.Logger
	maxBodyBytes int64
	now          func() time.Time
}

// NewHandler assembles the HTTP surface: the file API over the store,
// selection and export helpers, the session endpoints, health, metrics
// and the static front-end.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	if opts.Auth == nil {
		return nil, errors.New("authenticator is nil")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	selections := opts.Selections
	if selections == nil {
		selections = planner.New(opts.Store, now)
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = limits.Default().MaxBodyBytes
	}

	h := &handler{
		store:        opts.Store,
		auth:         opts.Auth,
		selections:   selections,
		metrics:      opts.Metrics,
		logger:       obs.Component(opts.Logger, "web"),
		accessLog:    obs.Component(opts.Logger, "access"),
		maxBodyBytes: maxBody,
		now:          now,
	}

	write := func(fn http.HandlerFunc) http.Handler {
		return opts.Auth.RequireRole(auth.RoleWrite, fn)
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/files/list", h.handleList)
	api.HandleFunc("GET /api/files/text/{name...}", h.handleTextGet)
	api.Handle("PUT /api/files/text/{name...}", write(h.handleTextPut))
	api.HandleFunc("GET /api/files/{name...}", h.handleLegacyGet)
	api.Handle("PUT /api/files/{name...}", write(h.handleLegacyPut))
	api.HandleFunc("GET /api/years", h.handleYears)
	api.HandleFunc("GET /api/selections/combined", h.handleCombined)
	api.HandleFunc("GET /api/selections/{year}", h.handleSelection)
	api.HandleFunc("POST /api/export/xlsx", h.handleExport)
	api.Handle("POST /api/export/xlsx/save", write(h.handleExportSave))
	api.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, r, http.StatusNotFound, "not found")
	})

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	apiHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"ETag", "X-Write-Cache", RequestIDHeader},
	}).Handler(noCache(h.shed(opts.Overload, api)))

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("POST /login", opts.Auth.HandleLogin)
	mux.HandleFunc("POST /logout", opts.Auth.HandleLogout)
	mux.HandleFunc("GET /me", opts.Auth.HandleMe)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", opts.Metrics.Handler())

	publicFS := opts.PublicFS
	if publicFS != nil {
		mux.Handle("/", staticHandler(publicFS))
	}

	return opts.Inflight.Track(h.observe(mux)), nil
}

// shed rejects API work with 503 once the overload limiter is saturated.
func (h *handler) shed(limiter *limits.OverloadLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, err := limiter.Admit(r.Context())
		if err != nil {
			h.logger.Debug().Err(err).Str("path", r.URL.Path).Int("queued", limiter.Waiting()).Msg("request shed")
			w.Header().Set("Retry-After", "1")
			writeErrorMessage(w, r, http.StatusServiceUnavailable, "server busy")
			return
		}
		defer release()
		next.ServeHTTP(w, r)
	})
}

// observe assigns the request id, records the response and emits the
// access log line and request metrics.
func (h *handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = NewRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := auth.WithUserSlot(WithRequestID(r.Context(), requestID))
		req := r.WithContext(ctx)
		rec := NewResponseRecorder(w)
		next.ServeHTTP(rec, req)

		duration := time.Since(start)
		route := routeLabel(req)
		h.metrics.ObserveRequest(route, rec.Status(), duration)
		obs.LogAccess(h.accessLog, obs.RequestContext{
			RequestID:  requestID,
			Method:     r.Method,
			Path:       r.URL.Path,
			Route:      route,
			Status:     rec.Status(),
			Duration:   duration,
			BytesIn:    max(r.ContentLength, 0),
			BytesOut:   rec.BytesWritten(),
			WriteCache: rec.WriteCache(),
			User:       auth.UserFrom(ctx),
			UserAgent:  r.UserAgent(),
			RemoteAddr: r.RemoteAddr,
			Headers:    r.Header,
		})
	})
}

// routeLabel keeps metric labels bounded: the mux pattern, never the raw
// path.
func routeLabel(r *http.Request) string {
	if r.Pattern == "/" {
		return "static"
	}
	return r.Pattern
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
		header.Set("Pragma", "no-cache")
		header.Set("Expires", "0")
		header.Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

func setWriteCache(w http.ResponseWriter, hit bool) {
	state := "miss"
	if hit {
		state = "hit"
	}
	w.Header().Set("X-Write-Cache", state)
	if reporter, ok := w.(writeCacheReporter); ok {
		reporter.SetWriteCache(state)
	}
}
