package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/glr76/PlannyWeb/internal/auth"
	"github.com/glr76/PlannyWeb/internal/breaker"
	"github.com/glr76/PlannyWeb/internal/cache"
	"github.com/glr76/PlannyWeb/internal/config"
	"github.com/glr76/PlannyWeb/internal/health"
	"github.com/glr76/PlannyWeb/internal/limits"
	"github.com/glr76/PlannyWeb/internal/obs"
	"github.com/glr76/PlannyWeb/internal/retry"
	"github.com/glr76/PlannyWeb/internal/runtime"
	"github.com/glr76/PlannyWeb/internal/server"
	"github.com/glr76/PlannyWeb/internal/store"
	"github.com/glr76/PlannyWeb/internal/web"
)

// App is the wired service: the store over the configured backend, the
// HTTP handler, and the health and tracing side cars.
type App struct {
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *obs.Metrics
	backend  OpenedBackend
	store    *store.Store
	handler  http.Handler
	limits   limits.Limits
	shutdown server.ShutdownPlan
	inflight *runtime.InflightTracker
	tracing  func(context.Context) error

	server  *server.Server
	monitor *health.Monitor
	grpc    *health.GRPCServer

	shutdownOnce sync.Once
	shutdownErr  error
}

func StoreOptions(cfg config.StoreConfig, logger zerolog.Logger, metrics *obs.Metrics, prefix string) store.Options {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return store.Options{
		Cache: cache.NewWriteCache(cache.Options{
			TTL:            ms(cfg.CacheTTLMS),
			MaxObjectBytes: cfg.MaxObjectBytes,
		}),
		Prefix:       prefix,
		ReadTimeout:  ms(cfg.ReadTimeoutMS),
		WriteTimeout: ms(cfg.WriteTimeoutMS),
		Verify: retry.Backoff{
			Base:   ms(cfg.VerifyBaseMS),
			Max:    ms(cfg.VerifyMaxMS),
			Budget: ms(cfg.VerifyBudgetMS),
		},
		VerifyThroughCache: cfg.VerifyThroughCache,
		SkipWriteLock:      !cfg.LockWrites,
		Logger:             logger,
		Metrics:            metrics,
	}
}

// Build validates cfg and wires every component without listening yet.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	warnings, err := config.Validate(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, warning := range warnings {
		logger.Warn().Msg(warning)
	}

	lim, err := limits.FromConfig(cfg.Limits)
	if err != nil {
		return nil, err
	}
	shutdown, err := server.ShutdownPlanFromConfig(cfg.Shutdown)
	if err != nil {
		return nil, err
	}

	metrics := obs.NewMetrics()

	tracing, err := obs.SetupTracing(ctx, obs.TracingConfig{Endpoint: cfg.Otel.Endpoint, ServiceName: cfg.Otel.ServiceName})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	backend, err := OpenBackend(ctx, cfg.Backend)
	if err != nil {
		_ = tracing(ctx)
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend.Kind, err)
	}
	fail := func(err error) (*App, error) {
		_ = backend.Close()
		_ = tracing(ctx)
		return nil, err
	}

	storeBackend := backend.Backend
	if Remote(cfg.Backend.Kind) {
		name := backend.Backend.Name()
		breakerLog := obs.Component(logger, "breaker")
		storeBackend = Guard(storeBackend, cfg.Backend.Breaker, func(state breaker.State) {
			metrics.SetBreakerState(name, int(state))
			breakerLog.Warn().Str("backend", name).Str("state", state.String()).Msg("backend circuit changed")
		})
	}

	st, err := store.New(storeBackend, StoreOptions(cfg.Store, logger, metrics, backend.Prefix))
	if err != nil {
		return fail(err)
	}
	authenticator, err := auth.FromConfig(cfg.Auth, logger, metrics)
	if err != nil {
		return fail(err)
	}

	inflight := runtime.NewInflightTracker()
	handler, err := web.NewHandler(web.Options{
		Store:        st,
		Auth:         authenticator,
		Metrics:      metrics,
		Logger:       logger,
		PublicFS:     publicFS(cfg.Server.PublicDir, logger),
		MaxBodyBytes: lim.MaxBodyBytes,
		CORSOrigins:  cfg.CORS.AllowedOrigins,
		Inflight:     inflight,
		Overload:     lim.Overload(),
	})
	if err != nil {
		return fail(err)
	}

	logger.Info().
		Str("backend", backend.Backend.Name()).
		Str("prefix", st.Prefix()).
		Msg("store ready")

	return &App{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		backend:  backend,
		store:    st,
		handler:  handler,
		limits:   lim,
		shutdown: shutdown,
		inflight: inflight,
		tracing:  tracing,
	}, nil
}

func publicFS(dir string, logger zerolog.Logger) afero.Fs {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		logger.Warn().Str("public_dir", dir).Msg("public dir missing, static files disabled")
		return nil
	}
	return afero.NewBasePathFs(afero.NewOsFs(), dir)
}

func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) Store() *store.Store {
	return a.store
}

func (a *App) Metrics() *obs.Metrics {
	return a.metrics
}

// Addr is the bound HTTP address once Start has returned.
func (a *App) Addr() string {
	if a.server == nil {
		return ""
	}
	return a.server.HTTPAddr
}

func (a *App) GRPCAddr() string {
	if a.grpc == nil {
		return ""
	}
	return a.grpc.Addr()
}

// Start begins serving HTTP, the optional gRPC health service and the
// backend probe loop.
func (a *App) Start() error {
	backendName := a.backend.Backend.Name()
	a.metrics.SetBackendUp(backendName, true)

	if addr := a.cfg.Health.GRPCAddr; addr != "" {
		grpcServer, err := health.StartGRPC(addr)
		if err != nil {
			return fmt.Errorf("start grpc health: %w", err)
		}
		a.grpc = grpcServer
		a.logger.Info().Str("addr", grpcServer.Addr()).Msg("grpc health listening")
	}

	healthCfg := health.FromConfig(a.cfg.Health)
	checker := health.NewChecker(healthCfg, func(healthy bool) {
		a.metrics.SetBackendUp(backendName, healthy)
		if a.grpc != nil {
			a.grpc.SetServing(healthy)
		}
		if healthy {
			a.logger.Info().Str("backend", backendName).Msg("backend reachable again")
		} else {
			a.logger.Error().Str("backend", backendName).Msg("backend unreachable")
		}
	})
	probeLog := obs.Component(a.logger, "health")
	a.monitor = health.StartMonitor(healthCfg, func(ctx context.Context) error {
		_, err := a.store.List(ctx, "")
		return err
	}, checker, func(err error) {
		probeLog.Warn().Err(err).Str("backend", backendName).Msg("backend probe failed")
	})

	sidecars := []server.Stopper{a.monitor}
	if a.grpc != nil {
		sidecars = append(sidecars, a.grpc)
	}
	stoppers := append(append([]server.Stopper{}, sidecars...), server.StopFunc(a.tracing))

	srv, err := server.Start(a.handler, a.cfg.ListenAddr(), server.Options{
		Limits:   a.limits,
		Shutdown: a.shutdown,
		Inflight: a.inflight,
		Stoppers: stoppers,
		Logger:   obs.Component(a.logger, "server"),
	})
	if err != nil {
		a.stopSidecars(sidecars)
		return err
	}
	a.server = srv
	a.logger.Info().Str("addr", "http://"+srv.HTTPAddr).Msg("listening")
	return nil
}

func (a *App) stopSidecars(stoppers []server.Stopper) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdown.Grace)
	defer cancel()
	for _, s := range stoppers {
		_ = s.Stop(ctx)
	}
}

// Shutdown drains the HTTP server, stops the side cars and releases the
// backend.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		if a.server != nil {
			a.shutdownErr = a.server.Shutdown()
		} else {
			a.shutdownErr = a.tracing(context.Background())
		}
		if err := a.backend.Close(); err != nil && a.shutdownErr == nil {
			a.shutdownErr = err
		}
	})
	return a.shutdownErr
}

// Run starts the app and blocks until ctx is done.
func Run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	a, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		_ = a.Shutdown()
		return err
	}
	<-ctx.Done()
	a.logger.Info().Msg("shutting down")
	return a.Shutdown()
}
