package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/glr76/PlannyWeb/internal/limits"
	"github.com/glr76/PlannyWeb/internal/runtime"
)

type Server struct {
	HTTPAddr string

	httpServer   *http.Server
	httpLn       net.Listener
	limits       limits.Limits
	shutdown     ShutdownPlan
	inflight     *runtime.InflightTracker
	stoppers     []Stopper
	logger       zerolog.Logger
	shutdownOnce sync.Once
	shutdownErr  error
}

type Stopper interface {
	Stop(ctx context.Context) error
}

type StopFunc func(ctx context.Context) error

func (s StopFunc) Stop(ctx context.Context) error {
	return s(ctx)
}

type Options struct {
	Limits   limits.Limits
	Shutdown ShutdownPlan
	Inflight *runtime.InflightTracker
	Stoppers []Stopper
	Logger   zerolog.Logger
}

func Start(handler http.Handler, httpAddr string, options Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}
	if httpAddr == "" {
		return nil, errors.New("no listen address configured")
	}

	limitConfig := options.Limits
	if limitConfig.MaxHeaderBytes == 0 {
		limitConfig = limits.Default()
	}
	shutdownPlan := options.Shutdown.withDefaults()

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, err
	}
	httpSrv := &http.Server{
		Handler:           handler,
		MaxHeaderBytes:    limitConfig.MaxHeaderBytes,
		ReadHeaderTimeout: limitConfig.ReadHeaderTimeout,
		ReadTimeout:       limitConfig.ReadTimeout,
		WriteTimeout:      limitConfig.WriteTimeout,
		IdleTimeout:       limitConfig.IdleTimeout,
	}

	s := &Server{
		HTTPAddr:   ln.Addr().String(),
		httpServer: httpSrv,
		httpLn:     ln,
		limits:     limitConfig,
		shutdown:   shutdownPlan,
		inflight:   options.Inflight,
		stoppers:   options.Stoppers,
		logger:     options.Logger,
	}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error().Err(err).Msg("server error")
	}
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	return s.Shutdown()
}

// Shutdown stops accepting connections, runs the stoppers, waits out the
// drain period and in-flight requests, then force closes whatever is
// left once the graceful timeout passes.
func (s *Server) Shutdown() error {
	if s == nil {
		return nil
	}
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdownSequence()
	})
	return s.shutdownErr
}

func (s *Server) shutdownSequence() error {
	_ = s.httpLn.Close()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), s.shutdown.Grace)
	for _, stopper := range s.stoppers {
		if stopper == nil {
			continue
		}
		if err := stopper.Stop(stopCtx); err != nil {
			s.logger.Warn().Err(err).Msg("stopper failed")
		}
	}
	stopCancel()

	if s.shutdown.Drain > 0 {
		time.Sleep(s.shutdown.Drain)
	}

	gracefulCtx, gracefulCancel := context.WithTimeout(context.Background(), s.shutdown.Grace)
	defer gracefulCancel()
	if s.inflight != nil {
		_ = s.inflight.Wait(gracefulCtx)
	}
	var firstErr error
	if err := s.httpServer.Shutdown(gracefulCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		firstErr = err
	}
	if gracefulCtx.Err() == nil {
		return firstErr
	}

	if s.shutdown.ForceClose > 0 {
		time.Sleep(s.shutdown.ForceClose)
	}
	_ = s.httpServer.Close()
	if firstErr != nil {
		return firstErr
	}
	return gracefulCtx.Err()
}
