// Package server provides the HTTP server for the gate.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/epigate/pkg/config"
	"mercator-hq/epigate/pkg/gate"
	"mercator-hq/epigate/pkg/server/middleware"
	"mercator-hq/epigate/pkg/telemetry/health"
	"mercator-hq/epigate/pkg/telemetry/metrics"
)

// BuildInfo is served by /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Options holds the collaborators of a Server. Gate is required.
type Options struct {
	Gate *gate.Gate

	// Health backs /health and /ready. Default: a checker with no checks.
	Health *health.Checker

	// Metrics, when set, is served at MetricsPath and observes every route.
	Metrics     *metrics.Collector
	MetricsPath string

	Build  BuildInfo
	Logger *slog.Logger
}

// Server is the HTTP front end of the gate.
type Server struct {
	config     *config.ServerConfig
	opts       Options
	logger     *slog.Logger
	dashboard  *template.Template
	httpServer *http.Server

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// NewServer creates a server. It fails when the dashboard template cannot
// be parsed or no gate is given.
func NewServer(cfg *config.ServerConfig, opts Options) (*Server, error) {
	if opts.Gate == nil {
		return nil, errors.New("server: gate is required")
	}
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	tmpl, err := parseDashboard()
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard template: %w", err)
	}

	return &Server{
		config:    cfg,
		opts:      opts,
		logger:    opts.Logger.With("component", "server"),
		dashboard: tmpl,
	}, nil
}

// Start listens on the configured address and serves until ctx is
// cancelled or the listener fails. Cancellation triggers a graceful
// shutdown bounded by ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}

	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gate server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		s.markStopped()
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown gracefully shuts down the server. Only the first call has an
// effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		srv, running := s.httpServer, s.isRunning
		s.mu.RUnlock()
		if !running || srv == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.markStopped()
		s.logger.Info("gate server stopped")
	})

	return shutdownErr
}

func (s *Server) markStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.routes()

	handler = middleware.BodyLimitMiddleware(s.config.MaxBodyBytes)(handler)
	handler = middleware.CORSMiddleware(&s.config.CORS)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(s.opts.Logger)(handler)

	// Recovery middleware (outermost)
	handler = middleware.RecoveryMiddleware(s.opts.Logger)(handler)

	return handler
}
