package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"talentgrid-hq/conductor/pkg/config"
	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/monitor"
	"talentgrid-hq/conductor/pkg/orchestrator"
	"talentgrid-hq/conductor/pkg/server/middleware"
	"talentgrid-hq/conductor/pkg/telemetry/health"
	"talentgrid-hq/conductor/pkg/telemetry/tracing"
	"talentgrid-hq/conductor/pkg/traffic"
)

// Matcher serves match requests.
type Matcher interface {
	Match(ctx context.Context, req *engines.MatchRequest) (*orchestrator.Response, error)
}

// Rollout is the operator control surface of the traffic router.
type Rollout interface {
	Current() traffic.Stage
	Pending() []traffic.Stage
	SetRollout(ctx context.Context, percentage float64, source string) (traffic.Stage, error)
	ForceLegacy(ctx context.Context, source string) (traffic.Stage, error)
	Release(ctx context.Context, source string) (traffic.Stage, error)
}

// EngineStatus reports the live health of every engine.
type EngineStatus interface {
	Snapshot() []monitor.EngineStatus
}

// Deps are the components the server exposes.
type Deps struct {
	Matcher Matcher
	Rollout Rollout
	Engines EngineStatus

	// Health serves the probes. Optional.
	Health *health.Checker

	// Metrics serves the Prometheus exposition. Optional.
	Metrics http.Handler

	// MetricsPath is where Metrics is mounted
	MetricsPath string

	// Version, Commit and BuildDate are reported by /version
	Version   string
	Commit    string
	BuildDate string
}

// Server is Conductor's HTTP front end.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	logger *slog.Logger

	mu           sync.Mutex
	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
}

// New creates a server. Call Start to begin serving.
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.MetricsPath == "" {
		deps.MetricsPath = config.DefaultMetricsPath
	}
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("component", "server"),
	}
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	match := middleware.Chain(http.HandlerFunc(s.handleMatch),
		tracing.HTTPMiddleware,
		middleware.Timeout(s.cfg.RequestTimeout),
	)
	mux.Handle("POST /v1/match", match)

	admin := middleware.AdminToken(s.cfg.AdminToken)
	mux.Handle("PUT /admin/rollout", admin(http.HandlerFunc(s.handleSetRollout)))
	mux.Handle("POST /admin/fallback", admin(http.HandlerFunc(s.handleForceLegacy)))
	mux.Handle("DELETE /admin/fallback", admin(http.HandlerFunc(s.handleRelease)))
	mux.Handle("GET /admin/status", admin(http.HandlerFunc(s.handleStatus)))

	if s.deps.Health != nil {
		mux.HandleFunc("/health/live", s.deps.Health.LiveHandler())
		mux.HandleFunc("/health/ready", s.deps.Health.ReadyHandler())
	}
	mux.HandleFunc("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildDate))
	if s.deps.Metrics != nil {
		mux.Handle("GET "+s.deps.MetricsPath, s.deps.Metrics)
	}

	return middleware.Chain(mux,
		middleware.Recovery,
		middleware.RequestID,
		middleware.Logging,
	)
}

// Start listens on the configured address and serves until Shutdown is
// called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until Shutdown is called or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server is already running")
	}
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.listener = ln
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting http server", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		s.mu.Unlock()
		if srv == nil {
			return
		}

		s.logger.Info("shutting down http server", "timeout", s.cfg.ShutdownTimeout.String())
		if s.cfg.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
			defer cancel()
		}
		if e := srv.Shutdown(ctx); e != nil {
			err = fmt.Errorf("server shutdown error: %w", e)
			return
		}
		s.logger.Info("http server stopped")
	})
	return err
}
