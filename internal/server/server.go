package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/driveproxy/internal/instrumentation"
)

// Default HTTP server settings. There is no write timeout because file
// content is streamed for as long as the Drive stream timeout allows.
const (
	DefaultAddr              = ":8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
)

// Config holds the settings of the file API server.
type Config struct {
	Addr        string
	TLSCertFile string
	TLSKeyFile  string

	JWTSecret string
	JWTIssuer string
}

// Deps holds the collaborators of the file API server.
type Deps struct {
	Files   FileService
	Store   Pinger
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Server serves the authenticated file API and the health endpoints.
type Server struct {
	config  Config
	handler http.Handler
	health  *HealthChecker
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a Server.
func New(config Config, deps Deps) (*Server, error) {
	if deps.Files == nil {
		return nil, fmt.Errorf("file service is required")
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if (config.TLSCertFile == "") != (config.TLSKeyFile == "") {
		return nil, fmt.Errorf("both TLS certificate and key are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	auth, err := NewAuthenticator(config.JWTSecret, config.JWTIssuer, logger)
	if err != nil {
		return nil, err
	}

	health := NewHealthChecker(deps.Store)
	mux := http.NewServeMux()
	health.RegisterHealthEndpoints(mux)
	registerFileRoutes(mux, &handlers{files: deps.Files, logger: logger}, auth.Middleware)

	return &Server{
		config:  config,
		handler: requestID(recoverer(logger, observe(logger, deps.Metrics, mux))),
		health:  health,
		logger:  logger,
	}, nil
}

// Handler returns the full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	tlsEnabled := s.config.TLSCertFile != ""
	s.logger.Info("starting file API server", "addr", ln.Addr().String(), "tls", tlsEnabled)

	if tlsEnabled {
		err = srv.ServeTLS(ln, s.config.TLSCertFile, s.config.TLSKeyFile)
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()
	s.health.SetReady(false)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down file API server")
	return srv.Shutdown(ctx)
}
