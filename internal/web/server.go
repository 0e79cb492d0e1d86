package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/adorify/internal/logger"
)

const (
	// DefaultAddr is the default server address.
	DefaultAddr = "127.0.0.1:8080"

	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Sessions SessionManager
	Handlers *Handlers
	API      *API

	// Health lists the dependencies /healthz checks, by name.
	Health map[string]Pinger
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP server for the web application.
type Server struct {
	router chi.Router
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	router := chi.NewRouter()

	s := &Server{
		router: router,
		logger: logger.WithComponent("http"),
	}

	s.setupMiddleware()
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes(cfg ServerConfig) {
	s.router.Get("/healthz", healthz(cfg.Health))
	if cfg.Metrics != nil {
		s.router.Handle("/metrics", cfg.Metrics)
	}

	// Auth routes
	if cfg.Handlers != nil {
		s.router.Get("/auth/login", cfg.Handlers.Login)
		s.router.Get("/callback", cfg.Handlers.Callback)
		s.router.Post("/auth/logout", cfg.Handlers.Logout)
	}

	if cfg.API != nil {
		s.router.Route("/api", func(r chi.Router) {
			cfg.API.Routes(r, cfg.Sessions)
		})
	}
}

func healthz(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := dep.Ping(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}
		writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
