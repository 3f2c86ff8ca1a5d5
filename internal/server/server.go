// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware and
// routes, and decides how the server starts and stops.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  ├─ auth.Sealer ─▶ sqlite.DB (sealed session store)
//	  ├─ metrics.Metrics ─▶ fetch.Fetcher ─▶ api.Client
//	  ├─ api.Client + sqlite.DB ─▶ session.Manager
//	  └─ api.Client ─▶ service.DashboardService ─▶ handler.DashboardHandler
//
// This is the "composition root" pattern: all dependencies are wired in
// New, rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/gitviz/internal/api"
	"github.com/sakif/gitviz/internal/auth"
	"github.com/sakif/gitviz/internal/chart"
	"github.com/sakif/gitviz/internal/config"
	"github.com/sakif/gitviz/internal/fetch"
	"github.com/sakif/gitviz/internal/handler"
	"github.com/sakif/gitviz/internal/metrics"
	"github.com/sakif/gitviz/internal/middleware"
	sqliteRepo "github.com/sakif/gitviz/internal/repository/sqlite"
	"github.com/sakif/gitviz/internal/service"
	"github.com/sakif/gitviz/internal/session"
)

// purgeInterval is how often expired sessions are removed from disk.
const purgeInterval = time.Hour

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and the session manager. Both
// are closed in Close, which Start calls during graceful shutdown.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	sessions *session.Manager
	metrics  *metrics.Metrics
}

// NewClient builds the analyser API client with its fetch pipeline.
// observer may be nil.
func NewClient(cfg config.APIConfig, logger *slog.Logger, observer fetch.Observer) (*api.Client, error) {
	fetcher := fetch.New(&http.Client{Timeout: cfg.Timeout}, logger, observer)
	return api.New(cfg.BaseURL, fetcher)
}

// New creates a Server from validated configuration.
//
// WIRING:
//  1. Derive the token sealer and open the session database
//  2. Build the API client with a metrics observer
//  3. Build the session manager on top of both
//  4. Wire handlers to routes
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	sealer, err := auth.NewSealer(cfg.Session.Secret)
	if err != nil {
		return nil, fmt.Errorf("creating token sealer: %w", err)
	}

	db, err := sqliteRepo.New(cfg.Session.DBPath, sealer)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	m := metrics.New()

	client, err := NewClient(cfg.API, logger, m)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating API client: %w", err)
	}

	sessions := session.NewManager(client, client, db, logger, session.Config{
		RenewalSkew:    cfg.Session.RenewalSkew,
		RefreshTimeout: cfg.Session.RefreshTimeout,
		Observer:       m,
	})
	m.ActiveSessions(sessions.Active)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		sessions: sessions,
		metrics:  m,
	}
	s.setupRoutes(client)

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                        → liveness
// GET    /metrics                        → Prometheus scrape
// GET    /auth/{provider}/login          → redirect to the analyser's OAuth flow
// GET    /login                          → OAuth landing page
// POST   /api/session                    → sign in with the callback fragment
// DELETE /api/session                    → sign out
// GET    /api/me, /api/repositories/...  → dashboard data (signed in only)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, so every later log line can carry it
// 2. RealIP, to extract the client IP from proxy headers
// 3. Recoverer, which turns panics into 500s
// 4. Logger and metrics, around everything that follows
func (s *Server) setupRoutes(client *api.Client) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", s.metrics.Handler())

	sessionHandler := handler.NewSessionHandler(
		s.sessions,
		s.config.API.BaseURL,
		s.config.Session.MaxAge,
		s.config.Session.CookieSecure,
		s.logger,
	)
	s.router.With(middleware.OptionalSession(s.sessions)).Get("/auth/{provider}/login", sessionHandler.HandleProviderLogin)
	s.router.Get("/login", sessionHandler.HandleLoginPage)

	dashboard := service.NewDashboardService(client, chart.Transformer{}, s.logger)
	dashboardHandler := handler.NewDashboardHandler(dashboard, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/session", sessionHandler.HandleCreate)
		r.Delete("/session", sessionHandler.HandleDestroy)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(s.sessions, s.logger))
			dashboardHandler.Routes(r)
		})
	})
}

// Close stops every session's renewal and closes the database.
// Persisted sessions stay on disk and are restored on the next start.
func (s *Server) Close() error {
	s.sessions.Close()
	return s.db.Close()
}

// purgeLoop removes sessions older than session.max_age once at start and
// then every purgeInterval until ctx is cancelled.
func (s *Server) purgeLoop(ctx context.Context) {
	// The manager logs how many sessions each purge removed.
	purge := func() {
		if _, err := s.sessions.Purge(ctx, s.config.Session.MaxAge); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("session purge failed", slog.String("error", err.Error()))
		}
	}

	purge()
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop session renewals and close the database
func (s *Server) Start() error {
	defer s.Close()

	// WriteTimeout leaves room for a slow analyser: api.timeout plus headroom.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.API.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	purgeCtx, stopPurge := context.WithCancel(context.Background())
	defer stopPurge()
	go s.purgeLoop(purgeCtx)

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("api", s.config.API.BaseURL),
			slog.String("database", s.config.Session.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
