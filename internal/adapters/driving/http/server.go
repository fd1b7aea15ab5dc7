package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
	"github.com/custodia-labs/drive-index/internal/core/ports/driving"
)

// ScheduleManager exposes recurring crawl schedules to the dashboard
type ScheduleManager interface {
	ListSchedules(ctx context.Context) ([]*domain.ScheduledCrawl, error)
	TriggerNow(ctx context.Context, id string) (*domain.CrawlJob, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string
	logger     *slog.Logger

	// Services
	searchService driving.SearchService
	crawlService  driving.CrawlService
	schedules     ScheduleManager     // optional
	alerts        driven.AlertHistory // optional

	// Infrastructure
	verifier driven.TokenVerifier
	checks   map[string]driven.Pinger // readiness checks by name
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// Dependencies are the services the API serves
type Dependencies struct {
	Search    driving.SearchService
	Crawl     driving.CrawlService
	Schedules ScheduleManager     // optional
	Alerts    driven.AlertHistory // optional
	Verifier  driven.TokenVerifier
	Checks    map[string]driven.Pinger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:        http.NewServeMux(),
		version:       cfg.Version,
		logger:        logger,
		searchService: deps.Search,
		crawlService:  deps.Crawl,
		schedules:     deps.Schedules,
		alerts:        deps.Alerts,
		verifier:      deps.Verifier,
		checks:        deps.Checks,
	}

	s.setupRoutes()

	s.handler = NewRecoveryMiddleware(logger).Handler(
		NewLoggingMiddleware(logger).Handler(
			NewCORSMiddleware(cfg.AllowedOrigins).Handler(s.router)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.verifier)
	authed := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(h)
	}
	operator := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(authMiddleware.RequireOperator(h))
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwaggerDoc)

	// Search endpoint
	s.router.Handle("POST /api/v1/search", authed(s.handleSearch))

	// Crawl dashboard (operator-only)
	s.router.Handle("GET /api/v1/crawl/status/{scope}", operator(s.handleCrawlStatus))
	s.router.Handle("POST /api/v1/crawl/scopes/{scope}/full", operator(s.handleTriggerFullCrawl))
	s.router.Handle("POST /api/v1/crawl/scopes/{scope}/resume", operator(s.handleResumeScope))
	s.router.Handle("GET /api/v1/crawl/jobs", operator(s.handleListJobs))
	s.router.Handle("GET /api/v1/crawl/jobs/{id}", operator(s.handleGetJob))
	s.router.Handle("GET /api/v1/crawl/jobs/{id}/transitions", operator(s.handleJobTransitions))
	s.router.Handle("POST /api/v1/crawl/jobs/{id}/cancel", operator(s.handleCancelJob))
	s.router.Handle("POST /api/v1/crawl/jobs/{id}/resolve", operator(s.handleResolveJob))
	s.router.Handle("POST /api/v1/crawl/jobs/{id}/retry", operator(s.handleRetryJob))
	s.router.Handle("GET /api/v1/crawl/schedules", operator(s.handleListSchedules))
	s.router.Handle("POST /api/v1/crawl/schedules/{id}/trigger", operator(s.handleTriggerSchedule))
	s.router.Handle("POST /api/v1/assets/{id}/resolve", operator(s.handleResolveAsset))
	s.router.Handle("GET /api/v1/alerts", operator(s.handleListAlerts))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
