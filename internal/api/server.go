package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/foxzi/docforge/internal/artifact"
	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/batch"
	"github.com/foxzi/docforge/internal/config"
	"github.com/foxzi/docforge/internal/document"
	"github.com/foxzi/docforge/internal/metrics"
	"github.com/foxzi/docforge/internal/notify"
	"github.com/foxzi/docforge/internal/render"
	"github.com/foxzi/docforge/internal/template"
)

// Deps are the stores and services the API is built on
type Deps struct {
	Templates   *template.Storage
	Documents   *document.Storage
	Audit       *audit.Storage
	Artifacts   artifact.Store
	Batches     *batch.Service
	Results     *batch.ResultStore
	Outbox      *notify.Outbox // nil unless mail runs in sandbox mode
	DefaultKind render.Kind
	Version     string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps, cfg *config.APIConfig, logger *slog.Logger) *Server {
	if deps.DefaultKind == "" {
		deps.DefaultKind = render.KindPDF
	}

	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	validate := validator.New(validator.WithRequiredStructEnabled())
	recorder := &auditRecorder{store: s.deps.Audit, logger: s.logger}

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		NewTemplateServer(s.deps.Templates, recorder, s.config.MaxUploadBytes).RegisterRoutes(r)
		NewDocumentServer(s.deps, recorder, validate, s.config.MaxUploadBytes, s.logger).RegisterRoutes(r)
		NewAuditServer(s.deps.Audit).RegisterRoutes(r)
		if s.deps.Outbox != nil {
			NewOutboxServer(s.deps.Outbox).RegisterRoutes(r)
		}
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
