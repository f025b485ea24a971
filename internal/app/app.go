package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/docforge/internal/api"
	"github.com/foxzi/docforge/internal/artifact"
	"github.com/foxzi/docforge/internal/config"
	"github.com/foxzi/docforge/internal/metrics"
)

// App is the main application
type App struct {
	config        *config.Config
	core          *Core
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	cleaner       *artifact.Cleaner
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config, version string) (*App, error) {
	// Setup logger
	logger := SetupLogger(cfg.Logging)

	core, err := Open(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		config: cfg,
		core:   core,
		logger: logger,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.metricsServer = metrics.NewServerWithAllowedIPs(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		a.collector = metrics.NewCollector(m, core, cfg.Storage.Path, cfg.Metrics.CollectInterval,
			logger.With("component", "metrics"))
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
	}

	a.cleaner = artifact.NewCleaner(core.Documents, core.Artifacts, artifact.CleanerConfig{
		MaxAge:   cfg.Artifacts.Retention.MaxAge,
		Interval: cfg.Artifacts.Retention.CleanupInterval,
	}, logger.With("component", "artifact_cleaner"))

	deps := api.Deps{
		Templates:   core.Templates,
		Documents:   core.Documents,
		Audit:       core.Audit,
		Artifacts:   core.Artifacts,
		Batches:     core.Service,
		Results:     core.Results,
		DefaultKind: core.DefaultKind,
		Version:     version,
	}
	if core.Sandbox {
		deps.Outbox = core.Outbox
	}
	a.apiServer = api.NewServer(deps, &cfg.API, logger.With("component", "api"))

	return a, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting docforge",
		"name", a.config.Server.Name,
		"api_addr", a.config.API.ListenAddr,
		"storage", a.config.Storage.Path,
		"artifacts", a.config.Artifacts.Backend,
		"mail_enabled", a.config.Mail.Enabled,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.cleaner.Start(ctx)
	if a.collector != nil {
		a.collector.Start(ctx)
	}

	// Channel to collect errors
	errCh := make(chan error, 2)

	// Start API server
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Start metrics server
	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a.cleaner.Stop()
	if a.collector != nil {
		a.collector.Stop()
	}

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Close storage
	if err := a.core.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
