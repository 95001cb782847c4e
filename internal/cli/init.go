// Package cli provides the start-up steps shared by cmd/kharch,
// cmd/kharch-worker and cmd/kharch-backup.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kharch/internal/backend"
	"kharch/internal/config"
	"kharch/internal/export"
	klog "kharch/internal/log"
	"kharch/internal/metrics"
	"kharch/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default. Invalid settings fall back to info/text.
func SetupLogger(cfg *config.Config, component string) *klog.Logger {
	level, levelErr := cfg.SlogLevel()
	logger, err := klog.New(klog.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	if err != nil {
		logger, _ = klog.New(klog.Config{Level: level, Component: component, Output: os.Stdout})
		logger.Warn("Falling back to text logs", klog.FieldError, err)
	}
	if levelErr != nil {
		logger.Warn("Falling back to info level", klog.FieldError, levelErr)
	}
	klog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(component string) (*config.Config, *klog.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", klog.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// Runtime is what every binary builds before doing its own work.
type Runtime struct {
	Backend  *backend.BackendResult
	Ledger   *services.Ledger
	Renderer *export.Renderer
}

// Close releases the backend.
func (r *Runtime) Close() error {
	return r.Backend.Close()
}

// NewRuntime opens the configured store and wraps it in a Ledger. publisher
// and m may be nil; pass an untyped nil publisher, not a nil *amqp.Client.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *klog.Logger, publisher services.Publisher, m *metrics.Metrics) (*Runtime, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(klog.ComponentStorage).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}
	renderer, err := export.NewRenderer(cfg.CurrencySymbol, cfg.Locale, loc)
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	opts := services.Options{
		Location:         loc,
		StrictCategories: cfg.StrictCategories,
		RecentLimit:      cfg.RecentLimit,
		CacheTTL:         cfg.CacheTTL,
		Metrics:          m,
		Publisher:        publisher,
	}
	return &Runtime{
		Backend:  res,
		Ledger:   services.NewLedger(res.Store, opts),
		Renderer: renderer,
	}, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *klog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
