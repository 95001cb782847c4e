package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"kharch/internal/amqp"
	"kharch/internal/cache"
	"kharch/internal/cli"
	apphttp "kharch/internal/http"
	klog "kharch/internal/log"
	"kharch/internal/metrics"
	"kharch/internal/middleware/ratelimit"
	"kharch/internal/middleware/security"
	"kharch/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(klog.ComponentApp)

	m := metrics.New()

	// Events are optional: without AMQP_URL nothing is mirrored.
	var (
		publisher  services.Publisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", klog.FieldError, err)
			os.Exit(1)
		}
		publisher = amqpClient
		logger.Info("Publishing ledger events", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	rt, err := cli.NewRuntime(context.Background(), cfg, logger, publisher, m)
	if err != nil {
		logger.Error("Failed to initialize ledger", klog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	caches := cache.NewManager()
	caches.Register(rt.Ledger.SummaryCache())
	caches.StartCleanup(max(cfg.CacheTTL, time.Minute))

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		CleanupInterval:   5 * time.Minute,
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:   rt.Ledger,
		Renderer: rt.Renderer,
		Pinger:   rt.Backend.Store,
		Metrics:  m,
		Limiter:  limiter,
		Detector: security.NewDetector(),
		Logger:   logger,
		History:  cfg.CycleHistory,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", klog.FieldError, err)
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", klog.FieldError, err)
			}
		}
		if err := rt.Close(); err != nil {
			logger.Warn("Failed to close store", klog.FieldError, err)
		}
	})

	logger.Info("Starting kharch server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"current_cycle", rt.Ledger.CurrentCycle().Key())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", klog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
