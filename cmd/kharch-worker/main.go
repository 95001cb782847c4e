package main

import (
	"context"
	"errors"
	"os"
	"time"

	"kharch/internal/amqp"
	"kharch/internal/cli"
	klog "kharch/internal/log"
	"kharch/internal/metrics"
	"kharch/internal/sheets"
	gsheet "kharch/internal/sheets/google"
	memsheet "kharch/internal/sheets/memory"
	"kharch/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(klog.ComponentWorker)
	if err := cfg.ValidateMirror(); err != nil {
		logger.Error("Configuration validation failed", klog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting kharch-worker")
	m := metrics.New()

	// The worker only reads, so it never publishes events of its own.
	rt, err := cli.NewRuntime(context.Background(), cfg, logger, nil, m)
	if err != nil {
		logger.Error("Failed to initialize ledger", klog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer rt.Close()

	var writer sheets.ReportWriter
	if cfg.GoogleSpreadsheetID != "" {
		creds, err := cfg.ServiceAccountCredentials()
		if err != nil {
			logger.Error("Failed to read Google credentials", klog.FieldError, err)
			os.Exit(1)
		}
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, creds, rt.Ledger.Location())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", klog.FieldError, err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = memsheet.New()
		logger.Info("Google Sheets disabled - keeping cycle reports in memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", klog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirror := worker.NewMirror(rt.Ledger, writer, m, cfg.CycleHistory)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Catch up on anything written while the worker was down.
	if err := mirror.RefreshRecent(ctx); err != nil {
		logger.Error("Startup refresh failed", klog.FieldError, err)
	}

	go func() {
		if err := amqpClient.Consume(ctx, mirror.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", klog.FieldError, err)
		}
	}()
	go mirror.Run(ctx, cfg.MirrorInterval)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
