package main

import (
	"context"
	"errors"
	"time"

	"finances/internal/backend"
	"finances/internal/cli"
	applog "finances/internal/log"
	"finances/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("ledger-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	if !cfg.AMQPEnabled() {
		cli.Fatal(logger, "Worker needs a broker", errors.New("AMQP_URL is not set"))
	}

	res := cli.InitBackend(context.Background(), logger, cfg)
	if res.AMQP == nil {
		_ = res.Cleanup()
		cli.Fatal(logger, "Worker needs a broker", errors.New("AMQP client unavailable"))
	}

	exporter, err := backend.NewExporter(context.Background(), logger.Logger, cfg.GoogleSpreadsheetID, cfg.GoogleBalancesSheetName)
	if err != nil {
		_ = res.Cleanup()
		cli.Fatal(logger, "Failed to initialize exporter", err)
	}
	w := worker.NewExportWorker(res.Store, exporter)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	// Full export first so sheets of accounts changed while the worker was
	// down are current.
	if _, _, err := w.ExportAll(ctx); err != nil {
		logger.Error("Startup export failed", applog.FieldError, err)
	}

	go func() {
		err := res.AMQP.ConsumeAccountRecomputed(ctx, w.HandleAccountRecomputed)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption stopped", applog.FieldError, err)
		}
	}()

	logger.Info("Ledger worker running",
		"queue", cfg.AMQPQueue,
		"spreadsheet", cfg.GoogleSpreadsheetID != "")
	cli.WaitForShutdown(ctx, done)
}
