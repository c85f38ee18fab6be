package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"finances/internal/cli"
	apphttp "finances/internal/http"
	applog "finances/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("ledgerd")
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	res.Caches.StartCleanup(time.Minute)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:              ":" + cfg.Port,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Logger:            logger.WithComponent(applog.ComponentHTTP),
	}, res.Ledger, res.Imports, res.Rules)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting ledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", res.AMQP != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
