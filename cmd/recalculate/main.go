// Command recalculate rebuilds the balance aggregates of every account of
// every book and exits. It exits non-zero when any account failed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finances/internal/cli"
	applog "finances/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("recalculate")
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	}()

	start := time.Now()
	logger.Info("Recalculating all balances", "backend", cfg.DataBackend)
	result, err := res.Ledger.RecomputeAll(ctx)
	if err != nil {
		logger.Error("Recalculation aborted", applog.FieldError, err,
			"successful", result.Successful,
			"failed", result.Failed)
		exit(res.Cleanup, 1)
	}

	logger.Info("Recalculation complete",
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
		"duration", time.Since(start).Round(time.Millisecond).String())
	fmt.Printf("accounts=%d successful=%d failed=%d\n", result.Total, result.Successful, result.Failed)
	if result.Failed > 0 {
		exit(res.Cleanup, 1)
	}
}

// exit runs cleanup before os.Exit, which skips deferred calls.
func exit(cleanup func() error, code int) {
	_ = cleanup()
	os.Exit(code)
}
