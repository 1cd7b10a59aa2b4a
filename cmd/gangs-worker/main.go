package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gangs/internal/cli"
	"gangs/internal/config"
)

// gangs-worker triggers the weekly dues sweep on a running gangs-api. Run the
// API with GANGS_EXTERNAL_BILLING=true so the sweep is not scheduled twice.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	client := cli.NewClient(cfg.APIBaseURL, cfg.APIKey, cfg.AdminKey)

	if cfg.RunOnce {
		if err := sweep(ctx, logger, client); err != nil {
			logger.Error("billing sweep failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.BillingEvery)
	defer ticker.Stop()

	logger.Info("worker started", "billing_every", cfg.BillingEvery.String(), "api", cfg.APIBaseURL)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := sweep(ctx, logger, client); err != nil {
				logger.Error("billing sweep failed", "err", err)
			}
		}
	}
}

func sweep(ctx context.Context, logger *slog.Logger, client *cli.Client) error {
	rep, err := client.AdminRunBilling(ctx)
	if err != nil {
		return err
	}
	logger.Info("billing sweep complete",
		"gangs", rep["gangs"],
		"paid", rep["paid"],
		"missed", rep["missed"],
		"kicked", rep["kicked"],
		"collected", rep["collected"],
	)
	return nil
}
