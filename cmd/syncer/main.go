package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/internal/app"
	"github.com/tubemetrics/freshness/pkg/config"
	"github.com/tubemetrics/freshness/pkg/logging"
	"github.com/tubemetrics/freshness/pkg/telemetry"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup always runs
func run() int {
	daily := flag.Bool("daily", false, "sync now, then every day at sync_daily_at until interrupted")
	flag.Parse()

	// A missing .env file is fine; the environment may already be set
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting freshness syncer", zap.Bool("daily", *daily))

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Error("Failed to initialize telemetry", zap.Error(err))
		return 1
	}
	defer telemetryShutdown()

	services, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize services", zap.Error(err))
		return 1
	}
	defer services.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *daily {
		if err := services.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Daily sync stopped", zap.Error(err))
			return 1
		}
		logger.Info("Syncer exited")
		return 0
	}

	summary, err := services.Scheduler.BackgroundSyncAllChannels(ctx)
	if err != nil {
		logger.Error("Sync failed", zap.Error(err))
		return 1
	}
	for _, e := range summary.Errors {
		logger.Warn("Channel failed", zap.String("channel_id", e.ChannelID), zap.String("error", e.Message))
	}
	logger.Info("Syncer exited",
		zap.Int("channels", summary.Channels),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return 0
}
