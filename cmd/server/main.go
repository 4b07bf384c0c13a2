package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/internal/api"
	"github.com/tubemetrics/freshness/internal/app"
	"github.com/tubemetrics/freshness/pkg/config"
	"github.com/tubemetrics/freshness/pkg/logging"
	"github.com/tubemetrics/freshness/pkg/telemetry"
)

func main() {
	// A missing .env file is fine; the environment may already be set
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting freshness API server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	services, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	router := api.NewRouter(api.Deps{
		Syncer:     services.Orchestrator,
		Background: services.Scheduler,
		Search:     services.Search,
		Trends:     services.Recorder,
		Health:     services.DB,
	}, api.Options{
		CronSecret:              cfg.Sync.CronSecret,
		OwnerID:                 cfg.Sync.OwnerID,
		DefaultVideosPerChannel: cfg.Sync.DefaultVideosPerChannel,
		ServeMetrics:            cfg.Telemetry.Enabled && cfg.Telemetry.PrometheusEnabled,
		CronTimeout:             cfg.Sync.RunTimeout,
	}, logger)
	router.SetupRoutes(engine)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// The in-process daily timer does not survive restarts; the cron
	// endpoint stays the primary trigger.
	if cfg.Sync.RunOnStart {
		go func() {
			if err := services.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Daily sync stopped", zap.Error(err))
			}
		}()
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
