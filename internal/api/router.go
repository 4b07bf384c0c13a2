package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/internal/analytics"
	"github.com/tubemetrics/freshness/internal/channelsync"
	"github.com/tubemetrics/freshness/internal/history"
	"github.com/tubemetrics/freshness/internal/models"
	"github.com/tubemetrics/freshness/internal/scheduler"
	"github.com/tubemetrics/freshness/internal/youtube"
)

// Syncer runs and reports channel syncs
type Syncer interface {
	SyncChannels(ctx context.Context, req channelsync.Request) (*channelsync.Result, error)
	FullSync(ctx context.Context, channelIDs ...string) (*channelsync.FullSyncResult, error)
	ChannelSyncStatus(ctx context.Context, channelID string) (*channelsync.SyncStatusView, error)
	StoredVideos(ctx context.Context, channelIDs []string, limit int) ([]models.Video, error)
	TrackChannel(ctx context.Context, channelID, ownerID string) error
}

// BackgroundSyncer syncs every tracked channel
type BackgroundSyncer interface {
	BackgroundSyncAllChannels(ctx context.Context) (*scheduler.Summary, error)
}

// Searcher runs searches through the fallback tier
type Searcher interface {
	Search(ctx context.Context, params youtube.Params) (*youtube.SearchResult, error)
}

// TrendReader compares today's snapshot with the previous one
type TrendReader interface {
	Trend(ctx context.Context, ownerID, entityID string, metric history.Metric) (analytics.TrendResult, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the services behind the routes. Health is optional.
type Deps struct {
	Syncer     Syncer
	Background BackgroundSyncer
	Search     Searcher
	Trends     TrendReader
	Health     HealthChecker
}

// Options configure the routes
type Options struct {
	CronSecret              string
	OwnerID                 string
	DefaultVideosPerChannel int
	ServeMetrics            bool
	// CronTimeout bounds a cron-triggered sync. Zero means unbounded.
	CronTimeout time.Duration
}

// Router sets up API routes
type Router struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(deps Deps, opts Options, logger *zap.Logger) *Router {
	if opts.DefaultVideosPerChannel <= 0 {
		opts.DefaultVideosPerChannel = 50
	}
	return &Router{
		deps:   deps,
		opts:   opts,
		logger: logger.With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(RequestLogger(r.logger))

	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	if r.opts.ServeMetrics {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := engine.Group("/api")

	cron := api.Group("/cron", CronAuth(r.opts.CronSecret))
	cron.GET("/sync", r.cronSync)
	cron.POST("/sync", r.cronSync)

	api.POST("/sync", r.manualSync)
	api.POST("/channels", r.trackChannel)
	api.GET("/channels/:id/sync-status", r.syncStatus)
	api.GET("/channels/:id/videos", r.storedVideos)
	api.GET("/channels/:id/outliers", r.outliers)
	api.GET("/search", r.search)
	api.GET("/trends/:kind/:id", r.trend)
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	if r.deps.Health != nil {
		if err := r.deps.Health.Health(c.Request.Context()); err != nil {
			r.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "UNAVAILABLE",
				"service": "tubemetrics-freshness",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "tubemetrics-freshness",
	})
}
