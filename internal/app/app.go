package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/internal/cache"
	"github.com/tubemetrics/freshness/internal/channelsync"
	"github.com/tubemetrics/freshness/internal/db"
	"github.com/tubemetrics/freshness/internal/events"
	"github.com/tubemetrics/freshness/internal/history"
	"github.com/tubemetrics/freshness/internal/scheduler"
	"github.com/tubemetrics/freshness/internal/youtube"
	"github.com/tubemetrics/freshness/pkg/config"
)

// App holds the services shared by the server and the syncer
type App struct {
	DB           *db.DB
	Client       *youtube.Client
	Search       *youtube.SearchCache
	Recorder     *history.Recorder
	Orchestrator *channelsync.Orchestrator
	Scheduler    *scheduler.Scheduler
	Events       events.Publisher

	redis  *redis.Client
	logger *zap.Logger
}

// New connects to storage and builds every service
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger, Events: events.Noop{}}
	clock := clockwork.NewRealClock()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	a.DB = database

	responses, searches, err := a.stores(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	tierOpts := []cache.Option{
		cache.WithClock(clock),
		cache.WithLogger(logger.With(zap.String("component", "cache"))),
		cache.WithRefreshTimeout(cfg.Cache.RefreshTimeout),
	}
	responseTier := cache.NewTiered[json.RawMessage](responses, append(tierOpts, cache.WithFallbackPolicy(cache.AlwaysFallback))...)
	a.Client = youtube.NewClient(&cfg.YouTube, responseTier, logger.With(zap.String("component", "youtube")), youtube.WithClientClock(clock))
	a.Search = youtube.NewSearchCache(a.Client, searches, logger.With(zap.String("component", "search")), tierOpts...)

	if cfg.Events.Enabled {
		publisher, err := events.NewRabbitMQ(&cfg.Events, logger.With(zap.String("component", "events")))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Events = publisher
	}

	repo := db.NewRepository(database.DB)
	a.Recorder = history.NewRecorder(db.NewSnapshotRepository(repo), clock, logger.With(zap.String("component", "history")))
	a.Orchestrator = channelsync.New(channelsync.Deps{
		Source:   a.Client,
		Channels: db.NewChannelRepository(repo),
		Videos:   db.NewVideoRepository(repo),
		States:   db.NewSyncStateRepository(repo),
		Recorder: a.Recorder,
		Events:   a.Events,
	}, channelsync.OptionsFromConfig(&cfg.Sync), clock, logger.With(zap.String("component", "channelsync")))

	a.Scheduler, err = scheduler.New(a.Orchestrator, &cfg.Sync, clock, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if _, err := a.Orchestrator.Recover(context.Background()); err != nil {
		a.Close()
		return nil, fmt.Errorf("reset interrupted syncs: %w", err)
	}
	return a, nil
}

// stores returns the entry stores of the response tier and the search tier
func (a *App) stores(cfg *config.Config) (cache.Store[json.RawMessage], cache.Store[json.RawMessage], error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemoryStore[json.RawMessage](), cache.NewMemoryStore[json.RawMessage](), nil
	}

	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		if errors.Is(err, cache.ErrCacheDisabled) {
			return nil, nil, fmt.Errorf("cache_backend redis requires redis_enabled")
		}
		return nil, nil, err
	}
	a.redis = client
	a.logger.Info("Using Redis cache backend")

	return cache.NewRedisStore[json.RawMessage](client, "api", cfg.Redis.Retention),
		cache.NewRedisStore[json.RawMessage](client, "search", cfg.Redis.Retention),
		nil
}

// Close releases connections
func (a *App) Close() {
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			a.logger.Warn("Failed to close event publisher", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}
