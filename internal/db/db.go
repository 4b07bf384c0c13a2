package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tubemetrics/freshness/internal/models"
	"github.com/tubemetrics/freshness/pkg/config"
	"github.com/tubemetrics/freshness/pkg/logging"
)

// zapWriter adapts zap.Logger to logger.Writer interface
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// gormLogLevel maps the application log level onto GORM's, one step
// quieter so SQL statements only appear at debug
func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "DEBUG", "debug":
		return logger.Info
	case "INFO", "info":
		return logger.Warn
	case "WARN", "warn", "WARNING", "warning":
		return logger.Error
	case "ERROR", "error":
		return logger.Silent
	default:
		return logger.Warn
	}
}

func newGormConfig(logLevel string) *gorm.Config {
	writer := &zapWriter{logger: logging.WithComponent("db")}

	return &gorm.Config{
		Logger: logger.New(
			writer,
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogLevel(logLevel),
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// DB wraps GORM database connection
type DB struct {
	*gorm.DB
}

// New creates a new database connection
func New(cfg *config.DatabaseConfig, logLevel string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.URL), newGormConfig(logLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pool configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.GetLogger().Info("Database connection established")

	d := &DB{DB: db}
	if cfg.AutoMigrate {
		if err := d.Migrate(context.Background()); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Migrate creates or updates the tables used for synchronized data
func (d *DB) Migrate(ctx context.Context) error {
	err := d.DB.WithContext(ctx).AutoMigrate(
		&models.Channel{},
		&models.Video{},
		&models.ChannelSyncState{},
		&models.MetricsSnapshot{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	logging.GetLogger().Info("Database schema migrated")
	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks database health
func (d *DB) Health(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
