package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/internal/analytics"
	"github.com/tubemetrics/freshness/internal/models"
)

// ErrNoSnapshot is returned by Trend when nothing was recorded today
var ErrNoSnapshot = errors.New("no snapshot recorded today")

// SnapshotStore persists daily snapshots
type SnapshotStore interface {
	UpsertBatch(ctx context.Context, snapshots []models.MetricsSnapshot) error
	On(ctx context.Context, ownerID, entityID string, day time.Time) (*models.MetricsSnapshot, error)
	LatestBefore(ctx context.Context, ownerID, entityID string, day time.Time) (*models.MetricsSnapshot, error)
}

// Recorder writes one snapshot per entity per day and derives trends from
// them
type Recorder struct {
	store  SnapshotStore
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewRecorder creates a recorder
func NewRecorder(store SnapshotStore, clock clockwork.Clock, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, clock: clock, logger: logger}
}

// RecordVideoSnapshot upserts today's snapshot of every video. Recording
// nothing succeeds; false is only returned with a storage error.
func (r *Recorder) RecordVideoSnapshot(ctx context.Context, ownerID string, videos []models.Video) (bool, error) {
	if len(videos) == 0 {
		return true, nil
	}

	now := r.clock.Now().UTC()
	day := models.Day(now)
	snapshots := make([]models.MetricsSnapshot, 0, len(videos))
	for _, v := range videos {
		snapshots = append(snapshots, models.MetricsSnapshot{
			OwnerID:      ownerID,
			EntityID:     v.ExternalID,
			RecordedDate: day,
			EntityKind:   models.EntityVideo,
			Views:        v.ViewCount,
			Likes:        v.LikeCount,
			Comments:     v.CommentCount,
			VPH:          v.ComputedVPH,
			UpdatedAt:    now,
		})
	}

	if err := r.store.UpsertBatch(ctx, snapshots); err != nil {
		r.logger.Error("Failed to record video snapshots",
			zap.String("owner_id", ownerID),
			zap.Int("videos", len(videos)),
			zap.Error(err),
		)
		return false, fmt.Errorf("record video snapshots: %w", err)
	}
	return true, nil
}

// RecordChannelSnapshot upserts today's snapshot of the channel's totals
func (r *Recorder) RecordChannelSnapshot(ctx context.Context, ownerID string, channel *models.Channel) (bool, error) {
	if channel == nil {
		return true, nil
	}

	now := r.clock.Now().UTC()
	snapshot := models.MetricsSnapshot{
		OwnerID:      ownerID,
		EntityID:     channel.ID,
		RecordedDate: models.Day(now),
		EntityKind:   models.EntityChannel,
		Views:        channel.ViewCount,
		Subscribers:  channel.SubscriberCount,
		VideoCount:   channel.VideoCount,
		UpdatedAt:    now,
	}

	if err := r.store.UpsertBatch(ctx, []models.MetricsSnapshot{snapshot}); err != nil {
		r.logger.Error("Failed to record channel snapshot",
			zap.String("owner_id", ownerID),
			zap.String("channel_id", channel.ID),
			zap.Error(err),
		)
		return false, fmt.Errorf("record channel snapshot: %w", err)
	}
	return true, nil
}

// Trend compares today's value of metric with the most recent earlier
// snapshot of the same entity
func (r *Recorder) Trend(ctx context.Context, ownerID, entityID string, metric Metric) (analytics.TrendResult, error) {
	today := models.Day(r.clock.Now())

	current, err := r.store.On(ctx, ownerID, entityID, today)
	if err != nil {
		return analytics.TrendResult{}, fmt.Errorf("load current snapshot: %w", err)
	}
	if current == nil {
		return analytics.TrendResult{}, ErrNoSnapshot
	}
	if current.EntityKind != metric.Kind() {
		return analytics.TrendResult{}, fmt.Errorf("%s is a %s, not a %s", entityID, current.EntityKind, metric.Kind())
	}

	previous, err := r.store.LatestBefore(ctx, ownerID, entityID, today)
	if err != nil {
		return analytics.TrendResult{}, fmt.Errorf("load previous snapshot: %w", err)
	}

	var prev float64
	if previous != nil {
		prev = metric.value(previous)
	}
	return analytics.CalculateTrend(metric.value(current), prev), nil
}
