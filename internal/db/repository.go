package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tubemetrics/freshness/internal/models"
)

// interruptedMessage is stored on syncs reset by Recover
const interruptedMessage = "interrupted"

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ChannelRepository provides channel-related database operations
type ChannelRepository struct {
	*Repository
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(repo *Repository) *ChannelRepository {
	return &ChannelRepository{Repository: repo}
}

// GetByID retrieves a channel by ID
func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// Upsert stores the channel's metadata and totals. The owner of an existing
// channel is left untouched.
func (r *ChannelRepository) Upsert(ctx context.Context, channel *models.Channel) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "uploads_playlist_id", "subscriber_count", "view_count", "video_count", "updated_at",
		}),
	}).Create(channel).Error
}

// Track registers a channel for the owner and gives it an idle sync state
func (r *ChannelRepository) Track(ctx context.Context, channelID, ownerID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		channel := &models.Channel{ID: channelID, OwnerID: ownerID}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner_id", "updated_at"}),
		}).Create(channel).Error
		if err != nil {
			return err
		}

		state := &models.ChannelSyncState{ChannelID: channelID, Status: models.SyncStatusIdle}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(state).Error
	})
}

// ListTracked returns every tracked channel
func (r *ChannelRepository) ListTracked(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	if err := r.db.WithContext(ctx).Order("id").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// VideoRepository provides video-related database operations
type VideoRepository struct {
	*Repository
}

// NewVideoRepository creates a new video repository
func NewVideoRepository(repo *Repository) *VideoRepository {
	return &VideoRepository{Repository: repo}
}

// videoUpsertBatch is the number of rows per INSERT statement
const videoUpsertBatch = 100

// UpsertBatch inserts new videos and updates existing ones by external id
func (r *VideoRepository) UpsertBatch(ctx context.Context, videos []models.Video) error {
	if len(videos) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"channel_id", "title", "view_count", "like_count", "comment_count",
			"published_at", "duration_seconds", "computed_vph", "synced_at",
		}),
	}).CreateInBatches(videos, videoUpsertBatch).Error
}

// ListByChannels returns stored videos of each channel, newest first. A
// positive limit applies per channel.
func (r *VideoRepository) ListByChannels(ctx context.Context, channelIDs []string, limit int) ([]models.Video, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}

	if limit <= 0 {
		var videos []models.Video
		err := r.db.WithContext(ctx).
			Where("channel_id IN ?", channelIDs).
			Order("channel_id, published_at DESC").
			Find(&videos).Error
		if err != nil {
			return nil, err
		}
		return videos, nil
	}

	var videos []models.Video
	for _, id := range channelIDs {
		var page []models.Video
		err := r.db.WithContext(ctx).
			Where("channel_id = ?", id).
			Order("published_at DESC").
			Limit(limit).
			Find(&page).Error
		if err != nil {
			return nil, err
		}
		videos = append(videos, page...)
	}
	return videos, nil
}

// CountByChannel returns the number of stored videos of a channel
func (r *VideoRepository) CountByChannel(ctx context.Context, channelID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Video{}).Where("channel_id = ?", channelID).Count(&count).Error
	return count, err
}

// SyncStateRepository provides sync status database operations
type SyncStateRepository struct {
	*Repository
}

// NewSyncStateRepository creates a new sync state repository
func NewSyncStateRepository(repo *Repository) *SyncStateRepository {
	return &SyncStateRepository{Repository: repo}
}

// Get retrieves the sync state of a channel, or nil if it was never synced
func (r *SyncStateRepository) Get(ctx context.Context, channelID string) (*models.ChannelSyncState, error) {
	var state models.ChannelSyncState
	if err := r.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// Acquire moves an idle or failed channel into status. It reports false
// when another sync holds the channel.
func (r *SyncStateRepository) Acquire(ctx context.Context, channelID string, status models.SyncStatus) (bool, error) {
	acquired := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.ChannelSyncState{ChannelID: channelID, Status: models.SyncStatusIdle}).Error
		if err != nil {
			return err
		}

		res := tx.Model(&models.ChannelSyncState{}).
			Where("channel_id = ? AND status IN ?", channelID, []models.SyncStatus{models.SyncStatusIdle, models.SyncStatusError}).
			Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	return acquired, err
}

// Release ends a sync, recording its outcome and the stored video count
func (r *SyncStateRepository) Release(ctx context.Context, channelID string, mode models.SyncStatus, syncErr error, videoCount int64) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"stored_video_count": videoCount,
		"updated_at":         now,
	}
	if syncErr != nil {
		updates["status"] = models.SyncStatusError
		updates["last_error"] = syncErr.Error()
	} else {
		updates["status"] = models.SyncStatusIdle
		updates["last_error"] = ""
		updates["last_synced_at"] = now
		if mode == models.SyncStatusFullSyncing {
			updates["last_full_sync_at"] = now
		}
	}
	return r.db.WithContext(ctx).Model(&models.ChannelSyncState{}).
		Where("channel_id = ?", channelID).
		Updates(updates).Error
}

// ResetInterrupted marks syncs left running by a dead process as failed.
// Only rows last updated before the cutoff are reset.
func (r *SyncStateRepository) ResetInterrupted(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ChannelSyncState{}).
		Where("status IN ? AND updated_at < ?", []models.SyncStatus{models.SyncStatusSyncing, models.SyncStatusFullSyncing}, before.UTC()).
		Updates(map[string]interface{}{
			"status":     models.SyncStatusError,
			"last_error": interruptedMessage,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// SnapshotRepository provides metrics history database operations
type SnapshotRepository struct {
	*Repository
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(repo *Repository) *SnapshotRepository {
	return &SnapshotRepository{Repository: repo}
}

// UpsertBatch writes snapshots, replacing any row for the same owner,
// entity and day
func (r *SnapshotRepository) UpsertBatch(ctx context.Context, snapshots []models.MetricsSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "entity_id"}, {Name: "recorded_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"entity_kind", "views", "likes", "comments", "vph", "subscribers", "video_count", "updated_at",
		}),
	}).CreateInBatches(snapshots, videoUpsertBatch).Error
}

// On returns the snapshot recorded on day, or nil
func (r *SnapshotRepository) On(ctx context.Context, ownerID, entityID string, day time.Time) (*models.MetricsSnapshot, error) {
	var snapshot models.MetricsSnapshot
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND entity_id = ? AND recorded_date = ?", ownerID, entityID, models.Day(day)).
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

// LatestBefore returns the most recent snapshot recorded before day, or nil
func (r *SnapshotRepository) LatestBefore(ctx context.Context, ownerID, entityID string, day time.Time) (*models.MetricsSnapshot, error) {
	var snapshot models.MetricsSnapshot
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND entity_id = ? AND recorded_date < ?", ownerID, entityID, models.Day(day)).
		Order("recorded_date DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}
