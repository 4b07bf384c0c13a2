package channelsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/internal/analytics"
	"github.com/tubemetrics/freshness/internal/events"
	"github.com/tubemetrics/freshness/internal/models"
	"github.com/tubemetrics/freshness/pkg/logging"
	"github.com/tubemetrics/freshness/pkg/telemetry"
)

const (
	// maxPageSize is the most items one list call returns
	maxPageSize            = 50
	defaultMaxSyncDuration = 2 * time.Hour
)

type channelOutcome struct {
	videos     []models.Video
	fromCache  bool
	inProgress bool
	err        error
}

func modeName(status models.SyncStatus) string {
	if status == models.SyncStatusFullSyncing {
		return "full"
	}
	return "incremental"
}

// syncChannel runs one channel through the status machine. A zero limit
// fetches every video.
func (o *Orchestrator) syncChannel(ctx context.Context, runID, channelID string, status models.SyncStatus, limit int, force bool) (out channelOutcome) {
	logger := logging.WithChannel(o.logger, channelID).With(zap.String("run_id", runID), zap.String("mode", modeName(status)))

	if !force {
		if videos, ok := o.storedIfFresh(ctx, channelID, limit); ok {
			telemetry.RecordSyncOutcome(ctx, modeName(status), "stored")
			return channelOutcome{videos: videos, fromCache: true}
		}
	}

	if !o.begin(channelID, status) {
		return channelOutcome{inProgress: true, err: fmt.Errorf("%w: %s", ErrSyncInProgress, channelID)}
	}
	defer o.end(channelID)

	acquired, err := o.deps.States.Acquire(ctx, channelID, status)
	if err != nil {
		return channelOutcome{err: fmt.Errorf("acquire sync status: %w", err)}
	}
	if !acquired {
		return channelOutcome{inProgress: true, err: fmt.Errorf("%w: %s", ErrSyncInProgress, channelID)}
	}

	ctx, span := telemetry.StartSpan(ctx, "channelsync.sync")
	span.SetAttributes(
		attribute.String("channel.id", channelID),
		attribute.String("sync.mode", modeName(status)),
	)

	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.MaxSyncDuration)
	var channel *models.Channel
	channel, out.videos, out.err = o.fetchAndStore(fetchCtx, channelID, limit, force)
	cancel()
	telemetry.EndSpan(span, out.err)

	// Status, counts and notifications are written even if the request
	// context was cancelled mid-sync.
	detached := context.WithoutCancel(ctx)
	o.finish(detached, logger, runID, channelID, status, channel, out)
	return out
}

// storedIfFresh answers from storage when the channel synced recently
func (o *Orchestrator) storedIfFresh(ctx context.Context, channelID string, limit int) ([]models.Video, bool) {
	if o.opts.StoredFreshFor <= 0 {
		return nil, false
	}

	state, err := o.deps.States.Get(ctx, channelID)
	if err != nil || state == nil || state.Status != models.SyncStatusIdle || state.LastSyncedAt == nil {
		return nil, false
	}
	if o.clock.Since(*state.LastSyncedAt) > o.opts.StoredFreshFor {
		return nil, false
	}
	if limit == 0 && state.LastFullSyncAt == nil {
		return nil, false
	}

	videos, err := o.deps.Videos.ListByChannels(ctx, []string{channelID}, limit)
	if err != nil || len(videos) == 0 {
		return nil, false
	}
	if limit > 0 && len(videos) < limit && int64(len(videos)) < state.StoredVideoCount {
		return nil, false
	}
	return videos, true
}

func (o *Orchestrator) fetchAndStore(ctx context.Context, channelID string, limit int, force bool) (*models.Channel, []models.Video, error) {
	channel, err := o.deps.Source.ChannelInfo(ctx, channelID, force)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch channel: %w", err)
	}
	if channel.UploadsPlaylistID == "" {
		return nil, nil, fmt.Errorf("channel %s has no uploads playlist", channelID)
	}

	channel.OwnerID = o.opts.OwnerID
	existing, err := o.deps.Channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, nil, fmt.Errorf("load channel: %w", err)
	}
	if existing != nil && existing.OwnerID != "" {
		channel.OwnerID = existing.OwnerID
	}
	if err := o.deps.Channels.Upsert(ctx, channel); err != nil {
		return nil, nil, fmt.Errorf("store channel: %w", err)
	}

	ids, err := o.uploadedIDs(ctx, channel.UploadsPlaylistID, limit, force)
	if err != nil {
		return channel, nil, fmt.Errorf("list uploads: %w", err)
	}

	videos, err := o.deps.Source.VideoDetails(ctx, ids, force)
	if err != nil {
		return channel, nil, fmt.Errorf("fetch videos: %w", err)
	}

	now := o.clock.Now().UTC()
	for i := range videos {
		if videos[i].ChannelID == "" {
			videos[i].ChannelID = channelID
		}
		videos[i].ComputedVPH = analytics.VPH(videos[i].ViewCount, videos[i].PublishedAt, now)
		videos[i].SyncedAt = now
	}
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].PublishedAt.After(videos[j].PublishedAt)
	})

	if err := o.deps.Videos.UpsertBatch(ctx, videos); err != nil {
		return channel, nil, fmt.Errorf("store videos: %w", err)
	}
	return channel, videos, nil
}

// uploadedIDs pages through the uploads playlist, newest first, until limit
// ids are collected, the playlist ends or the full sync page cap is hit
func (o *Orchestrator) uploadedIDs(ctx context.Context, playlistID string, limit int, force bool) ([]string, error) {
	var ids []string
	token := ""
	for pages := 0; ; pages++ {
		if limit == 0 && o.opts.MaxFullSyncPages > 0 && pages >= o.opts.MaxFullSyncPages {
			o.logger.Warn("Full sync page cap reached",
				zap.String("playlist_id", playlistID),
				zap.Int("pages", pages),
				zap.Int("videos", len(ids)),
			)
			return ids, nil
		}

		pageSize := o.opts.PageSize
		if limit > 0 {
			pageSize = min(maxPageSize, limit-len(ids))
		}

		page, next, err := o.deps.Source.UploadedVideoIDs(ctx, playlistID, token, pageSize, force)
		if err != nil {
			return nil, err
		}
		ids = append(ids, page...)

		if limit > 0 && len(ids) >= limit {
			return ids[:limit], nil
		}
		if next == "" || len(page) == 0 {
			return ids, nil
		}
		token = next
	}
}

// finish records the sync outcome. Failures here are logged only.
func (o *Orchestrator) finish(ctx context.Context, logger *zap.Logger, runID, channelID string, status models.SyncStatus, channel *models.Channel, out channelOutcome) {
	count, err := o.deps.Videos.CountByChannel(ctx, channelID)
	if err != nil {
		logger.Warn("Failed to count stored videos", zap.Error(err))
	}
	if err := o.deps.States.Release(ctx, channelID, status, out.err, count); err != nil {
		logger.Error("Failed to release sync status", zap.Error(err))
	}

	outcome := "success"
	if out.err != nil {
		outcome = "error"
		logger.Warn("Channel sync failed", zap.Error(out.err))
	} else {
		logger.Info("Channel synced", zap.Int("videos", len(out.videos)), zap.Int64("stored", count))
		o.recordSnapshots(ctx, logger, channel, out.videos)
	}
	telemetry.RecordSyncOutcome(ctx, modeName(status), outcome)

	event := events.SyncEvent{
		RunID:      runID,
		ChannelID:  channelID,
		Mode:       modeName(status),
		VideoCount: len(out.videos),
		Success:    out.err == nil,
		FinishedAt: o.clock.Now().UTC(),
	}
	if out.err != nil {
		event.Error = out.err.Error()
	}
	if err := o.deps.Events.PublishSync(ctx, event); err != nil {
		logger.Warn("Failed to publish sync event", zap.Error(err))
	}
}

func (o *Orchestrator) recordSnapshots(ctx context.Context, logger *zap.Logger, channel *models.Channel, videos []models.Video) {
	if o.deps.Recorder == nil || channel == nil {
		return
	}
	if ok, err := o.deps.Recorder.RecordVideoSnapshot(ctx, channel.OwnerID, videos); !ok {
		logger.Warn("Video snapshot not recorded", zap.Error(err))
	}
	if ok, err := o.deps.Recorder.RecordChannelSnapshot(ctx, channel.OwnerID, channel); !ok {
		logger.Warn("Channel snapshot not recorded", zap.Error(err))
	}
}

// begin claims the channel within this process
func (o *Orchestrator) begin(channelID string, status models.SyncStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[channelID]; busy {
		return false
	}
	o.inFlight[channelID] = status
	return true
}

func (o *Orchestrator) end(channelID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, channelID)
}

// IsSyncInProgress reports whether err means the channel was busy
func IsSyncInProgress(err error) bool {
	return errors.Is(err, ErrSyncInProgress)
}
