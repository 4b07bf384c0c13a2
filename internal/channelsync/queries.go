package channelsync

import (
	"context"
	"time"

	"github.com/tubemetrics/freshness/internal/models"
)

// SyncStatusView is the sync state of one channel as reported to callers
type SyncStatusView struct {
	ChannelID        string            `json:"channelId"`
	Status           models.SyncStatus `json:"status"`
	LastError        string            `json:"lastError,omitempty"`
	StoredVideoCount int64             `json:"storedVideoCount"`
	LastSyncedAt     *time.Time        `json:"lastSyncedAt,omitempty"`
	LastFullSyncAt   *time.Time        `json:"lastFullSyncAt,omitempty"`
}

// StoredVideos returns stored videos of the channels, newest first. A
// positive limit applies per channel.
func (o *Orchestrator) StoredVideos(ctx context.Context, channelIDs []string, limit int) ([]models.Video, error) {
	videos, err := o.deps.Videos.ListByChannels(ctx, channelIDs, limit)
	if err != nil {
		return nil, err
	}
	if videos == nil {
		videos = []models.Video{}
	}
	return videos, nil
}

// ChannelSyncStatus returns the channel's sync state. A channel that never
// synced is idle.
func (o *Orchestrator) ChannelSyncStatus(ctx context.Context, channelID string) (*SyncStatusView, error) {
	state, err := o.deps.States.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &SyncStatusView{ChannelID: channelID, Status: models.SyncStatusIdle}, nil
	}
	return &SyncStatusView{
		ChannelID:        channelID,
		Status:           state.Status,
		LastError:        state.LastError,
		StoredVideoCount: state.StoredVideoCount,
		LastSyncedAt:     state.LastSyncedAt,
		LastFullSyncAt:   state.LastFullSyncAt,
	}, nil
}

// StoredVideoCount returns how many videos of the channel are stored
func (o *Orchestrator) StoredVideoCount(ctx context.Context, channelID string) (int64, error) {
	return o.deps.Videos.CountByChannel(ctx, channelID)
}

// TrackChannel registers a channel for background syncs. An empty owner
// uses the configured default.
func (o *Orchestrator) TrackChannel(ctx context.Context, channelID, ownerID string) error {
	if channelID == "" {
		return &ValidationError{Field: "channelId", Message: "channel id is empty"}
	}
	if ownerID == "" {
		ownerID = o.opts.OwnerID
	}
	return o.deps.Channels.Track(ctx, channelID, ownerID)
}

// TrackedChannels returns the ids of every tracked channel
func (o *Orchestrator) TrackedChannels(ctx context.Context) ([]string, error) {
	channels, err := o.deps.Channels.ListTracked(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(channels))
	for _, c := range channels {
		ids = append(ids, c.ID)
	}
	return ids, nil
}
