package models

import (
	"time"
)

// SyncStatus is the synchronization state of one channel
type SyncStatus string

const (
	SyncStatusIdle        SyncStatus = "idle"
	SyncStatusSyncing     SyncStatus = "syncing"
	SyncStatusFullSyncing SyncStatus = "full-syncing"
	SyncStatusError       SyncStatus = "error"
)

// Busy reports whether a sync is in flight
func (s SyncStatus) Busy() bool {
	return s == SyncStatusSyncing || s == SyncStatusFullSyncing
}

// ChannelSyncState tracks sync status and stored video count per channel
type ChannelSyncState struct {
	ChannelID        string     `gorm:"primaryKey;type:varchar(64);column:channel_id" json:"channelId"`
	Status           SyncStatus `gorm:"type:varchar(16);not null;default:'idle';index:sync_state_status_idx;column:status" json:"status"`
	LastError        string     `gorm:"type:text;not null;default:'';column:last_error" json:"lastError,omitempty"`
	StoredVideoCount int64      `gorm:"not null;default:0;column:stored_video_count" json:"storedVideoCount"`
	LastSyncedAt     *time.Time `gorm:"column:last_synced_at" json:"lastSyncedAt,omitempty"`
	LastFullSyncAt   *time.Time `gorm:"column:last_full_sync_at" json:"lastFullSyncAt,omitempty"`
	UpdatedAt        time.Time  `gorm:"not null;column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name for ChannelSyncState
func (ChannelSyncState) TableName() string {
	return "channel_sync_state"
}
