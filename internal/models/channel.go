package models

import (
	"time"
)

// Channel represents a tracked video channel and its aggregate totals
type Channel struct {
	ID                string    `gorm:"primaryKey;type:varchar(64);column:id" json:"id"`
	OwnerID           string    `gorm:"type:varchar(64);not null;default:'';index:channels_owner_idx;column:owner_id" json:"ownerId"`
	Title             string    `gorm:"type:varchar(255);not null;default:'';column:title" json:"title"`
	UploadsPlaylistID string    `gorm:"type:varchar(64);not null;default:'';column:uploads_playlist_id" json:"uploadsPlaylistId"`
	SubscriberCount   int64     `gorm:"not null;default:0;column:subscriber_count" json:"subscriberCount"`
	ViewCount         int64     `gorm:"not null;default:0;column:view_count" json:"viewCount"`
	VideoCount        int64     `gorm:"not null;default:0;column:video_count" json:"videoCount"`
	CreatedAt         time.Time `gorm:"not null;column:created_at" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"not null;column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name for Channel
func (Channel) TableName() string {
	return "channels"
}
