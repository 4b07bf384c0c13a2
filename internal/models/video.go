package models

import (
	"time"
)

// Video represents a stored video with its latest counters.
// ComputedVPH is derived from ViewCount and PublishedAt and is rewritten on
// every upsert.
type Video struct {
	ExternalID      string    `gorm:"primaryKey;type:varchar(32);column:external_id" json:"externalId"`
	ChannelID       string    `gorm:"type:varchar(64);not null;index:videos_channel_published_idx,priority:1;column:channel_id" json:"channelId"`
	Title           string    `gorm:"type:text;not null;default:'';column:title" json:"title"`
	ViewCount       int64     `gorm:"not null;default:0;column:view_count" json:"viewCount"`
	LikeCount       int64     `gorm:"not null;default:0;column:like_count" json:"likeCount"`
	CommentCount    int64     `gorm:"not null;default:0;column:comment_count" json:"commentCount"`
	PublishedAt     time.Time `gorm:"not null;index:videos_channel_published_idx,priority:2,sort:desc;column:published_at" json:"publishedAt"`
	DurationSeconds int64     `gorm:"not null;default:0;column:duration_seconds" json:"durationSeconds"`
	ComputedVPH     float64   `gorm:"not null;default:0;column:computed_vph" json:"computedVph"`
	SyncedAt        time.Time `gorm:"not null;column:synced_at" json:"syncedAt"`
}

// TableName specifies the table name for Video
func (Video) TableName() string {
	return "videos"
}
