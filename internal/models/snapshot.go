package models

import (
	"time"
)

// EntityKind distinguishes video snapshots from channel snapshots
type EntityKind string

const (
	EntityVideo   EntityKind = "video"
	EntityChannel EntityKind = "channel"
)

// MetricsSnapshot is one day's metric values for a video or channel.
// At most one row exists per (owner, entity, day).
type MetricsSnapshot struct {
	OwnerID      string     `gorm:"primaryKey;type:varchar(64);column:owner_id" json:"ownerId"`
	EntityID     string     `gorm:"primaryKey;type:varchar(64);column:entity_id" json:"entityId"`
	RecordedDate time.Time  `gorm:"primaryKey;type:date;column:recorded_date" json:"recordedDate"`
	EntityKind   EntityKind `gorm:"type:varchar(16);not null;column:entity_kind" json:"entityKind"`

	// Video metrics
	Views    int64   `gorm:"not null;default:0;column:views" json:"views"`
	Likes    int64   `gorm:"not null;default:0;column:likes" json:"likes"`
	Comments int64   `gorm:"not null;default:0;column:comments" json:"comments"`
	VPH      float64 `gorm:"not null;default:0;column:vph" json:"vph"`

	// Channel metrics; Views holds total channel views
	Subscribers int64 `gorm:"not null;default:0;column:subscribers" json:"subscribers"`
	VideoCount  int64 `gorm:"not null;default:0;column:video_count" json:"videoCount"`

	UpdatedAt time.Time `gorm:"not null;column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name for MetricsSnapshot
func (MetricsSnapshot) TableName() string {
	return "metrics_snapshots"
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
