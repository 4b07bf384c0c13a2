package events

import (
	"context"
	"time"
)

// SyncEvent describes a finished channel synchronization
type SyncEvent struct {
	RunID      string    `json:"runId"`
	ChannelID  string    `json:"channelId"`
	Mode       string    `json:"mode"`
	VideoCount int       `json:"videoCount"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Publisher delivers sync events to downstream consumers
type Publisher interface {
	PublishSync(ctx context.Context, event SyncEvent) error
	Close() error
}

// Noop discards every event
type Noop struct{}

func (Noop) PublishSync(context.Context, SyncEvent) error { return nil }
func (Noop) Close() error                                 { return nil }
