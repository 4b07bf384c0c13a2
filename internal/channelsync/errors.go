package channelsync

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a channel already has a sync running
var ErrSyncInProgress = errors.New("sync already in progress for channel")

// ValidationError rejects a request before any work starts
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ChannelError is the failure of one channel within a batch
type ChannelError struct {
	ChannelID  string `json:"channelId"`
	Message    string `json:"error"`
	InProgress bool   `json:"inProgress,omitempty"`
}
