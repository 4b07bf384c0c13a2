package history

import (
	"fmt"

	"github.com/tubemetrics/freshness/internal/models"
)

// Metric names one value of a snapshot. It is implemented only by
// VideoMetric and ChannelMetric.
type Metric interface {
	Kind() models.EntityKind
	Name() string
	value(s *models.MetricsSnapshot) float64
}

// VideoMetric is a metric of a video snapshot
type VideoMetric string

const (
	VideoViews    VideoMetric = "views"
	VideoLikes    VideoMetric = "likes"
	VideoComments VideoMetric = "comments"
	VideoVPH      VideoMetric = "vph"
)

func (m VideoMetric) Kind() models.EntityKind { return models.EntityVideo }
func (m VideoMetric) Name() string            { return string(m) }

func (m VideoMetric) value(s *models.MetricsSnapshot) float64 {
	switch m {
	case VideoViews:
		return float64(s.Views)
	case VideoLikes:
		return float64(s.Likes)
	case VideoComments:
		return float64(s.Comments)
	case VideoVPH:
		return s.VPH
	}
	panic(fmt.Sprintf("unhandled video metric %q", string(m)))
}

// ChannelMetric is a metric of a channel snapshot
type ChannelMetric string

const (
	ChannelSubscribers ChannelMetric = "subscribers"
	ChannelViews       ChannelMetric = "views"
	ChannelVideos      ChannelMetric = "videos"
)

func (m ChannelMetric) Kind() models.EntityKind { return models.EntityChannel }
func (m ChannelMetric) Name() string            { return string(m) }

func (m ChannelMetric) value(s *models.MetricsSnapshot) float64 {
	switch m {
	case ChannelSubscribers:
		return float64(s.Subscribers)
	case ChannelViews:
		return float64(s.Views)
	case ChannelVideos:
		return float64(s.VideoCount)
	}
	panic(fmt.Sprintf("unhandled channel metric %q", string(m)))
}

// ParseMetric resolves a metric name for an entity kind
func ParseMetric(kind models.EntityKind, name string) (Metric, error) {
	switch kind {
	case models.EntityVideo:
		switch m := VideoMetric(name); m {
		case VideoViews, VideoLikes, VideoComments, VideoVPH:
			return m, nil
		}
	case models.EntityChannel:
		switch m := ChannelMetric(name); m {
		case ChannelSubscribers, ChannelViews, ChannelVideos:
			return m, nil
		}
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return nil, fmt.Errorf("unknown %s metric %q", kind, name)
}
