package youtube

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/tubemetrics/freshness/internal/models"
)

// durationPattern matches ISO-8601 durations as used by contentDetails,
// e.g. PT1H2M3S or P1DT4M
var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO-8601 duration into seconds
func ParseDuration(s string) (int64, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var total int64
	for i, unit := range []int64{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += n * unit
	}
	return total, nil
}

func channelFromAPI(item *yt.Channel) *models.Channel {
	ch := &models.Channel{ID: item.Id}
	if item.Snippet != nil {
		ch.Title = item.Snippet.Title
	}
	if item.Statistics != nil {
		ch.SubscriberCount = int64(item.Statistics.SubscriberCount)
		ch.ViewCount = int64(item.Statistics.ViewCount)
		ch.VideoCount = int64(item.Statistics.VideoCount)
	}
	if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil {
		ch.UploadsPlaylistID = item.ContentDetails.RelatedPlaylists.Uploads
	}
	return ch
}

func videoFromAPI(item *yt.Video) models.Video {
	v := models.Video{ExternalID: item.Id}
	if item.Snippet != nil {
		v.ChannelID = item.Snippet.ChannelId
		v.Title = item.Snippet.Title
		if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			v.PublishedAt = t.UTC()
		}
	}
	if item.Statistics != nil {
		v.ViewCount = int64(item.Statistics.ViewCount)
		v.LikeCount = int64(item.Statistics.LikeCount)
		v.CommentCount = int64(item.Statistics.CommentCount)
	}
	if item.ContentDetails != nil && item.ContentDetails.Duration != "" {
		if secs, err := ParseDuration(item.ContentDetails.Duration); err == nil {
			v.DurationSeconds = secs
		}
	}
	return v
}
