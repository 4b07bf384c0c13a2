package youtube

import (
	"context"
	"encoding/json"
	"fmt"

	yt "google.golang.org/api/youtube/v3"

	"github.com/tubemetrics/freshness/internal/models"
)

// MaxPageSize is the largest maxResults the API accepts for list calls
const MaxPageSize = 50

var (
	channelParts = []string{"snippet", "statistics", "contentDetails"}
	videoParts   = []string{"snippet", "statistics", "contentDetails"}
)

func (c *Client) fetch(ctx context.Context, endpoint Endpoint, params Params, refresh bool) (json.RawMessage, error) {
	if refresh {
		return c.FetchFresh(ctx, endpoint, params)
	}
	return c.Fetch(ctx, endpoint, params)
}

// ChannelInfo returns the channel's metadata, totals and uploads playlist
func (c *Client) ChannelInfo(ctx context.Context, channelID string, refresh bool) (*models.Channel, error) {
	raw, err := c.fetch(ctx, EndpointChannels, Params{Part: channelParts, ID: []string{channelID}}, refresh)
	if err != nil {
		return nil, err
	}

	var resp yt.ChannelListResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode channels response: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0] == nil {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	return channelFromAPI(resp.Items[0]), nil
}

// UploadedVideoIDs returns one page of video ids from an uploads playlist,
// newest first, and the token of the next page ("" on the last page)
func (c *Client) UploadedVideoIDs(ctx context.Context, playlistID, pageToken string, pageSize int, refresh bool) ([]string, string, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	raw, err := c.fetch(ctx, EndpointPlaylistItems, Params{
		Part:       []string{"contentDetails"},
		PlaylistID: playlistID,
		MaxResults: pageSize,
		PageToken:  pageToken,
	}, refresh)
	if err != nil {
		return nil, "", err
	}

	var resp yt.PlaylistItemListResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", fmt.Errorf("decode playlistItems response: %w", err)
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
			continue
		}
		ids = append(ids, item.ContentDetails.VideoId)
	}
	return ids, resp.NextPageToken, nil
}

// VideoDetails returns metadata and statistics for ids, requesting at most
// MaxPageSize ids per call. Videos the API no longer returns are omitted.
func (c *Client) VideoDetails(ctx context.Context, ids []string, refresh bool) ([]models.Video, error) {
	videos := make([]models.Video, 0, len(ids))
	for start := 0; start < len(ids); start += MaxPageSize {
		end := min(start+MaxPageSize, len(ids))

		raw, err := c.fetch(ctx, EndpointVideos, Params{Part: videoParts, ID: ids[start:end]}, refresh)
		if err != nil {
			return nil, err
		}

		var resp yt.VideoListResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode videos response: %w", err)
		}
		for _, item := range resp.Items {
			if item == nil {
				continue
			}
			videos = append(videos, videoFromAPI(item))
		}
	}
	return videos, nil
}
