package youtube

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/google/go-querystring/query"

	"github.com/tubemetrics/freshness/internal/cache"
)

// Endpoint is a resource path of the video-data API
type Endpoint string

const (
	EndpointChannels      Endpoint = "channels"
	EndpointVideos        Endpoint = "videos"
	EndpointSearch        Endpoint = "search"
	EndpointPlaylistItems Endpoint = "playlistItems"
)

// Category returns the cache category used for responses of e
func (e Endpoint) Category() cache.Category {
	switch e {
	case EndpointChannels:
		return cache.CategoryChannel
	case EndpointVideos:
		return cache.CategoryVideo
	case EndpointPlaylistItems:
		return cache.CategoryVideoList
	case EndpointSearch:
		return cache.CategorySearch
	default:
		return cache.CategoryDefault
	}
}

// quotaCost is the number of daily quota units one call consumes
func (e Endpoint) quotaCost() int64 {
	if e == EndpointSearch {
		return 100
	}
	return 1
}

// Params are the query parameters of an API call. The API key is added at
// request time and never appears here.
type Params struct {
	Part       []string `url:"part,comma,omitempty"`
	ID         []string `url:"id,comma,omitempty"`
	ChannelID  string   `url:"channelId,omitempty"`
	PlaylistID string   `url:"playlistId,omitempty"`
	Q          string   `url:"q,omitempty"`
	Type       string   `url:"type,omitempty"`
	MaxResults int      `url:"maxResults,omitempty"`
	Order      string   `url:"order,omitempty"`
	PageToken  string   `url:"pageToken,omitempty"`
}

// canonical returns a copy with list parameters sorted and deduplicated
func (p Params) canonical() Params {
	p.Part = sortedUnique(p.Part)
	p.ID = sortedUnique(p.ID)
	return p
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// Values encodes p into canonical query values
func (p Params) Values() (url.Values, error) {
	values, err := query.Values(p.canonical())
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return values, nil
}

// CacheKey builds the cache key for a call. Equivalent parameter sets map
// to the same key regardless of list order.
func CacheKey(endpoint Endpoint, p Params) (string, error) {
	values, err := p.Values()
	if err != nil {
		return "", err
	}
	return string(endpoint) + ":" + values.Encode(), nil
}
