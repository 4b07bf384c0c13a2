package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/internal/cache"
)

const channelBody = `{
  "items": [{
    "id": "UC1",
    "snippet": {"title": "Gophers"},
    "statistics": {"subscriberCount": "1200", "viewCount": "98000", "videoCount": "42"},
    "contentDetails": {"relatedPlaylists": {"uploads": "UU1"}}
  }]
}`

func TestChannelInfo(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(channelBody))
	})
	client := newTestClient(t, api.server.URL, "secret", clockwork.NewFakeClock())

	ch, err := client.ChannelInfo(context.Background(), "UC1", false)
	require.NoError(t, err)
	assert.Equal(t, "UC1", ch.ID)
	assert.Equal(t, "Gophers", ch.Title)
	assert.Equal(t, "UU1", ch.UploadsPlaylistID)
	assert.Equal(t, int64(1200), ch.SubscriberCount)
	assert.Equal(t, int64(98000), ch.ViewCount)
	assert.Equal(t, int64(42), ch.VideoCount)
}

func TestChannelInfo_NotFound(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	})
	client := newTestClient(t, api.server.URL, "secret", clockwork.NewFakeClock())

	_, err := client.ChannelInfo(context.Background(), "UCmissing", false)
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestUploadedVideoIDs(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "UU1", q.Get("playlistId"))
		assert.Equal(t, "50", q.Get("maxResults"))
		if q.Get("pageToken") == "" {
			w.Write([]byte(`{"nextPageToken":"p2","items":[{"contentDetails":{"videoId":"v1"}},{"contentDetails":{"videoId":"v2"}}]}`))
			return
		}
		w.Write([]byte(`{"items":[{"contentDetails":{"videoId":"v3"}}]}`))
	})
	client := newTestClient(t, api.server.URL, "secret", clockwork.NewFakeClock())
	ctx := context.Background()

	ids, next, err := client.UploadedVideoIDs(ctx, "UU1", "", 500, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, ids)
	assert.Equal(t, "p2", next)

	ids, next, err = client.UploadedVideoIDs(ctx, "UU1", next, 50, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"v3"}, ids)
	assert.Empty(t, next)
}

func TestVideoDetails_Batches(t *testing.T) {
	var (
		mu      sync.Mutex
		batches []int
	)
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("id"), ",")
		mu.Lock()
		batches = append(batches, len(ids))
		mu.Unlock()

		var items []string
		for _, id := range ids {
			items = append(items, fmt.Sprintf(`{
				"id": %q,
				"snippet": {"channelId": "UC1", "title": "t-%s", "publishedAt": "2024-01-02T03:04:05Z"},
				"statistics": {"viewCount": "100", "likeCount": "7", "commentCount": "2"},
				"contentDetails": {"duration": "PT1M30S"}
			}`, id, id))
		}
		w.Write([]byte(`{"items":[` + strings.Join(items, ",") + `]}`))
	})
	client := newTestClient(t, api.server.URL, "secret", clockwork.NewFakeClock())

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("v%03d", i)
	}

	videos, err := client.VideoDetails(context.Background(), ids, false)
	require.NoError(t, err)
	require.Len(t, videos, 120)
	mu.Lock()
	assert.Equal(t, []int{50, 50, 20}, batches)
	mu.Unlock()

	v := videos[0]
	assert.Equal(t, "UC1", v.ChannelID)
	assert.Equal(t, int64(100), v.ViewCount)
	assert.Equal(t, int64(7), v.LikeCount)
	assert.Equal(t, int64(2), v.CommentCount)
	assert.Equal(t, int64(90), v.DurationSeconds)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), v.PublishedAt)
}

func newTestSearchCache(t *testing.T, client *Client, clock clockwork.Clock) *SearchCache {
	t.Helper()
	return NewSearchCache(client, cache.NewMemoryStore[json.RawMessage](), zap.NewNop(), cache.WithClock(clock))
}

func TestSearchCache_FallsBackOnQuotaError(t *testing.T) {
	var quota atomic.Bool
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if quota.Load() {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(quotaBody))
			return
		}
		w.Write([]byte(`{"items":[{"id":{"kind":"youtube#video","videoId":"v1"}}]}`))
	})
	clock := clockwork.NewFakeClock()
	client := newTestClient(t, api.server.URL, "secret", clock)
	search := newTestSearchCache(t, client, clock)
	ctx := context.Background()

	first, err := search.Search(ctx, Params{Q: "golang", Type: "video"})
	require.NoError(t, err)
	assert.False(t, first.Stale)
	require.Len(t, first.Response.Items, 1)

	quota.Store(true)
	clock.Advance(9 * time.Hour)

	second, err := search.Search(ctx, Params{Q: "golang", Type: "video"})
	require.NoError(t, err)
	assert.True(t, second.Stale)
	assert.NotEmpty(t, second.Warning)
	assert.Equal(t, "v1", second.Response.Items[0].Id.VideoId)
	assert.Equal(t, int64(1), search.Stats().Fallbacks)
}

func TestSearchCache_QuotaWithoutFallback(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"slow down"}}`))
	})
	clock := clockwork.NewFakeClock()
	search := newTestSearchCache(t, newTestClient(t, api.server.URL, "secret", clock), clock)

	_, err := search.Search(context.Background(), Params{Q: "nothing cached"})
	assert.ErrorIs(t, err, ErrQuotaExhausted)

	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestSearchCache_LiveFailureWithoutCacheIsExhausted(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"backend error","errors":[{"reason":"backendError"}]}}`))
	})
	clock := clockwork.NewFakeClock()
	search := newTestSearchCache(t, newTestClient(t, api.server.URL, "secret", clock), clock)

	_, err := search.Search(context.Background(), Params{Q: "never cached"})
	assert.ErrorIs(t, err, ErrQuotaExhausted)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestSearchCache_NonQuotaErrorDoesNotFallBack(t *testing.T) {
	var fail atomic.Bool
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"bad","errors":[{"reason":"invalidParameter"}]}}`))
			return
		}
		w.Write([]byte(`{"items":[]}`))
	})
	clock := clockwork.NewFakeClock()
	search := newTestSearchCache(t, newTestClient(t, api.server.URL, "secret", clock), clock)
	ctx := context.Background()

	_, err := search.Search(ctx, Params{Q: "q"})
	require.NoError(t, err)

	fail.Store(true)
	clock.Advance(9 * time.Hour)

	_, err = search.Search(ctx, Params{Q: "q"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.NotErrorIs(t, err, ErrQuotaExhausted)
}

func TestSearchCache_StaleWindowIsLong(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	})
	clock := clockwork.NewFakeClock()
	search := newTestSearchCache(t, newTestClient(t, api.server.URL, "secret", clock), clock)
	ctx := context.Background()

	_, err := search.Search(ctx, Params{Q: "q"})
	require.NoError(t, err)

	clock.Advance(7 * time.Hour)
	res, err := search.Search(ctx, Params{Q: "q"})
	require.NoError(t, err)
	assert.False(t, res.Stale)
	search.cache.Wait()

	assert.Equal(t, int32(2), api.hits.Load())
}
