package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	yt "google.golang.org/api/youtube/v3"

	"github.com/tubemetrics/freshness/internal/analytics"
	"github.com/tubemetrics/freshness/internal/channelsync"
	"github.com/tubemetrics/freshness/internal/history"
	"github.com/tubemetrics/freshness/internal/models"
	"github.com/tubemetrics/freshness/internal/scheduler"
	"github.com/tubemetrics/freshness/internal/youtube"
)

type fakeSyncer struct {
	syncReq     *channelsync.Request
	syncErr     error
	fullIDs     []string
	fullErr     error
	videos      []models.Video
	videoLimit  int
	trackedID   string
	trackedWith string
}

func (f *fakeSyncer) SyncChannels(_ context.Context, req channelsync.Request) (*channelsync.Result, error) {
	f.syncReq = &req
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &channelsync.Result{RunID: "run", FromAPI: req.ChannelIDs}, nil
}

func (f *fakeSyncer) FullSync(_ context.Context, ids ...string) (*channelsync.FullSyncResult, error) {
	f.fullIDs = ids
	if f.fullErr != nil {
		return nil, f.fullErr
	}
	return &channelsync.FullSyncResult{RunID: "run", ChannelID: ids[0], Success: true, VideoCount: 12}, nil
}

func (f *fakeSyncer) ChannelSyncStatus(_ context.Context, id string) (*channelsync.SyncStatusView, error) {
	return &channelsync.SyncStatusView{ChannelID: id, Status: models.SyncStatusIdle, StoredVideoCount: 4}, nil
}

func (f *fakeSyncer) StoredVideos(_ context.Context, _ []string, limit int) ([]models.Video, error) {
	f.videoLimit = limit
	return f.videos, nil
}

func (f *fakeSyncer) TrackChannel(_ context.Context, id, owner string) error {
	f.trackedID, f.trackedWith = id, owner
	return nil
}

type fakeBackground struct {
	calls       int
	ctxErr      error
	hasDeadline bool
}

func (f *fakeBackground) BackgroundSyncAllChannels(ctx context.Context) (*scheduler.Summary, error) {
	f.calls++
	f.ctxErr = ctx.Err()
	_, f.hasDeadline = ctx.Deadline()
	return &scheduler.Summary{Channels: 2, Succeeded: 2, Errors: []channelsync.ChannelError{}}, nil
}

type fakeSearch struct {
	params youtube.Params
	res    *youtube.SearchResult
	err    error
}

func (f *fakeSearch) Search(_ context.Context, p youtube.Params) (*youtube.SearchResult, error) {
	f.params = p
	return f.res, f.err
}

type fakeTrends struct {
	metric history.Metric
	err    error
}

func (f *fakeTrends) Trend(_ context.Context, _, _ string, m history.Metric) (analytics.TrendResult, error) {
	f.metric = m
	if f.err != nil {
		return analytics.TrendResult{}, f.err
	}
	return analytics.CalculateTrend(150, 100), nil
}

type fakeHealth struct {
	err error
}

func (f fakeHealth) Health(context.Context) error { return f.err }

type testServer struct {
	engine     *gin.Engine
	syncer     *fakeSyncer
	background *fakeBackground
	search     *fakeSearch
	trends     *fakeTrends
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		engine:     gin.New(),
		syncer:     &fakeSyncer{},
		background: &fakeBackground{},
		search:     &fakeSearch{},
		trends:     &fakeTrends{},
	}
	router := NewRouter(Deps{
		Syncer:     s.syncer,
		Background: s.background,
		Search:     s.search,
		Trends:     s.trends,
		Health:     fakeHealth{},
	}, Options{CronSecret: secret, OwnerID: "owner", DefaultVideosPerChannel: 20, CronTimeout: time.Minute}, zap.NewNop())
	router.SetupRoutes(s.engine)
	return s
}

func (s *testServer) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCronSync_Auth(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		status int
	}{
		{name: "valid secret", secret: "s3cret", header: "Bearer s3cret", status: http.StatusOK},
		{name: "missing header", secret: "s3cret", status: http.StatusUnauthorized},
		{name: "wrong secret", secret: "s3cret", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "not bearer", secret: "s3cret", header: "Basic s3cret", status: http.StatusUnauthorized},
		{name: "unconfigured secret", secret: "", header: "Bearer ", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.secret)
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}

			w := s.do(http.MethodPost, "/api/cron/sync", "", headers)
			assert.Equal(t, tt.status, w.Code)

			if tt.status == http.StatusOK {
				assert.Equal(t, 1, s.background.calls)
				assert.Equal(t, float64(2), decode(t, w)["succeeded"])
			} else {
				assert.Zero(t, s.background.calls, "no sync work without authorization")
			}
		})
	}
}

func TestCronSync_OutlivesDisconnectedCaller(t *testing.T) {
	s := newTestServer(t, "s3cret")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/cron/sync", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, s.background.calls)
	assert.NoError(t, s.background.ctxErr)
	assert.True(t, s.background.hasDeadline)
}

func TestManualSync(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodPost, "/api/sync", `{"channelIds":["UC1","UC2"],"videosPerChannel":5,"forceRefresh":true}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, s.syncer.syncReq)
	assert.Equal(t, []string{"UC1", "UC2"}, s.syncer.syncReq.ChannelIDs)
	assert.Equal(t, 5, *s.syncer.syncReq.VideosPerChannel)
	assert.True(t, s.syncer.syncReq.ForceRefresh)
	assert.Equal(t, []interface{}{"UC1", "UC2"}, decode(t, w)["fromApi"])
}

func TestManualSync_FullSync(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodPost, "/api/sync", `{"channelIds":["UC1"],"fullSync":true}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"UC1"}, s.syncer.fullIDs)
	assert.Equal(t, float64(12), decode(t, w)["videoCount"])
}

func TestManualSync_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		syncErr error
		fullErr error
		status  int
	}{
		{name: "malformed body", body: `{"channelIds":`, status: http.StatusBadRequest},
		{name: "full sync with limit", body: `{"channelIds":["UC1"],"fullSync":true,"videosPerChannel":3}`, status: http.StatusBadRequest},
		{
			name:    "full sync of two channels",
			body:    `{"channelIds":["UC1","UC2"],"fullSync":true}`,
			fullErr: &channelsync.ValidationError{Field: "channelIds", Message: "full sync accepts exactly one channel"},
			status:  http.StatusBadRequest,
		},
		{
			name:    "busy channel",
			body:    `{"channelIds":["UC1"],"fullSync":true}`,
			fullErr: channelsync.ErrSyncInProgress,
			status:  http.StatusConflict,
		},
		{
			name:    "storage failure",
			body:    `{"channelIds":["UC1"],"videosPerChannel":1}`,
			syncErr: errors.New("connection refused"),
			status:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "")
			s.syncer.syncErr = tt.syncErr
			s.syncer.fullErr = tt.fullErr

			w := s.do(http.MethodPost, "/api/sync", tt.body, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestStoredVideosAndStatus(t *testing.T) {
	s := newTestServer(t, "")
	s.syncer.videos = []models.Video{{ExternalID: "v1", ChannelID: "UC1"}}

	w := s.do(http.MethodGet, "/api/channels/UC1/videos", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, s.syncer.videoLimit)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = s.do(http.MethodGet, "/api/channels/UC1/videos?limit=7", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, s.syncer.videoLimit)

	w = s.do(http.MethodGet, "/api/channels/UC1/videos?limit=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/channels/UC1/sync-status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "idle", body["status"])
	assert.Equal(t, float64(4), body["storedVideoCount"])
}

func TestOutliers(t *testing.T) {
	s := newTestServer(t, "")
	s.syncer.videos = []models.Video{
		{ExternalID: "a", ViewCount: 100},
		{ExternalID: "b", ViewCount: 100},
		{ExternalID: "c", ViewCount: 100},
	}

	w := s.do(http.MethodGet, "/api/channels/UC1/outliers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, s.syncer.videoLimit)

	var body struct {
		Outliers []analytics.OutlierScore `json:"outliers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Outliers, 3)
	assert.Equal(t, 50, body.Outliers[0].Score)
	assert.Equal(t, analytics.PerformanceAverage, body.Outliers[0].PerformanceLevel)
}

func TestSearch(t *testing.T) {
	stored := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	s := newTestServer(t, "")
	s.search.res = &youtube.SearchResult{
		Response: &yt.SearchListResponse{Items: []*yt.SearchResult{{Etag: "e1"}}},
		Stale:    true,
		StoredAt: stored,
		Warning:  "quota exceeded",
	}

	w := s.do(http.MethodGet, "/api/search?q=golang&maxResults=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "golang", s.search.params.Q)
	assert.Equal(t, 10, s.search.params.MaxResults)
	assert.Equal(t, "video", s.search.params.Type)
	assert.Contains(t, w.Header().Get("Warning"), "quota exceeded")

	var body SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Stale)
	assert.Equal(t, stored, body.StoredAt)
}

func TestSearch_Errors(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodGet, "/api/search", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.search.err = youtube.ErrQuotaExhausted
	w = s.do(http.MethodGet, "/api/search?q=golang", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.search.err = fmt.Errorf("%w: %w", youtube.ErrQuotaExhausted, &youtube.APIError{StatusCode: http.StatusInternalServerError})
	w = s.do(http.MethodGet, "/api/search?q=golang", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.search.err = &youtube.ConfigError{Setting: "youtube.api_key"}
	w = s.do(http.MethodGet, "/api/search?q=golang", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTrend(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodGet, "/api/trends/channel/UC1?metric=subscribers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, history.ChannelSubscribers, s.trends.metric)
	trend := decode(t, w)["trend"].(map[string]interface{})
	assert.Equal(t, 50.0, trend["percentageChange"])
	assert.Equal(t, true, trend["hasPriorData"])

	w = s.do(http.MethodGet, "/api/trends/video/v1?metric=subscribers", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.trends.err = history.ErrNoSnapshot
	w = s.do(http.MethodGet, "/api/trends/video/v1?metric=views", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrackChannel(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodPost, "/api/channels", `{"channelId":"UC9"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "UC9", s.syncer.trackedID)
	assert.Equal(t, "owner", s.syncer.trackedWith)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewRouter(Deps{Health: fakeHealth{err: errors.New("db down")}}, Options{}, zap.NewNop()).SetupRoutes(engine)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
