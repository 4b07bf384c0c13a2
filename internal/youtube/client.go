package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/tubemetrics/freshness/internal/cache"
	"github.com/tubemetrics/freshness/internal/models"
	"github.com/tubemetrics/freshness/pkg/config"
	"github.com/tubemetrics/freshness/pkg/telemetry"
)

// DefaultBaseURL is the public endpoint of the video-data API
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// maxBodySize caps how much of a response is read
const maxBodySize = 16 << 20

// Client calls the video-data API through a tiered response cache. It holds
// the only copy of the API key.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cache   *cache.Tiered[json.RawMessage]
	clock   clockwork.Clock
	logger  *zap.Logger

	mu         sync.Mutex
	quotaDay   time.Time
	quotaUnits int64
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client used for API calls
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithClientClock sets the clock used for quota accounting
func WithClientClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) { c.clock = clock }
}

// NewClient creates an API client. A missing API key is not an error here;
// every call fails with a ConfigError instead.
func NewClient(cfg *config.YouTubeConfig, responses *cache.Tiered[json.RawMessage], logger *zap.Logger, opts ...ClientOption) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		cache:   responses,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the JSON response for endpoint and params, served from the
// response cache when possible
func (c *Client) Fetch(ctx context.Context, endpoint Endpoint, params Params) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Setting: "youtube.api_key"}
	}

	key, err := CacheKey(endpoint, params)
	if err != nil {
		return nil, err
	}

	return c.cache.Get(ctx, key, endpoint.Category(), func(ctx context.Context) (json.RawMessage, error) {
		return c.call(ctx, endpoint, params)
	})
}

// FetchFresh bypasses cached data, calls the API and stores the response
func (c *Client) FetchFresh(ctx context.Context, endpoint Endpoint, params Params) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Setting: "youtube.api_key"}
	}

	key, err := CacheKey(endpoint, params)
	if err != nil {
		return nil, err
	}

	body, err := c.call(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, endpoint.Category(), body); err != nil {
		c.logger.Warn("Failed to store fresh response", zap.String("key", key), zap.Error(err))
	}
	return body, nil
}

// Invalidate drops cached responses whose key contains pattern
func (c *Client) Invalidate(ctx context.Context, pattern string) (int, error) {
	return c.cache.Invalidate(ctx, pattern)
}

// CacheStats returns response cache counters
func (c *Client) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// QuotaUsage is the estimated number of quota units spent on day
type QuotaUsage struct {
	Day   time.Time `json:"day"`
	Units int64     `json:"units"`
}

// QuotaUsage returns the estimated quota spent today (UTC)
func (c *Client) QuotaUsage() QuotaUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	today := models.Day(c.clock.Now())
	if !c.quotaDay.Equal(today) {
		return QuotaUsage{Day: today}
	}
	return QuotaUsage{Day: c.quotaDay, Units: c.quotaUnits}
}

func (c *Client) spend(endpoint Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	today := models.Day(c.clock.Now())
	if !c.quotaDay.Equal(today) {
		c.quotaDay = today
		c.quotaUnits = 0
	}
	c.quotaUnits += endpoint.quotaCost()
}

// call performs one live request. Failures are returned as is; retrying is
// left to the caller.
func (c *Client) call(ctx context.Context, endpoint Endpoint, params Params) (body json.RawMessage, err error) {
	ctx, span := telemetry.StartSpan(ctx, "youtube."+string(endpoint))
	defer func() { telemetry.EndSpan(span, err) }()

	if c.apiKey == "" {
		return nil, &ConfigError{Setting: "youtube.api_key"}
	}

	values, err := params.Values()
	if err != nil {
		return nil, err
	}
	values.Set("key", c.apiKey)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+string(endpoint)+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.spend(endpoint)
	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.RecordAPIRequest(ctx, string(endpoint), 0)
		return nil, fmt.Errorf("youtube %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	telemetry.RecordAPIRequest(ctx, string(endpoint), resp.StatusCode)
	span.SetAttributes(
		attribute.String("youtube.endpoint", string(endpoint)),
		attribute.Int("http.status_code", resp.StatusCode),
	)

	if err := googleapi.CheckResponse(resp); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok {
			apiErr := newAPIError(endpoint, gerr)
			c.logger.Warn("YouTube API call failed",
				zap.String("endpoint", string(endpoint)),
				zap.Int("status", apiErr.StatusCode),
				zap.String("reason", apiErr.Reason),
			)
			return nil, apiErr
		}
		return nil, fmt.Errorf("youtube %s: %w", endpoint, err)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read youtube %s response: %w", endpoint, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("youtube %s: response is not valid JSON", endpoint)
	}

	c.logger.Debug("YouTube API call",
		zap.String("endpoint", string(endpoint)),
		zap.Int("bytes", len(raw)),
	)
	return raw, nil
}
