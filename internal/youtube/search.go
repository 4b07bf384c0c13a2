package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	yt "google.golang.org/api/youtube/v3"

	"github.com/tubemetrics/freshness/internal/cache"
)

// SearchCategories is the TTL table of the search tier
var SearchCategories = cache.CategoryTable{
	cache.CategorySearch:  {Fresh: 15 * time.Minute, Stale: 8 * time.Hour},
	cache.CategoryDefault: {Fresh: 15 * time.Minute, Stale: 8 * time.Hour},
}

// SearchResult is a search response and whether it is a quota fallback
type SearchResult struct {
	Response *yt.SearchListResponse
	// Stale is set when the live call was refused and an older result
	// was served instead
	Stale    bool
	StoredAt time.Time
	Warning  string
}

// SearchCache is a separate long-lived tier in front of the search
// endpoint. Expired results are only served when the API refuses the live
// call for quota reasons.
type SearchCache struct {
	client *Client
	cache  *cache.Tiered[json.RawMessage]
	logger *zap.Logger
}

// NewSearchCache creates the search tier over store
func NewSearchCache(client *Client, store cache.Store[json.RawMessage], logger *zap.Logger, opts ...cache.Option) *SearchCache {
	opts = append([]cache.Option{
		cache.WithCategories(SearchCategories),
		cache.WithLogger(logger),
	}, opts...)
	opts = append(opts, cache.WithFallbackPolicy(IsQuotaError))

	return &SearchCache{
		client: client,
		cache:  cache.NewTiered[json.RawMessage](store, opts...),
		logger: logger,
	}
}

// Search runs a search through the tier. Expired results stand in only for
// quota refusals. A failed live call wraps ErrQuotaExhausted when it was a
// quota refusal or when nothing was ever cached for the query.
func (s *SearchCache) Search(ctx context.Context, params Params) (*SearchResult, error) {
	if s.client.apiKey == "" {
		return nil, &ConfigError{Setting: "youtube.api_key"}
	}
	if len(params.Part) == 0 {
		params.Part = []string{"snippet"}
	}

	key, err := CacheKey(EndpointSearch, params)
	if err != nil {
		return nil, err
	}

	res, err := s.cache.GetResult(ctx, key, cache.CategorySearch, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.call(ctx, EndpointSearch, params)
	})
	if err != nil {
		if IsQuotaError(err) || (!errors.Is(err, context.Canceled) && !s.retained(ctx, key)) {
			return nil, fmt.Errorf("%w: %w", ErrQuotaExhausted, err)
		}
		return nil, err
	}

	var resp yt.SearchListResponse
	if err := json.Unmarshal(res.Value, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	result := &SearchResult{Response: &resp, StoredAt: res.StoredAt}
	if res.Source == cache.SourceFallback {
		result.Stale = true
		result.Warning = fmt.Sprintf("quota exceeded; showing results cached at %s", res.StoredAt.UTC().Format(time.RFC3339))
		s.logger.Warn("Serving cached search results after quota refusal",
			zap.String("query", params.Q),
			zap.Time("stored_at", res.StoredAt),
		)
	}
	return result, nil
}

// retained reports whether an older result exists for key
func (s *SearchCache) retained(ctx context.Context, key string) bool {
	found, lerr := s.cache.Contains(ctx, key)
	if lerr != nil {
		s.logger.Warn("Search cache lookup failed", zap.String("key", key), zap.Error(lerr))
		return false
	}
	return found
}

// Invalidate drops cached search results whose key contains pattern
func (s *SearchCache) Invalidate(ctx context.Context, pattern string) (int, error) {
	return s.cache.Invalidate(ctx, pattern)
}

// Stats returns search tier counters
func (s *SearchCache) Stats() cache.Stats {
	return s.cache.Stats()
}
