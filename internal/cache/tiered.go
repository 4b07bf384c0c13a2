package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tubemetrics/freshness/pkg/telemetry"
)

// Source tells where a returned value came from
type Source int

const (
	SourceFresh Source = iota
	SourceStale
	SourceMiss
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceFresh:
		return "fresh"
	case SourceStale:
		return "stale"
	case SourceMiss:
		return "miss"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Result is a value returned by the cache together with its provenance
type Result[T any] struct {
	Value    T
	Source   Source
	StoredAt time.Time
}

// ProduceFunc loads the authoritative value for a key
type ProduceFunc[T any] func(ctx context.Context) (T, error)

// FallbackPolicy decides whether a failed produce may be answered with an
// entry that is past its stale window
type FallbackPolicy func(err error) bool

// AlwaysFallback serves any retained entry when produce fails
func AlwaysFallback(error) bool { return true }

// Stats are counters of cache lookups since construction
type Stats struct {
	Fresh     int64
	Stale     int64
	Misses    int64
	Fallbacks int64
}

// Option configures a Tiered cache
type Option func(*options)

type options struct {
	clock          clockwork.Clock
	logger         *zap.Logger
	categories     CategoryTable
	fallback       FallbackPolicy
	refreshTimeout time.Duration
}

// WithClock sets the clock used for freshness decisions
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger sets the logger used for background refresh failures
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCategories replaces the category TTL table
func WithCategories(table CategoryTable) Option {
	return func(o *options) { o.categories = table }
}

// WithFallbackPolicy restricts when expired entries are served on failure
func WithFallbackPolicy(policy FallbackPolicy) Option {
	return func(o *options) { o.fallback = policy }
}

// WithRefreshTimeout bounds each background refresh. Non-positive values
// keep the default.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.refreshTimeout = d
		}
	}
}

// Tiered is a stale-while-revalidate cache over a Store
type Tiered[T any] struct {
	store          Store[T]
	clock          clockwork.Clock
	logger         *zap.Logger
	categories     CategoryTable
	fallback       FallbackPolicy
	refreshTimeout time.Duration

	group      singleflight.Group
	mu         sync.Mutex
	refreshing map[string]struct{}
	wg         sync.WaitGroup

	fresh     atomic.Int64
	stale     atomic.Int64
	misses    atomic.Int64
	fallbacks atomic.Int64
}

// NewTiered creates a tiered cache backed by store
func NewTiered[T any](store Store[T], opts ...Option) *Tiered[T] {
	o := options{
		clock:          clockwork.NewRealClock(),
		logger:         zap.NewNop(),
		categories:     DefaultCategories(),
		fallback:       AlwaysFallback,
		refreshTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Tiered[T]{
		store:          store,
		clock:          o.clock,
		logger:         o.logger,
		categories:     o.categories,
		fallback:       o.fallback,
		refreshTimeout: o.refreshTimeout,
		refreshing:     make(map[string]struct{}),
	}
}

// Get returns the cached value for key, producing it when needed
func (c *Tiered[T]) Get(ctx context.Context, key string, category Category, produce ProduceFunc[T]) (T, error) {
	res, err := c.GetResult(ctx, key, category, produce)
	return res.Value, err
}

// GetResult is Get with provenance.
//
// Fresh entries are returned without calling produce. Stale entries are
// returned immediately while a single background refresh runs. Anything
// else calls produce synchronously; if that fails and an older entry is
// still retained, the old entry is returned when the fallback policy allows.
func (c *Tiered[T]) GetResult(ctx context.Context, key string, category Category, produce ProduceFunc[T]) (Result[T], error) {
	ttl := c.categories.Lookup(category)

	entry, found, err := c.store.Load(ctx, key)
	if err != nil {
		c.logger.Warn("Cache load failed, treating as miss", zap.String("key", key), zap.Error(err))
		found = false
	}

	now := c.clock.Now()
	if found && now.Before(entry.FreshUntil) {
		c.fresh.Add(1)
		c.record(ctx, category, SourceFresh)
		return Result[T]{Value: entry.Data, Source: SourceFresh, StoredAt: entry.StoredAt}, nil
	}

	if found && now.Before(entry.StoredAt.Add(ttl.Stale)) {
		c.stale.Add(1)
		c.record(ctx, category, SourceStale)
		c.refresh(ctx, key, category, produce)
		return Result[T]{Value: entry.Data, Source: SourceStale, StoredAt: entry.StoredAt}, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := produce(ctx)
		if err != nil {
			return nil, err
		}
		c.write(ctx, key, category, value)
		return value, nil
	})
	if err != nil {
		var zero T
		if found && c.fallback(err) {
			c.fallbacks.Add(1)
			c.record(ctx, category, SourceFallback)
			c.logger.Warn("Serving expired entry after produce failure",
				zap.String("key", key),
				zap.Time("stored_at", entry.StoredAt),
				zap.Error(err),
			)
			return Result[T]{Value: entry.Data, Source: SourceFallback, StoredAt: entry.StoredAt}, nil
		}
		c.misses.Add(1)
		c.record(ctx, category, SourceMiss)
		return Result[T]{Value: zero, Source: SourceMiss}, err
	}

	value, _ := v.(T)
	c.misses.Add(1)
	c.record(ctx, category, SourceMiss)
	return Result[T]{Value: value, Source: SourceMiss, StoredAt: now}, nil
}

// Set overwrites the entry for key
func (c *Tiered[T]) Set(ctx context.Context, key string, category Category, value T) error {
	return c.save(ctx, key, category, value)
}

// Invalidate removes every key containing pattern
func (c *Tiered[T]) Invalidate(ctx context.Context, pattern string) (int, error) {
	return c.store.DeleteMatching(ctx, pattern)
}

// Clear removes every entry
func (c *Tiered[T]) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Contains reports whether an entry is stored under key, however old
func (c *Tiered[T]) Contains(ctx context.Context, key string) (bool, error) {
	_, found, err := c.store.Load(ctx, key)
	return found, err
}

// Len returns the number of stored entries
func (c *Tiered[T]) Len(ctx context.Context) (int, error) {
	return c.store.Len(ctx)
}

// Stats returns lookup counters
func (c *Tiered[T]) Stats() Stats {
	return Stats{
		Fresh:     c.fresh.Load(),
		Stale:     c.stale.Load(),
		Misses:    c.misses.Load(),
		Fallbacks: c.fallbacks.Load(),
	}
}

// Wait blocks until in-flight background refreshes finish
func (c *Tiered[T]) Wait() {
	c.wg.Wait()
}

// refresh starts one background produce per key. It runs detached from the
// caller's cancellation and its failures are only logged.
func (c *Tiered[T]) refresh(ctx context.Context, key string, category Category, produce ProduceFunc[T]) {
	c.mu.Lock()
	if _, busy := c.refreshing[key]; busy {
		c.mu.Unlock()
		return
	}
	c.refreshing[key] = struct{}{}
	c.wg.Add(1)
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, key)
			c.mu.Unlock()
		}()

		refreshCtx, cancel := context.WithTimeout(detached, c.refreshTimeout)
		defer cancel()

		value, err := produce(refreshCtx)
		if err != nil {
			c.logger.Warn("Background refresh failed",
				zap.String("key", key),
				zap.String("category", string(category)),
				zap.Error(err),
			)
			return
		}
		c.write(refreshCtx, key, category, value)
	}()
}

func (c *Tiered[T]) write(ctx context.Context, key string, category Category, value T) {
	if err := c.save(ctx, key, category, value); err != nil {
		c.logger.Warn("Cache save failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Tiered[T]) save(ctx context.Context, key string, category Category, value T) error {
	now := c.clock.Now()
	return c.store.Save(ctx, key, Entry[T]{
		Data:       value,
		StoredAt:   now,
		FreshUntil: now.Add(c.categories.Lookup(category).Fresh),
	})
}

func (c *Tiered[T]) record(ctx context.Context, category Category, source Source) {
	telemetry.RecordCacheResult(ctx, string(category), source.String())
}
