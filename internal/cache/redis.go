package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tubemetrics/freshness/pkg/config"
	"github.com/tubemetrics/freshness/pkg/logging"
)

const keyNamespace = "tubemetrics:"

// scanBatch is the COUNT hint passed to SCAN
const scanBatch = 200

var (
	// ErrCacheDisabled is returned when Redis is requested but not enabled
	ErrCacheDisabled = fmt.Errorf("cache is disabled")
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, ErrCacheDisabled
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return client, nil
}

// RedisStore is a Store that keeps JSON-encoded entries in Redis so cached
// data survives restarts and can be shared between processes
type RedisStore[T any] struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a store whose keys live under tubemetrics:<tier>:.
// A positive retention sets a Redis expiry on every entry.
func NewRedisStore[T any](client *redis.Client, tier string, retention time.Duration) *RedisStore[T] {
	return &RedisStore[T]{
		client:    client,
		prefix:    keyNamespace + tier + ":",
		retention: retention,
	}
}

func (s *RedisStore[T]) namespaceKey(key string) string {
	return s.prefix + key
}

// Load returns the entry stored under key
func (s *RedisStore[T]) Load(ctx context.Context, key string) (Entry[T], bool, error) {
	var entry Entry[T]

	raw, err := s.client.Get(ctx, s.namespaceKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return entry, true, nil
}

// Save overwrites the entry stored under key
func (s *RedisStore[T]) Save(ctx context.Context, key string, entry Entry[T]) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.namespaceKey(key), raw, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeleteMatching removes every key containing pattern
func (s *RedisStore[T]) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	return s.deleteScan(ctx, s.prefix+"*"+escapeGlob(pattern)+"*")
}

// Clear removes every key of this tier
func (s *RedisStore[T]) Clear(ctx context.Context) error {
	_, err := s.deleteScan(ctx, s.prefix+"*")
	return err
}

// Len counts the keys of this tier
func (s *RedisStore[T]) Len(ctx context.Context) (int, error) {
	keys, err := s.scan(ctx, s.prefix+"*")
	return len(keys), err
}

// Health checks Redis health
func (s *RedisStore[T]) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore[T]) deleteScan(ctx context.Context, match string) (int, error) {
	keys, err := s.scan(ctx, match)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(removed), nil
}

func (s *RedisStore[T]) scan(ctx context.Context, match string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards so that
// pattern matches literally
func escapeGlob(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
