package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Entry is a cached value with its timestamps
type Entry[T any] struct {
	Data       T         `json:"data"`
	StoredAt   time.Time `json:"storedAt"`
	FreshUntil time.Time `json:"freshUntil"`
}

// Store persists cache entries. Implementations must be safe for
// concurrent use.
type Store[T any] interface {
	Load(ctx context.Context, key string) (Entry[T], bool, error)
	Save(ctx context.Context, key string, entry Entry[T]) error
	// DeleteMatching removes every key containing pattern as a substring
	DeleteMatching(ctx context.Context, pattern string) (int, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// MemoryStore is a process-local Store backed by a mutex-guarded map.
// Entries are kept until overwritten, invalidated or cleared.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[T]
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{entries: make(map[string]Entry[T])}
}

// Load returns the entry stored under key
func (s *MemoryStore[T]) Load(_ context.Context, key string) (Entry[T], bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

// Save overwrites the entry stored under key
func (s *MemoryStore[T]) Save(_ context.Context, key string, entry Entry[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

// DeleteMatching removes every key containing pattern
func (s *MemoryStore[T]) DeleteMatching(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.entries {
		if strings.Contains(key, pattern) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Clear removes every entry
func (s *MemoryStore[T]) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry[T])
	return nil
}

// Len returns the number of stored entries
func (s *MemoryStore[T]) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
