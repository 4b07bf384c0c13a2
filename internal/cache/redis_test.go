package cache

import (
	"testing"
	"time"

	"github.com/tubemetrics/freshness/pkg/config"
)

func TestRedisStore_NamespaceKey(t *testing.T) {
	store := NewRedisStore[string](nil, "api", time.Hour)

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "simple key",
			key:      "test",
			expected: "tubemetrics:api:test",
		},
		{
			name:     "key with colon",
			key:      "videos:id=abc",
			expected: "tubemetrics:api:videos:id=abc",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "tubemetrics:api:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := store.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected string
	}{
		{name: "plain", pattern: "UC123", expected: "UC123"},
		{name: "star", pattern: "a*b", expected: `a\*b`},
		{name: "question mark", pattern: "q=what?", expected: `q=what\?`},
		{name: "brackets", pattern: "[x]", expected: `\[x\]`},
		{name: "backslash", pattern: `a\b`, expected: `a\\b`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeGlob(tt.pattern); got != tt.expected {
				t.Errorf("escapeGlob(%q) = %q, want %q", tt.pattern, got, tt.expected)
			}
		})
	}
}

func TestNewRedisClient_Disabled(t *testing.T) {
	client, err := NewRedisClient(&config.RedisConfig{Enabled: false})
	if err != ErrCacheDisabled {
		t.Fatalf("Expected ErrCacheDisabled, got %v", err)
	}
	if client != nil {
		t.Error("Expected nil client when Redis is disabled")
	}
}
