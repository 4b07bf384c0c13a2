package cache

import (
	"fmt"
	"time"
)

// Category names a class of cached data with its own freshness policy
type Category string

const (
	CategoryChannel   Category = "channel"
	CategoryVideo     Category = "video"
	CategoryVideoList Category = "video-list"
	CategoryPlaylist  Category = "playlist"
	CategorySearch    Category = "search"
	CategoryDefault   Category = "default"
)

// TTL is the freshness policy of a category. Data younger than Fresh is
// served as is; data younger than Stale is served while being refreshed.
type TTL struct {
	Fresh time.Duration
	Stale time.Duration
}

// CategoryTable maps categories to their TTLs
type CategoryTable map[Category]TTL

var defaultCategories = CategoryTable{
	CategoryChannel:   {Fresh: 30 * time.Minute, Stale: 6 * time.Hour},
	CategoryVideo:     {Fresh: 15 * time.Minute, Stale: 3 * time.Hour},
	CategoryVideoList: {Fresh: 10 * time.Minute, Stale: 2 * time.Hour},
	CategoryPlaylist:  {Fresh: 10 * time.Minute, Stale: 2 * time.Hour},
	CategorySearch:    {Fresh: 15 * time.Minute, Stale: 8 * time.Hour},
	CategoryDefault:   {Fresh: 5 * time.Minute, Stale: 30 * time.Minute},
}

// DefaultCategories returns a copy of the built-in category table
func DefaultCategories() CategoryTable {
	table := make(CategoryTable, len(defaultCategories))
	for k, v := range defaultCategories {
		table[k] = v
	}
	return table
}

// NewCategoryTable validates a custom table. Missing categories fall back
// to the built-in default entry.
func NewCategoryTable(entries map[Category]TTL) (CategoryTable, error) {
	table := DefaultCategories()
	for category, ttl := range entries {
		if ttl.Fresh <= 0 {
			return nil, fmt.Errorf("category %q: fresh ttl must be positive", category)
		}
		if ttl.Stale < ttl.Fresh {
			return nil, fmt.Errorf("category %q: stale ttl %s shorter than fresh ttl %s", category, ttl.Stale, ttl.Fresh)
		}
		table[category] = ttl
	}
	return table, nil
}

// Lookup returns the TTL for a category, or the default TTL if unknown
func (t CategoryTable) Lookup(c Category) TTL {
	if ttl, ok := t[c]; ok {
		return ttl
	}
	if ttl, ok := t[CategoryDefault]; ok {
		return ttl
	}
	return defaultCategories[CategoryDefault]
}
