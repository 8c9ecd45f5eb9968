package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations
type Cache interface {
	// Get retrieves a fresh value from the cache by key
	Get(ctx context.Context, key string) (interface{}, bool)

	// GetStale retrieves a value even past its freshness window, with the time it was stored
	GetStale(ctx context.Context, key string) (interface{}, time.Time, bool)

	// Set stores a value in the cache with the given key
	Set(ctx context.Context, key string, value interface{}) error

	// Delete removes a value from the cache by key
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix and returns how many went
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// CleanExpired removes all expired items from the cache
	CleanExpired(ctx context.Context) error
}
