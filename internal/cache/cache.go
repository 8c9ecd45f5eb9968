package cache

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

const (
	// Default settings
	defaultShardCount      = 16
	defaultTTL             = 2 * time.Second
	defaultStaleTTL        = 15 * time.Minute
	defaultCleanupInterval = 1 * time.Minute
)

// CacheItem is a cached query result. It is served as fresh until FreshUntil
// and stays readable as stale until ExpiresAt.
type CacheItem struct {
	Value      interface{}
	CreatedAt  time.Time
	FreshUntil time.Time
	ExpiresAt  time.Time
}

// IsFresh checks if the item can be served without a refetch
func (item *CacheItem) IsFresh(now time.Time) bool {
	return now.Before(item.FreshUntil)
}

// IsExpired checks if the item is past its stale window
func (item *CacheItem) IsExpired(now time.Time) bool {
	return now.After(item.ExpiresAt)
}

// CacheShard represents a single shard of the cache with its own lock
type CacheShard struct {
	mu    sync.RWMutex
	items map[string]*CacheItem
}

// ShardedCache is a thread-safe sharded cache of collection query results
type ShardedCache struct {
	shards          []*CacheShard
	shardCount      int
	ttl             time.Duration
	staleTTL        time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	hits      atomic.Int64
	staleHits atomic.Int64
	misses    atomic.Int64

	// Cleanup worker management
	cleanupWorkerRunning bool
	cleanupWorkerMu      sync.Mutex
	cleanupWorkerStop    chan struct{}
	cleanupWorkerWg      sync.WaitGroup
}

// NewShardedCache creates a sharded cache. Entries are fresh for ttl and
// stale-readable for staleTTL after being stored.
func NewShardedCache(shardCount int, ttl, staleTTL time.Duration) *ShardedCache {
	if shardCount < 1 {
		shardCount = defaultShardCount
	}
	if ttl < 0 {
		ttl = defaultTTL
	}
	if staleTTL <= 0 {
		staleTTL = defaultStaleTTL
	}
	if staleTTL < ttl {
		staleTTL = ttl
	}

	shards := make([]*CacheShard, shardCount)
	for i := range shards {
		shards[i] = &CacheShard{
			items: make(map[string]*CacheItem),
		}
	}

	return &ShardedCache{
		shards:            shards,
		shardCount:        shardCount,
		ttl:               ttl,
		staleTTL:          staleTTL,
		cleanupInterval:   defaultCleanupInterval,
		now:               time.Now,
		cleanupWorkerStop: make(chan struct{}),
	}
}

// getShard returns the shard for a given key using FNV hash
func (c *ShardedCache) getShard(key string) *CacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	shardIndex := hash.Sum32() % uint32(c.shardCount)
	return c.shards[shardIndex]
}

// TTL returns the freshness window
func (c *ShardedCache) TTL() time.Duration {
	return c.ttl
}

// Get retrieves a fresh value (implements domain.Cache)
func (c *ShardedCache) Get(ctx context.Context, key string) (interface{}, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	default:
	}

	shard := c.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	item, exists := shard.items[key]
	if !exists || !item.IsFresh(c.now()) {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return item.Value, true
}

// GetStale retrieves a value that may be past its freshness window, together
// with the time it was stored (implements domain.Cache)
func (c *ShardedCache) GetStale(ctx context.Context, key string) (interface{}, time.Time, bool) {
	select {
	case <-ctx.Done():
		return nil, time.Time{}, false
	default:
	}

	shard := c.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	item, exists := shard.items[key]
	if !exists || item.IsExpired(c.now()) {
		return nil, time.Time{}, false
	}

	c.staleHits.Add(1)
	return item.Value, item.CreatedAt, true
}

// Set stores a value in the cache with the given key (implements domain.Cache)
func (c *ShardedCache) Set(ctx context.Context, key string, value interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := c.now()
	shard.items[key] = &CacheItem{
		Value:      value,
		CreatedAt:  now,
		FreshUntil: now.Add(c.ttl),
		ExpiresAt:  now.Add(c.staleTTL),
	}

	return nil
}

// Delete removes a value from the cache by key (implements domain.Cache)
func (c *ShardedCache) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.items, key)
	return nil
}

// DeletePrefix removes every key starting with prefix (implements domain.Cache)
func (c *ShardedCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	for _, shard := range c.shards {
		select {
		case <-ctx.Done():
			return removed, ctx.Err()
		default:
		}

		shard.mu.Lock()
		for key := range shard.items {
			if strings.HasPrefix(key, prefix) {
				delete(shard.items, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed, nil
}

// InvalidateCollection drops every cached query on collection
func (c *ShardedCache) InvalidateCollection(ctx context.Context, collection string) (int, error) {
	return c.DeletePrefix(ctx, domain.CollectionPrefix(collection))
}

// CleanExpired removes items past their stale window (implements domain.Cache)
func (c *ShardedCache) CleanExpired(ctx context.Context) error {
	now := c.now()
	for _, shard := range c.shards {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		shard.mu.Lock()
		for key, item := range shard.items {
			if item.IsExpired(now) {
				delete(shard.items, key)
			}
		}
		shard.mu.Unlock()
	}
	return nil
}

// StartCleanupWorker starts a background goroutine that periodically removes expired items
func (c *ShardedCache) StartCleanupWorker() {
	c.cleanupWorkerMu.Lock()
	defer c.cleanupWorkerMu.Unlock()

	if c.cleanupWorkerRunning {
		return // Already running
	}

	c.cleanupWorkerRunning = true
	c.cleanupWorkerStop = make(chan struct{})

	c.cleanupWorkerWg.Add(1)
	go c.cleanupWorker()
}

// StopCleanupWorker stops the background cleanup worker gracefully
func (c *ShardedCache) StopCleanupWorker() {
	c.cleanupWorkerMu.Lock()
	defer c.cleanupWorkerMu.Unlock()

	if !c.cleanupWorkerRunning {
		return // Not running
	}

	close(c.cleanupWorkerStop)
	c.cleanupWorkerWg.Wait()
	c.cleanupWorkerRunning = false
}

// cleanupWorker is the background goroutine that periodically cleans up expired items
func (c *ShardedCache) cleanupWorker() {
	defer c.cleanupWorkerWg.Done()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.cleanupWorkerStop:
			// Perform final cleanup before stopping
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.CleanExpired(ctx)
			cancel()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = c.CleanExpired(ctx)
			cancel()
		}
	}
}

// Clear removes all items from the cache
func (c *ShardedCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.items = make(map[string]*CacheItem)
		shard.mu.Unlock()
	}
}

// GetStats returns cache statistics
func (c *ShardedCache) GetStats() CacheStats {
	now := c.now()
	stats := CacheStats{
		ShardCount: c.shardCount,
		ShardStats: make([]ShardStat, c.shardCount),
		Hits:       c.hits.Load(),
		StaleHits:  c.staleHits.Load(),
		Misses:     c.misses.Load(),
	}

	for i, shard := range c.shards {
		shard.mu.RLock()
		itemCount := len(shard.items)
		staleCount, expiredCount := 0, 0
		for _, item := range shard.items {
			switch {
			case item.IsExpired(now):
				expiredCount++
			case !item.IsFresh(now):
				staleCount++
			}
		}
		shard.mu.RUnlock()

		stats.ShardStats[i] = ShardStat{
			Index:        i,
			ItemCount:    itemCount,
			StaleCount:   staleCount,
			ExpiredCount: expiredCount,
		}
		stats.TotalItems += itemCount
	}

	return stats
}

// CacheStats represents cache statistics
type CacheStats struct {
	ShardCount int         `json:"shard_count"`
	TotalItems int         `json:"total_items"`
	Hits       int64       `json:"hits"`
	StaleHits  int64       `json:"stale_hits"`
	Misses     int64       `json:"misses"`
	ShardStats []ShardStat `json:"-"`
}

// ShardStat represents statistics for a single shard
type ShardStat struct {
	Index        int
	ItemCount    int
	StaleCount   int
	ExpiredCount int
}

// Verify that ShardedCache implements domain.Cache interface
var _ domain.Cache = (*ShardedCache)(nil)
