// Package query is the read side of every list and detail screen: it fetches
// collection pages, caches them per (collection, descriptor) and keeps open
// views current when the data underneath them changes.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/events"
)

const (
	defaultRevalidateTimeout = 15 * time.Second
	revalidateParallelism    = 4
)

// Finder reads one page of a collection
type Finder interface {
	Find(ctx context.Context, collection string, q domain.Query) (*domain.CollectionResult, error)
}

// Client serves collection pages from the cache when fresh and from the
// backend otherwise. Concurrent identical fetches share one request.
type Client struct {
	finder Finder
	cache  domain.Cache
	bus    *events.EventBus
	logger *zap.Logger

	group singleflight.Group

	mu     sync.Mutex
	epochs map[string]uint64 // bumped on invalidation, per collection
	views  map[string]map[*View]struct{}

	revalidateTimeout time.Duration

	subs    []<-chan events.Event
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewClient creates a query client. bus may be nil when no event-driven
// invalidation is wanted.
func NewClient(finder Finder, cache domain.Cache, bus *events.EventBus, logger *zap.Logger) *Client {
	return &Client{
		finder:            finder,
		cache:             cache,
		bus:               bus,
		logger:            logger,
		epochs:            make(map[string]uint64),
		views:             make(map[string]map[*View]struct{}),
		revalidateTimeout: defaultRevalidateTimeout,
	}
}

// Fetch returns a page of collection. A fresh cache entry is returned without
// a network call.
func (c *Client) Fetch(ctx context.Context, collection string, q domain.Query) (*domain.CollectionResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	key := domain.CacheKey(collection, q)
	if v, ok := c.cache.Get(ctx, key); ok {
		if res, ok := v.(*domain.CollectionResult); ok {
			return res, nil
		}
	}
	return c.load(ctx, collection, q)
}

// Refetch skips the freshness check and always asks the backend
func (c *Client) Refetch(ctx context.Context, collection string, q domain.Query) (*domain.CollectionResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return c.load(ctx, collection, q)
}

// Stale returns the last stored page for (collection, q) regardless of age
func (c *Client) Stale(ctx context.Context, collection string, q domain.Query) (*domain.CollectionResult, time.Time, bool) {
	v, at, ok := c.cache.GetStale(ctx, domain.CacheKey(collection, q))
	if !ok {
		return nil, time.Time{}, false
	}
	res, ok := v.(*domain.CollectionResult)
	return res, at, ok
}

func (c *Client) epoch(collection string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochs[collection]
}

// load collapses identical in-flight requests. A request started before an
// invalidation is never joined by one started after it, and its result is
// not cached.
func (c *Client) load(ctx context.Context, collection string, q domain.Query) (*domain.CollectionResult, error) {
	key := domain.CacheKey(collection, q)
	epoch := c.epoch(collection)
	flightKey := fmt.Sprintf("%s#%d", key, epoch)

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		// The shared request must outlive any single caller giving up.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.revalidateTimeout)
		defer cancel()

		res, err := c.finder.Find(fetchCtx, collection, q)
		if err != nil {
			return nil, err
		}
		if c.epoch(collection) == epoch {
			if err := c.cache.Set(fetchCtx, key, res); err != nil {
				c.logger.Debug("query result not cached", zap.String("key", key), zap.Error(err))
			}
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			c.logger.Debug("query deduplicated", zap.String("key", key))
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*domain.CollectionResult), nil
	}
}

// Invalidate drops every cached page of collection
func (c *Client) Invalidate(ctx context.Context, collection string) error {
	c.mu.Lock()
	c.epochs[collection]++
	c.mu.Unlock()

	removed, err := c.cache.DeletePrefix(ctx, domain.CollectionPrefix(collection))
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", collection, err)
	}
	c.logger.Debug("collection invalidated",
		zap.String("collection", collection),
		zap.Int("entries", removed),
	)
	return nil
}

// Watch opens a view on (collection, q). The view stays registered until
// Close, and is revalidated whenever collection changes.
func (c *Client) Watch(collection string, q domain.Query) *View {
	v := &View{
		client:     c,
		collection: collection,
		query:      q.Clone(),
		snap:       Snapshot{IsLoading: true},
	}

	c.mu.Lock()
	set, ok := c.views[collection]
	if !ok {
		set = make(map[*View]struct{})
		c.views[collection] = set
	}
	set[v] = struct{}{}
	c.mu.Unlock()
	return v
}

func (c *Client) unregister(v *View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.views[v.collection]; ok {
		delete(set, v)
		if len(set) == 0 {
			delete(c.views, v.collection)
		}
	}
}

func (c *Client) openViews(collection string) []*View {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*View
	for name, set := range c.views {
		if collection != "" && name != collection {
			continue
		}
		for v := range set {
			out = append(out, v)
		}
	}
	return out
}

// OpenViews returns how many views are watching collection; "" counts all
func (c *Client) OpenViews(collection string) int {
	return len(c.openViews(collection))
}

// RevalidateCollection refetches every open view on collection
func (c *Client) RevalidateCollection(ctx context.Context, collection string) error {
	return c.revalidate(ctx, c.openViews(collection))
}

// RevalidateAll refetches every open view
func (c *Client) RevalidateAll(ctx context.Context) error {
	return c.revalidate(ctx, c.openViews(""))
}

func (c *Client) revalidate(ctx context.Context, views []*View) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(revalidateParallelism)
	for _, v := range views {
		v := v
		g.Go(func() error {
			snap := v.Revalidate(ctx)
			if snap.Err != nil && errors.Is(snap.Err, context.Canceled) {
				return snap.Err
			}
			return nil
		})
	}
	return g.Wait()
}

// Start subscribes to collection changes and backend reconnects
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.bus == nil {
		return
	}
	c.started = true

	changed := c.bus.Subscribe(events.EventCollectionChanged)
	reconnected := c.bus.Subscribe(events.EventBackendReconnected)
	c.subs = []<-chan events.Event{changed, reconnected}
	c.stop = make(chan struct{})

	c.wg.Add(1)
	go c.listen(c.stop, changed, reconnected)
}

func (c *Client) listen(stop <-chan struct{}, changed, reconnected <-chan events.Event) {
	defer c.wg.Done()

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-changed:
			if !ok {
				return
			}
			cc, isChange := ev.(*events.CollectionChangedEvent)
			if !isChange {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.revalidateTimeout)
			if err := c.Invalidate(ctx, cc.Collection); err != nil {
				c.logger.Warn("invalidation failed", zap.String("collection", cc.Collection), zap.Error(err))
			}
			if err := c.RevalidateCollection(ctx, cc.Collection); err != nil {
				c.logger.Debug("revalidation interrupted", zap.String("collection", cc.Collection), zap.Error(err))
			}
			cancel()
		case _, ok := <-reconnected:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.revalidateTimeout)
			if err := c.RevalidateAll(ctx); err != nil {
				c.logger.Debug("revalidation interrupted", zap.Error(err))
			}
			cancel()
		}
	}
}

// Stop ends the event subscription
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.stop)
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	c.wg.Wait()
	if len(subs) == 2 {
		c.bus.Unsubscribe(events.EventCollectionChanged, subs[0])
		c.bus.Unsubscribe(events.EventBackendReconnected, subs[1])
	}
}
