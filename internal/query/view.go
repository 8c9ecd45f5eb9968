package query

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

// Snapshot is what a screen renders: the last good page, the last error and
// whether a fetch is in progress.
type Snapshot struct {
	Data       *domain.CollectionResult
	Err        error
	IsLoading  bool
	Stale      bool // Data was served from an entry past its freshness window
	FetchedAt  time.Time
	Generation uint64
}

// View tracks one (collection, descriptor) pair for one screen.
// Each fetch takes a generation number; a response that arrives after a
// newer fetch has started is dropped, so a slow request for an abandoned
// descriptor never overwrites fresher data.
type View struct {
	client     *Client
	collection string

	mu     sync.Mutex
	query  domain.Query
	snap   Snapshot
	latest uint64
	closed bool
}

// Collection returns the watched collection
func (v *View) Collection() string {
	return v.collection
}

// Query returns a copy of the current descriptor
func (v *View) Query() domain.Query {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query.Clone()
}

// Snapshot returns the current state without fetching
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

// SetQuery switches the view to another descriptor. Data of the old
// descriptor is cleared; call Load to fetch the new one.
func (v *View) SetQuery(q domain.Query) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query = q.Clone()
	v.latest++
	v.snap = Snapshot{IsLoading: true, Generation: v.snap.Generation}
}

// Load fetches the current descriptor, using a fresh cache entry if any
func (v *View) Load(ctx context.Context) Snapshot {
	return v.fetch(ctx, false)
}

// Revalidate refetches the current descriptor from the backend
func (v *View) Revalidate(ctx context.Context) Snapshot {
	return v.fetch(ctx, true)
}

// Mutate drops the cached pages of the collection and refetches. Callers
// use it after a successful create, update or delete.
func (v *View) Mutate(ctx context.Context) Snapshot {
	if err := v.client.Invalidate(ctx, v.collection); err != nil {
		v.client.logger.Warn("invalidation failed", zap.String("collection", v.collection), zap.Error(err))
	}
	return v.fetch(ctx, true)
}

// Close unregisters the view
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()
	v.client.unregister(v)
}

func (v *View) fetch(ctx context.Context, force bool) Snapshot {
	v.mu.Lock()
	v.latest++
	gen := v.latest
	q := v.query.Clone()
	v.snap.IsLoading = true
	v.mu.Unlock()

	var (
		res *domain.CollectionResult
		err error
	)
	if force {
		res, err = v.client.Refetch(ctx, v.collection, q)
	} else {
		res, err = v.client.Fetch(ctx, v.collection, q)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.latest {
		v.client.logger.Debug("stale response discarded",
			zap.String("collection", v.collection),
			zap.Uint64("generation", gen),
			zap.Uint64("latest", v.latest),
		)
		return v.snap
	}

	v.snap.Generation = gen
	v.snap.IsLoading = false
	if err != nil {
		// Keep the last good page on screen and report the failure next to it.
		v.snap.Err = err
		if v.snap.Data == nil {
			if stale, at, ok := v.client.Stale(ctx, v.collection, q); ok {
				v.snap.Data = stale
				v.snap.FetchedAt = at
				v.snap.Stale = true
			}
		}
		return v.snap
	}

	v.snap.Data = res
	v.snap.Err = nil
	v.snap.Stale = false
	v.snap.FetchedAt = time.Now()
	return v.snap
}
