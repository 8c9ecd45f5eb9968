package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/cache"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/events"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/repositories"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/strapitest"
)

// MockFinder is a mock implementation of Finder
type MockFinder struct {
	mock.Mock
}

func (m *MockFinder) Find(ctx context.Context, collection string, q domain.Query) (*domain.CollectionResult, error) {
	args := m.Called(ctx, collection, q)
	res, _ := args.Get(0).(*domain.CollectionResult)
	return res, args.Error(1)
}

// gatedFinder answers immediately unless the requested page has a gate,
// in which case it waits for the gate to close.
type gatedFinder struct {
	mu    sync.Mutex
	gates map[int]chan struct{}
	calls atomic.Int32
}

func newGatedFinder() *gatedFinder {
	return &gatedFinder{gates: make(map[int]chan struct{})}
}

func (g *gatedFinder) gate(page int) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.gates[page] = ch
	return ch
}

func (g *gatedFinder) Find(ctx context.Context, collection string, q domain.Query) (*domain.CollectionResult, error) {
	g.calls.Add(1)
	page := 1
	if q.Pagination != nil {
		page = q.Pagination.Page
	}
	g.mu.Lock()
	gate := g.gates[page]
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &domain.CollectionResult{
		Records: []domain.Record{{"documentId": collection + "-p" + string(rune('0'+page))}},
		Meta:    domain.Meta{Page: page, PageSize: 1, PageCount: 9, Total: 9},
	}, nil
}

func pageQuery(page int) domain.Query {
	return domain.Query{Pagination: &domain.Pagination{Page: page, PageSize: 1}}
}

func newTestClient(t *testing.T, finder Finder, bus *events.EventBus) *Client {
	t.Helper()
	c := NewClient(finder, cache.NewShardedCache(4, time.Minute, time.Hour), bus, zaptest.NewLogger(t))
	t.Cleanup(c.Stop)
	return c
}

func TestFetchServesFreshEntryWithoutNetwork(t *testing.T) {
	finder := new(MockFinder)
	res := &domain.CollectionResult{Meta: domain.Meta{Page: 1, PageSize: 1}}
	finder.On("Find", mock.Anything, "coupons", mock.Anything).Return(res, nil).Once()

	c := newTestClient(t, finder, nil)
	ctx := context.Background()

	first, err := c.Fetch(ctx, "coupons", pageQuery(1))
	require.NoError(t, err)
	second, err := c.Fetch(ctx, "coupons", pageQuery(1))
	require.NoError(t, err)

	assert.Same(t, first, second)
	finder.AssertNumberOfCalls(t, "Find", 1)
}

func TestFetchRejectsInvalidDescriptor(t *testing.T) {
	finder := new(MockFinder)
	c := newTestClient(t, finder, nil)

	_, err := c.Fetch(context.Background(), "coupons", domain.Query{Pagination: &domain.Pagination{Page: 0, PageSize: 5}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	finder.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything)
}

func TestConcurrentIdenticalFetchesShareOneRequest(t *testing.T) {
	finder := newGatedFinder()
	gate := finder.gate(1)
	c := newTestClient(t, finder, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Fetch(context.Background(), "orders", pageQuery(1))
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), finder.calls.Load())
}

func TestCallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	finder := newGatedFinder()
	gate := finder.gate(1)
	c := newTestClient(t, finder, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, "orders", pageQuery(1))
		errCh <- err
	}()
	require.Eventually(t, func() bool { return finder.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(gate)
	res, err := c.Fetch(context.Background(), "orders", pageQuery(1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Meta.Page)
}

func TestResultOfFlightStartedBeforeInvalidationIsNotCached(t *testing.T) {
	finder := newGatedFinder()
	gate := finder.gate(1)
	c := newTestClient(t, finder, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Fetch(ctx, "orders", pageQuery(1))
	}()
	require.Eventually(t, func() bool { return finder.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Invalidate(ctx, "orders"))
	close(gate)
	<-done

	_, err := c.Fetch(ctx, "orders", pageQuery(1))
	require.NoError(t, err)
	assert.Equal(t, int32(2), finder.calls.Load())
}

func TestViewStaleWhileError(t *testing.T) {
	finder := new(MockFinder)
	good := &domain.CollectionResult{
		Records: []domain.Record{{"documentId": "a"}},
		Meta:    domain.Meta{Page: 1, PageSize: 1, PageCount: 1, Total: 1},
	}
	boom := errors.New("backend unreachable")
	finder.On("Find", mock.Anything, "orders", mock.Anything).Return(good, nil).Once()
	finder.On("Find", mock.Anything, "orders", mock.Anything).Return(nil, boom).Once()

	c := newTestClient(t, finder, nil)
	v := c.Watch("orders", pageQuery(1))
	defer v.Close()

	assert.True(t, v.Snapshot().IsLoading)

	snap := v.Load(context.Background())
	require.NoError(t, snap.Err)
	assert.False(t, snap.IsLoading)
	assert.Same(t, good, snap.Data)

	snap = v.Revalidate(context.Background())
	assert.ErrorIs(t, snap.Err, boom)
	assert.Same(t, good, snap.Data, "last good page stays on screen")
	assert.False(t, snap.IsLoading)
}

func TestViewFallsBackToStaleEntryOnFirstFailure(t *testing.T) {
	finder := new(MockFinder)
	good := &domain.CollectionResult{Meta: domain.Meta{Page: 1, PageSize: 1}}
	finder.On("Find", mock.Anything, "orders", mock.Anything).Return(good, nil).Once()
	finder.On("Find", mock.Anything, "orders", mock.Anything).Return(nil, errors.New("down")).Once()

	c := newTestClient(t, finder, nil)
	_, err := c.Fetch(context.Background(), "orders", pageQuery(1))
	require.NoError(t, err)

	v := c.Watch("orders", pageQuery(1))
	defer v.Close()
	snap := v.Revalidate(context.Background())
	assert.Error(t, snap.Err)
	assert.True(t, snap.Stale)
	assert.Same(t, good, snap.Data)
}

func TestViewDiscardsResponseOfAbandonedDescriptor(t *testing.T) {
	finder := newGatedFinder()
	gate := finder.gate(1)
	c := newTestClient(t, finder, nil)

	v := c.Watch("products", pageQuery(1))
	defer v.Close()

	slow := make(chan Snapshot, 1)
	go func() { slow <- v.Load(context.Background()) }()
	require.Eventually(t, func() bool { return finder.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	v.SetQuery(pageQuery(2))
	fresh := v.Load(context.Background())
	require.NoError(t, fresh.Err)
	assert.Equal(t, 2, fresh.Data.Meta.Page)

	close(gate)
	<-slow

	final := v.Snapshot()
	assert.Equal(t, 2, final.Data.Meta.Page, "late page 1 response must not overwrite page 2")
	assert.Equal(t, fresh.Generation, final.Generation)
}

func TestOpenViewsBookkeeping(t *testing.T) {
	c := newTestClient(t, newGatedFinder(), nil)
	a := c.Watch("orders", pageQuery(1))
	b := c.Watch("orders", pageQuery(2))
	p := c.Watch("products", pageQuery(1))

	assert.Equal(t, 2, c.OpenViews("orders"))
	assert.Equal(t, 3, c.OpenViews(""))

	a.Close()
	a.Close()
	b.Close()
	assert.Equal(t, 0, c.OpenViews("orders"))
	p.Close()
	assert.Equal(t, 0, c.OpenViews(""))
}

func newBackedClient(t *testing.T, bus *events.EventBus) (*Client, *strapitest.Server, *repositories.StrapiRepository) {
	t.Helper()
	srv := strapitest.New(t)
	repo := repositories.NewStrapiRepository(repositories.Options{
		BaseURL: srv.URL,
		Prefix:  "/api",
		Token:   strapitest.Token,
	}, zaptest.NewLogger(t))
	return newTestClient(t, repo, bus), srv, repo
}

func TestMutateHidesDeletedRecord(t *testing.T) {
	c, srv, repo := newBackedClient(t, nil)
	ctx := context.Background()
	seeded := srv.Seed("coupons",
		domain.Record{"code": "AAAAAA"},
		domain.Record{"code": "BBBBBB"},
	)
	q := domain.Query{Pagination: &domain.Pagination{Page: 1, PageSize: 10}}

	v := c.Watch("coupons", q)
	defer v.Close()
	snap := v.Load(ctx)
	require.NoError(t, snap.Err)
	require.True(t, snap.Data.Contains(seeded[0].DocumentID()))

	require.NoError(t, repo.Delete(ctx, "coupons", seeded[0].DocumentID()))

	// Without revalidation the fresh entry is still served.
	assert.True(t, v.Load(ctx).Data.Contains(seeded[0].DocumentID()))

	snap = v.Mutate(ctx)
	require.NoError(t, snap.Err)
	assert.False(t, snap.Data.Contains(seeded[0].DocumentID()))
	assert.Equal(t, 1, snap.Data.Meta.Total)
}

func TestCollectionChangedEventRevalidatesOpenViews(t *testing.T) {
	bus := events.NewEventBus(16, zaptest.NewLogger(t))
	defer bus.Close()
	c, srv, _ := newBackedClient(t, bus)
	c.Start()
	ctx := context.Background()

	srv.Seed("gym-plans", domain.Record{"title": "Monthly"})
	v := c.Watch("gym-plans", domain.Query{})
	defer v.Close()
	require.Equal(t, 1, v.Load(ctx).Data.Meta.Total)

	srv.Seed("gym-plans", domain.Record{"title": "Yearly"})
	bus.PublishCollectionChanged("gym-plans", "", events.OpCreate)

	assert.Eventually(t, func() bool {
		snap := v.Snapshot()
		return snap.Data != nil && snap.Data.Meta.Total == 2
	}, 2*time.Second, 10*time.Millisecond)

	res, err := c.Fetch(ctx, "gym-plans", domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Meta.Total)
}

func TestReconnectRevalidatesEveryView(t *testing.T) {
	bus := events.NewEventBus(16, zaptest.NewLogger(t))
	defer bus.Close()
	c, srv, _ := newBackedClient(t, bus)
	c.Start()
	ctx := context.Background()

	srv.Fail("GET", "/api/orders", 503, "down", 100)
	v := c.Watch("orders", domain.Query{})
	defer v.Close()
	snap := v.Load(ctx)
	require.Error(t, snap.Err)
	assert.Nil(t, snap.Data)

	srv.Fail("GET", "/api/orders", 503, "down", 0)
	srv.Seed("orders", domain.Record{"amount": float64(5)})
	bus.PublishBackendReconnected(time.Minute)

	assert.Eventually(t, func() bool {
		snap := v.Snapshot()
		return snap.Err == nil && snap.Data != nil && snap.Data.Meta.Total == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFindOne(t *testing.T) {
	c, srv, _ := newBackedClient(t, nil)
	ctx := context.Background()
	seeded := srv.Seed("gym-plans", domain.Record{"title": "Quarterly", "duration": float64(3), "price": float64(2500)})

	plan, err := FindOne[domain.GymPlan](ctx, c, "gym-plans", seeded[0].DocumentID())
	require.NoError(t, err)
	assert.Equal(t, "Quarterly", plan.Title)
	assert.Equal(t, 3, plan.Duration)

	_, err = FindOne[domain.GymPlan](ctx, c, "gym-plans", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	page, err := FetchTyped[domain.GymPlan](ctx, c, "gym-plans", domain.Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Meta.Total)
}
