package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestPublishCollectionChanged(t *testing.T) {
	bus := NewEventBus(10, zaptest.NewLogger(t))
	defer bus.Close()

	ch := bus.Subscribe(EventCollectionChanged)
	other := bus.Subscribe(EventBackendReconnected)

	bus.PublishCollectionChanged("coupons", "abc", OpDelete)

	ev, ok := receive(t, ch).(*CollectionChangedEvent)
	require.True(t, ok)
	assert.Equal(t, "coupons", ev.Collection)
	assert.Equal(t, "abc", ev.DocumentID)
	assert.Equal(t, OpDelete, ev.Op)

	select {
	case <-other:
		t.Fatal("reconnect subscriber must not see collection events")
	default:
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus(10, zaptest.NewLogger(t))
	defer bus.Close()

	all := bus.SubscribeAll()
	bus.PublishBackendDown(assert.AnError)
	bus.PublishBackendReconnected(3 * time.Second)

	assert.Equal(t, EventBackendDown, receive(t, all).Type())
	ev := receive(t, all).(*BackendStateEvent)
	assert.Equal(t, EventBackendReconnected, ev.Type())
	assert.Equal(t, 3*time.Second, ev.Downtime)
}

func TestDroppedEvents(t *testing.T) {
	bus := NewEventBus(1, zaptest.NewLogger(t))
	defer bus.Close()

	_ = bus.Subscribe(EventCollectionChanged)
	for i := 0; i < 5; i++ {
		bus.PublishCollectionChanged("orders", "", OpUpdate)
	}
	assert.Equal(t, int64(4), bus.GetDroppedEventCount())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(1, zaptest.NewLogger(t))
	defer bus.Close()

	ch := bus.Subscribe(EventCollectionChanged)
	bus.Unsubscribe(EventCollectionChanged, ch)

	_, ok := <-ch
	assert.False(t, ok)

	bus.PublishCollectionChanged("orders", "", OpUpdate)
	assert.Equal(t, int64(0), bus.GetDroppedEventCount())
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := NewEventBus(1, nil)
	ch := bus.Subscribe(EventCollectionChanged)
	bus.Close()
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late := bus.Subscribe(EventCollectionChanged)
	_, ok = <-late
	assert.False(t, ok)

	bus.PublishCollectionChanged("orders", "", OpUpdate)
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewEventBus(1000, zaptest.NewLogger(t))
	defer bus.Close()

	ch := bus.Subscribe(EventCollectionChanged)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.PublishCollectionChanged("products", "", OpCreate)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ch, 500)
}
