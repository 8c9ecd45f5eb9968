package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType identifies a kind of event
type EventType string

const (
	// EventCollectionChanged is published after a successful create, update or delete
	EventCollectionChanged EventType = "collection_changed"
	// EventBackendReconnected is published when the backend becomes reachable again
	EventBackendReconnected EventType = "backend_reconnected"
	// EventBackendDown is published when the backend stops answering
	EventBackendDown EventType = "backend_down"
)

const defaultBufferSize = 256

// Op is the mutation that changed a collection
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is the interface all events implement
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent contains common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// CollectionChangedEvent tells readers of Collection that their cached pages are out of date
type CollectionChangedEvent struct {
	BaseEvent
	Collection string
	DocumentID string
	Op         Op
}

// BackendStateEvent reports a backend availability transition
type BackendStateEvent struct {
	BaseEvent
	Downtime time.Duration // how long the backend was unreachable, set on reconnect
	Err      error         // last failure, set when going down
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
	logger        *zap.Logger
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int, logger *zap.Logger) *EventBus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// A subscriber with a full buffer misses the event.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		eb.send(ch, event)
	}
	for _, ch := range eb.all {
		eb.send(ch, event)
	}
}

func (eb *EventBus) send(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		dropped := eb.droppedEvents.Add(1)
		eb.logger.Debug("event dropped",
			zap.String("type", string(event.Type())),
			zap.Int64("dropped_total", dropped),
		)
	}
}

// PublishCollectionChanged is a convenience method for mutation notifications
func (eb *EventBus) PublishCollectionChanged(collection, documentID string, op Op) {
	eb.Publish(&CollectionChangedEvent{
		BaseEvent:  BaseEvent{EventType: EventCollectionChanged, Time: time.Now()},
		Collection: collection,
		DocumentID: documentID,
		Op:         op,
	})
}

// PublishBackendReconnected is a convenience method for a down to up transition
func (eb *EventBus) PublishBackendReconnected(downtime time.Duration) {
	eb.Publish(&BackendStateEvent{
		BaseEvent: BaseEvent{EventType: EventBackendReconnected, Time: time.Now()},
		Downtime:  downtime,
	})
}

// PublishBackendDown is a convenience method for an up to down transition
func (eb *EventBus) PublishBackendDown(err error) {
	eb.Publish(&BackendStateEvent{
		BaseEvent: BaseEvent{EventType: EventBackendDown, Time: time.Now()},
		Err:       err,
	})
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// Unsubscribe removes a subscription channel from a specific event type
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			close(subCh)
			return
		}
	}
}

// UnsubscribeAll removes a channel obtained from SubscribeAll
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			close(subCh)
			return
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
