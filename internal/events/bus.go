package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event being published.
type EventType string

const (
	// EventSessionStarted is published once when a session begins ticking.
	EventSessionStarted EventType = "session_started"
	// EventPhaseChanged is published when a tick moves the session to another phase.
	EventPhaseChanged EventType = "phase_changed"
	// EventItemProcessed is published for every counted progress advance.
	EventItemProcessed EventType = "item_processed"
	// EventShortage is published when a cycle cannot be supplied: a tool or
	// material runs out, or the inventory has no room left for it.
	EventShortage EventType = "shortage"
	EventPaused   EventType = "paused"
	EventResumed  EventType = "resumed"
	// EventTickFault is published when a tick ended on an error or panic.
	EventTickFault EventType = "tick_fault"
	// EventSessionStopped is published once on teardown.
	EventSessionStopped EventType = "session_stopped"
)

// AllEventTypes lists every type a session publishes.
var AllEventTypes = []EventType{
	EventSessionStarted,
	EventPhaseChanged,
	EventItemProcessed,
	EventShortage,
	EventPaused,
	EventResumed,
	EventTickFault,
	EventSessionStopped,
}

// Event represents a session event.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking event bus using Publish/Subscribe pattern.
// Events are delivered asynchronously via buffered channels.
// If a subscriber's channel is full, the event is dropped.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	closed      bool
	wg          sync.WaitGroup
}

// NewBus creates a new event bus with the specified buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for the given event types. fn runs on its own
// goroutine; a panic inside it is recovered. Returns an unsubscribe function.
func (b *Bus) Subscribe(fn Subscriber, types ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return func() {}
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range ch {
			func() {
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.closed {
				return
			}
			for _, t := range types {
				subs := b.subscribers[t]
				for i, subCh := range subs {
					if subCh == ch {
						b.subscribers[t] = append(subs[:i:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}
}

// Publish sends an event to all subscribers of the given type without
// blocking. A full subscriber channel drops the event for that subscriber.
func (b *Bus) Publish(eventType EventType, data map[string]any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes all subscriber channels and waits until every subscriber has
// handled the events already queued for it. It must not be called from a
// subscriber.
func (b *Bus) Close() {
	defer b.wg.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	seen := make(map[chan Event]bool)
	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
		delete(b.subscribers, eventType)
	}
}
