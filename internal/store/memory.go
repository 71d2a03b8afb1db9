package store

import (
	"sync"
)

// DefaultCapacity is the number of events a [MemoryStore] keeps by default.
const DefaultCapacity = 1000

// MemoryStore is an in-memory implementation of [Store].
//
// It keeps the most recent events up to its capacity, dropping the oldest
// first. Subscribers receive events via buffered channels (buffer size 100);
// if a subscriber's buffer is full the event is dropped for that subscriber.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []Event
	capacity int

	subscribers map[chan Event]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a [MemoryStore]. A non-positive capacity uses
// [DefaultCapacity].
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity:    capacity,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Add records event and notifies all subscribers.
func (m *MemoryStore) Add(event Event) {
	m.mu.Lock()
	m.events = append(m.events, event)
	if over := len(m.events) - m.capacity; over > 0 {
		m.events = append(m.events[:0:0], m.events[over:]...)
	}
	m.mu.Unlock()

	m.notifySubscribers(event)
}

// List returns events of the given kind in arrival order. An empty kind
// returns all events.
func (m *MemoryStore) List(kind string) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe creates a new subscription with a buffer of 100 events.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Event {
	ch := make(chan Event, 100)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *MemoryStore) notifySubscribers(event Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			// subscriber is slow, drop the event
		}
	}
}
