package store

import (
	"context"
	"encoding/json"
	"time"
)

// Event kinds.
const (
	KindEvent    = "event"
	KindIdentify = "identify"
	KindVitals   = "vitals"
	KindForms    = "forms"
)

// Event is one request accepted by the collector.
type Event struct {
	// ID is assigned by the collector on receipt.
	ID string `json:"id"`

	// Kind is one of the Kind constants.
	Kind string `json:"kind"`

	// Website is the website ID the event was sent for.
	Website string `json:"website"`

	// Name is the event name, metric name or form event type. Empty for page
	// views and identify calls.
	Name string `json:"name,omitempty"`

	// Payload is the request body as received.
	Payload json.RawMessage `json:"payload"`

	// ReceivedAt is when the collector accepted the event.
	ReceivedAt time.Time `json:"received_at"`
}

// Store records events and fans them out to subscribers.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Add records an event and notifies all subscribers.
	Add(event Event)

	// List returns recorded events of the given kind in arrival order. An
	// empty kind returns every event. The slice is a snapshot.
	List(kind string) []Event

	// Subscribe returns a channel that receives new events. Slow consumers
	// may miss events. Caller must call Unsubscribe when done.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}

// Sink is a durable destination events are copied to after they are stored.
type Sink interface {
	Write(ctx context.Context, event Event) error
	Close() error
}
