package trackbridge

import (
	"errors"
	"maps"
)

// EventData is an open-ended event payload. Values may be strings, numbers,
// booleans, nested EventData/maps, or slices of those. No schema validation
// is performed; the collector is the schema authority.
type EventData map[string]any

// clone returns a shallow copy so callers' maps are never mutated.
// A nil receiver yields an empty, non-nil map.
func (d EventData) clone() EventData {
	out := make(EventData, len(d)+2)
	maps.Copy(out, d)
	return out
}

// Payload types passed to [BeforeSendFunc].
const (
	PayloadEvent    = "event"
	PayloadIdentify = "identify"
)

// EventPayload is the normalized form of a dispatch, as seen by a
// [BeforeSendFunc].
type EventPayload struct {
	// Type is [PayloadEvent] or [PayloadIdentify].
	Type string

	// Name is the event name. Empty for page views and identify calls.
	Name string

	// Data is the event payload. The transform owns this map and may modify it.
	Data EventData
}

// BeforeSendFunc transforms a payload before it reaches the tracker.
//
// Returning [ErrSuppress] drops the dispatch silently. Any other error also
// drops it and is logged.
type BeforeSendFunc func(EventPayload) (EventPayload, error)

// ErrSuppress is returned by a [BeforeSendFunc] to drop an event.
var ErrSuppress = errors.New("trackbridge: event suppressed")
