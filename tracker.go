package trackbridge

import "sync/atomic"

// Tracker is the capability exposed by the loaded tracking script.
//
// Calls must not block; implementations deliver asynchronously. A page view
// is a Track call with an empty name and url/referrer in data.
type Tracker interface {
	Track(name string, data EventData) error
	Identify(data EventData) error
}

// TrackerSlot holds the currently installed [Tracker].
//
// It stands in for the global object the tracking script installs. The zero
// value is empty and ready to use. TrackerSlot is safe for concurrent use.
type TrackerSlot struct {
	p atomic.Pointer[trackerHolder]
}

type trackerHolder struct {
	t Tracker
}

// Install makes t available to waiting dispatches. Installing nil clears
// the slot.
func (s *TrackerSlot) Install(t Tracker) {
	if t == nil {
		s.p.Store(nil)
		return
	}
	s.p.Store(&trackerHolder{t: t})
}

// Load returns the installed tracker.
func (s *TrackerSlot) Load() (Tracker, bool) {
	h := s.p.Load()
	if h == nil {
		return nil, false
	}
	return h.t, true
}

// Clear removes the installed tracker.
func (s *TrackerSlot) Clear() {
	s.p.Store(nil)
}
