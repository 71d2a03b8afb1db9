package trackbridge

import (
	"errors"
	"log/slog"
	"sync/atomic"
)

const (
	// OutboundLinkEvent is the event name used by [Analytics.TrackOutboundLink].
	OutboundLinkEvent = "outbound-link-click"

	// DefaultCurrency is used by [Analytics.TrackRevenue] when no currency is given.
	DefaultCurrency = "USD"
)

// Analytics is the dispatch API handed to application code.
//
// Every method returns immediately. Delivery happens once the [Bridge] finds
// an installed tracker, which may be straight away or after the script has
// loaded. Calls fire in the order their waits resolve; no ordering is
// guaranteed relative to other goroutines.
//
// The payload is assembled when the dispatch fires, not when the method is
// called. The tag and the BeforeSend transform are therefore read at fire
// time (see [Analytics.SetTag]).
//
// A nil *Analytics, or one backed by a headless bridge, drops every call.
// Analytics is safe for concurrent use.
type Analytics struct {
	bridge *Bridge
	config atomic.Pointer[Config]
	tag    atomic.Pointer[string]
	logger *slog.Logger
}

func newAnalytics(bridge *Bridge, cfg Config) *Analytics {
	a := &Analytics{
		bridge: bridge,
		logger: cfg.Logger(),
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.config.Store(&cfg)
	a.SetTag(cfg.Tag())
	return a
}

// Track dispatches a custom event. data may be nil.
func (a *Analytics) Track(name string, data EventData) {
	if a == nil {
		return
	}
	a.dispatch(PayloadEvent, name, data.clone())
}

// TrackPageView dispatches a page view. Empty url and referrer are left out
// of the payload, letting the collector use its own defaults.
func (a *Analytics) TrackPageView(url, referrer string) {
	if a == nil {
		return
	}
	data := EventData{}
	if url != "" {
		data["url"] = url
	}
	if referrer != "" {
		data["referrer"] = referrer
	}
	a.dispatch(PayloadEvent, "", data)
}

// TrackRevenue dispatches name with revenue and currency merged into data.
// An empty currency defaults to [DefaultCurrency]. Keys in data named
// "revenue" or "currency" are overwritten.
func (a *Analytics) TrackRevenue(name string, revenue float64, currency string, data EventData) {
	if a == nil {
		return
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	merged := data.clone()
	merged["revenue"] = revenue
	merged["currency"] = currency
	a.dispatch(PayloadEvent, name, merged)
}

// TrackOutboundLink dispatches [OutboundLinkEvent] with url merged into data.
func (a *Analytics) TrackOutboundLink(url string, data EventData) {
	if a == nil {
		return
	}
	merged := data.clone()
	merged["url"] = url
	a.dispatch(PayloadEvent, OutboundLinkEvent, merged)
}

// Identify attaches data to the current session.
func (a *Analytics) Identify(data EventData) {
	if a == nil {
		return
	}
	a.dispatch(PayloadIdentify, "", data.clone())
}

// IdentifyUser attaches a user ID, plus optional traits, to the current
// session. An "id" key in traits is overwritten by userID.
func (a *Analytics) IdentifyUser(userID string, traits EventData) {
	if a == nil {
		return
	}
	merged := traits.clone()
	merged["id"] = userID
	a.dispatch(PayloadIdentify, "", merged)
}

// SetTag changes the tag stamped onto subsequent event dispatches. An empty
// tag removes it.
//
// The tag is read when a dispatch fires, not when it was issued. A Track call
// still waiting for the tracker picks up a tag set after the call was made.
func (a *Analytics) SetTag(tag string) {
	if a == nil {
		return
	}
	a.tag.Store(&tag)
}

// Tag returns the current tag.
func (a *Analytics) Tag() string {
	if a == nil {
		return ""
	}
	if p := a.tag.Load(); p != nil {
		return *p
	}
	return ""
}

// Ready reports whether a tracker is installed, meaning dispatches would fire
// immediately.
func (a *Analytics) Ready() bool {
	if a == nil || a.bridge == nil || a.bridge.slot == nil {
		return false
	}
	_, ok := a.bridge.slot.Load()
	return ok
}

func (a *Analytics) setConfig(cfg Config) {
	a.config.Store(&cfg)
}

// dispatch queues the payload on the bridge. data must already be a private
// copy.
func (a *Analytics) dispatch(kind, name string, data EventData) {
	a.bridge.WaitForTracker(func(t Tracker) {
		p := EventPayload{Type: kind, Name: name, Data: data}

		if fn := a.config.Load().BeforeSend(); fn != nil {
			var err error
			p, err = fn(p)
			if err != nil {
				if !errors.Is(err, ErrSuppress) {
					a.logger.Warn("before-send transform rejected event",
						"type", kind,
						"event", name,
						"error", err.Error(),
					)
				}
				return
			}
			if p.Data == nil {
				p.Data = EventData{}
			}
		}

		var err error
		switch p.Type {
		case PayloadIdentify:
			err = t.Identify(p.Data)
		default:
			if tag := a.Tag(); tag != "" {
				p.Data["tag"] = tag
			}
			err = t.Track(p.Name, p.Data)
		}
		if err != nil {
			a.logger.Warn("tracker call failed",
				"type", p.Type,
				"event", p.Name,
				"error", err.Error(),
			)
		}
	})
}
