package trackbridge

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

// newTestAnalytics returns Analytics over a bridge whose slot holds tracker.
// A nil tracker leaves the slot empty.
func newTestAnalytics(t *testing.T, tracker Tracker, opts ...Option) (*Analytics, *TrackerSlot) {
	t.Helper()
	cfg, err := ResolveConfig(append([]Option{WithWebsiteID("site-1"), WithEnv(noEnv), WithLogger(testLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("ResolveConfig() error = %v", err)
	}
	slot := &TrackerSlot{}
	if tracker != nil {
		slot.Install(tracker)
	}
	b := NewBridge(slot, 5*time.Millisecond, testLogger())
	t.Cleanup(b.Close)
	return newAnalytics(b, cfg), slot
}

func TestAnalytics_Track(t *testing.T) {
	tracker := &fakeTracker{}
	a, _ := newTestAnalytics(t, tracker)

	data := EventData{"plan": "pro"}
	a.Track("signup", data)

	calls := tracker.Calls()
	if len(calls) != 1 {
		t.Fatalf("tracker saw %d calls, want 1", len(calls))
	}
	want := trackerCall{Kind: PayloadEvent, Name: "signup", Data: EventData{"plan": "pro"}}
	if !reflect.DeepEqual(calls[0], want) {
		t.Errorf("call = %+v, want %+v", calls[0], want)
	}

	calls[0].Data["plan"] = "mutated"
	if data["plan"] != "pro" {
		t.Error("Track() passed the caller's map to the tracker")
	}
}

func TestAnalytics_TrackNilData(t *testing.T) {
	tracker := &fakeTracker{}
	a, _ := newTestAnalytics(t, tracker)

	a.Track("click", nil)

	calls := tracker.Calls()
	if len(calls) != 1 || calls[0].Data == nil {
		t.Fatalf("calls = %+v, want one call with non-nil data", calls)
	}
}

func TestAnalytics_TrackPageView(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		referrer string
		want     EventData
	}{
		{"both", "/pricing", "https://google.com", EventData{"url": "/pricing", "referrer": "https://google.com"}},
		{"url only", "/pricing", "", EventData{"url": "/pricing"}},
		{"neither", "", "", EventData{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &fakeTracker{}
			a, _ := newTestAnalytics(t, tracker)

			a.TrackPageView(tt.url, tt.referrer)

			calls := tracker.Calls()
			if len(calls) != 1 {
				t.Fatalf("tracker saw %d calls, want 1", len(calls))
			}
			if calls[0].Name != "" {
				t.Errorf("Name = %q, want empty for page view", calls[0].Name)
			}
			if !reflect.DeepEqual(calls[0].Data, tt.want) {
				t.Errorf("Data = %v, want %v", calls[0].Data, tt.want)
			}
		})
	}
}

func TestAnalytics_TrackRevenue(t *testing.T) {
	tracker := &fakeTracker{}
	a, _ := newTestAnalytics(t, tracker)

	a.TrackRevenue("purchase", 10, "", EventData{"sku": "abc"})
	a.TrackRevenue("purchase", 25.5, "EUR", nil)

	calls := tracker.Calls()
	if len(calls) != 2 {
		t.Fatalf("tracker saw %d calls, want 2", len(calls))
	}

	want := EventData{"revenue": 10.0, "currency": "USD", "sku": "abc"}
	if !reflect.DeepEqual(calls[0].Data, want) {
		t.Errorf("Data = %v, want %v", calls[0].Data, want)
	}
	want = EventData{"revenue": 25.5, "currency": "EUR"}
	if !reflect.DeepEqual(calls[1].Data, want) {
		t.Errorf("Data = %v, want %v", calls[1].Data, want)
	}
}

func TestAnalytics_TrackOutboundLink(t *testing.T) {
	tracker := &fakeTracker{}
	a, _ := newTestAnalytics(t, tracker)

	a.TrackOutboundLink("https://github.com", EventData{"position": "footer"})

	calls := tracker.Calls()
	if len(calls) != 1 {
		t.Fatalf("tracker saw %d calls, want 1", len(calls))
	}
	if calls[0].Name != OutboundLinkEvent {
		t.Errorf("Name = %q, want %q", calls[0].Name, OutboundLinkEvent)
	}
	want := EventData{"url": "https://github.com", "position": "footer"}
	if !reflect.DeepEqual(calls[0].Data, want) {
		t.Errorf("Data = %v, want %v", calls[0].Data, want)
	}
}

func TestAnalytics_Identify(t *testing.T) {
	tracker := &fakeTracker{}
	a, _ := newTestAnalytics(t, tracker, WithTag("beta"))

	a.Identify(EventData{"plan": "pro"})
	a.IdentifyUser("user-42", EventData{"id": "ignored", "email": "a@example.com"})

	calls := tracker.Calls()
	if len(calls) != 2 {
		t.Fatalf("tracker saw %d calls, want 2", len(calls))
	}
	for _, c := range calls {
		if c.Kind != PayloadIdentify {
			t.Errorf("Kind = %q, want %q", c.Kind, PayloadIdentify)
		}
		if _, ok := c.Data["tag"]; ok {
			t.Error("identify payload should not carry the tag")
		}
	}
	want := EventData{"id": "user-42", "email": "a@example.com"}
	if !reflect.DeepEqual(calls[1].Data, want) {
		t.Errorf("Data = %v, want %v", calls[1].Data, want)
	}
}

func TestAnalytics_TagReadAtFireTime(t *testing.T) {
	tracker := &fakeTracker{}
	a, slot := newTestAnalytics(t, nil, WithTag("initial"))

	a.Track("early", nil)
	a.SetTag("changed")
	slot.Install(tracker)

	calls := tracker.waitCalls(t, 1)
	if got := calls[0].Data["tag"]; got != "changed" {
		t.Errorf("tag = %v, want %q", got, "changed")
	}
}

func TestAnalytics_EmptyTagOmitted(t *testing.T) {
	tracker := &fakeTracker{}
	a, _ := newTestAnalytics(t, tracker, WithTag("beta"))

	a.SetTag("")
	a.Track("click", nil)

	calls := tracker.Calls()
	if _, ok := calls[0].Data["tag"]; ok {
		t.Error("empty tag should be omitted")
	}
	if a.Tag() != "" {
		t.Errorf("Tag() = %q, want empty", a.Tag())
	}
}

func TestAnalytics_WaitsForTracker(t *testing.T) {
	tracker := &fakeTracker{}
	a, slot := newTestAnalytics(t, nil)

	if a.Ready() {
		t.Error("Ready() = true before a tracker was installed")
	}

	a.Track("first", nil)
	a.Track("second", nil)
	if len(tracker.Calls()) != 0 {
		t.Fatal("dispatch fired before the tracker was installed")
	}

	slot.Install(tracker)
	calls := tracker.waitCalls(t, 2)

	names := map[string]bool{}
	for _, c := range calls {
		names[c.Name] = true
	}
	if !names["first"] || !names["second"] {
		t.Errorf("calls = %+v, want first and second", calls)
	}
	if !a.Ready() {
		t.Error("Ready() = false after install")
	}
}

func TestAnalytics_BeforeSend(t *testing.T) {
	tracker := &fakeTracker{}
	logger, logs := bufferLogger()
	cfg, err := ResolveConfig(
		WithWebsiteID("site-1"),
		WithEnv(noEnv),
		WithLogger(logger),
		WithBeforeSend(func(p EventPayload) (EventPayload, error) {
			switch p.Name {
			case "internal":
				return p, ErrSuppress
			case "broken":
				return p, errors.New("bad payload")
			}
			delete(p.Data, "email")
			p.Name = strings.ToUpper(p.Name)
			return p, nil
		}),
	)
	if err != nil {
		t.Fatalf("ResolveConfig() error = %v", err)
	}
	slot := &TrackerSlot{}
	slot.Install(tracker)
	b := NewBridge(slot, 5*time.Millisecond, logger)
	defer b.Close()
	a := newAnalytics(b, cfg)

	a.Track("internal", nil)
	a.Track("broken", nil)
	a.Track("signup", EventData{"email": "a@example.com", "plan": "pro"})

	calls := tracker.Calls()
	if len(calls) != 1 {
		t.Fatalf("tracker saw %d calls, want 1", len(calls))
	}
	want := trackerCall{Kind: PayloadEvent, Name: "SIGNUP", Data: EventData{"plan": "pro"}}
	if !reflect.DeepEqual(calls[0], want) {
		t.Errorf("call = %+v, want %+v", calls[0], want)
	}

	out := logs()
	if !strings.Contains(out, "bad payload") {
		t.Errorf("log = %q, want the rejection error", out)
	}
	if strings.Contains(out, "event=internal") {
		t.Errorf("log = %q, suppressed events should not be logged", out)
	}
}

func TestAnalytics_TrackerErrorLogged(t *testing.T) {
	tracker := &fakeTracker{err: errors.New("tracker offline")}
	logger, logs := bufferLogger()
	cfg, _ := ResolveConfig(WithWebsiteID("site-1"), WithEnv(noEnv), WithLogger(logger))
	slot := &TrackerSlot{}
	slot.Install(tracker)
	b := NewBridge(slot, 5*time.Millisecond, logger)
	defer b.Close()
	a := newAnalytics(b, cfg)

	a.Track("click", nil)

	if !strings.Contains(logs(), "tracker offline") {
		t.Errorf("log = %q, want tracker error", logs())
	}
}

func TestAnalytics_NilSafe(t *testing.T) {
	var a *Analytics
	a.Track("x", nil)
	a.TrackPageView("/", "")
	a.TrackRevenue("x", 1, "", nil)
	a.TrackOutboundLink("https://example.com", nil)
	a.Identify(nil)
	a.IdentifyUser("u", nil)
	a.SetTag("t")
	if a.Tag() != "" || a.Ready() {
		t.Error("nil Analytics should report empty tag and not ready")
	}
}
