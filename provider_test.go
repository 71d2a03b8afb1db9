package trackbridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewProvider_MissingWebsiteID(t *testing.T) {
	logger, logs := bufferLogger()
	p, err := NewProvider(WithEnv(noEnv), WithLogger(logger), WithDevelopment(true))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Close()

	if p.Enabled() {
		t.Error("Enabled() = true without a website ID")
	}
	if p.ScriptTag() != "" {
		t.Errorf("ScriptTag() = %q, want empty", p.ScriptTag())
	}

	doc := mustParse(t, "<html><head></head></html>")
	if err := p.Mount(context.Background(), doc); err != nil {
		t.Errorf("Mount() error = %v, want nil for disabled provider", err)
	}
	if countScripts(doc) != 0 {
		t.Error("disabled provider injected a script")
	}

	p.Analytics().Track("click", nil)
	if p.bridge.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 for disabled provider", p.bridge.Pending())
	}
	if p.Ready() {
		t.Error("Ready() = true for disabled provider")
	}

	if !strings.Contains(logs(), "UMAMI_WEBSITE_ID") {
		t.Errorf("log = %q, want a warning naming UMAMI_WEBSITE_ID", logs())
	}
	if err := p.Reconfigure(context.Background(), doc, WithWebsiteID("abc")); err == nil {
		t.Error("Reconfigure() on disabled provider expected error, got nil")
	}
}

func TestNewProvider_MissingWebsiteIDQuietOutsideDevelopment(t *testing.T) {
	logger, logs := bufferLogger()
	p, err := NewProvider(WithEnv(noEnv), WithLogger(logger))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Close()

	if strings.Contains(logs(), "analytics disabled") {
		t.Error("disabled warning logged outside development mode")
	}
}

func TestNewProvider_InvalidOption(t *testing.T) {
	_, err := NewProvider(WithEnv(noEnv), WithHost("not a url"))
	if err == nil {
		t.Error("NewProvider() expected error for invalid host, got nil")
	}
}

func TestProvider_EndToEnd(t *testing.T) {
	c := newTestCollector(t)
	p, err := NewProvider(
		WithWebsiteID("site-1"),
		WithHost(c.URL),
		WithEnv(noEnv),
		WithLogger(testLogger()),
		WithPollInterval(5*time.Millisecond),
		WithTag("beta"),
	)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Close()

	// queued before the script loads
	p.Analytics().Track("early", EventData{"n": 1})

	doc := mustParse(t, "<html><head></head><body></body></html>")
	if err := p.Mount(context.Background(), doc); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	waitDone(t, p.Done())

	p.Analytics().TrackPageView("https://example.com/", "")

	reqs := c.waitRequests(t, 2)
	p.Flush()

	names := map[any]bool{}
	for _, r := range reqs {
		if r.Path != SendPath {
			t.Errorf("Path = %q, want %q", r.Path, SendPath)
		}
		payload := r.Body["payload"].(map[string]any)
		if payload["tag"] != "beta" {
			t.Errorf("tag = %v, want beta", payload["tag"])
		}
		names[payload["name"]] = true
	}
	if !names["early"] {
		t.Error("event queued before load was not delivered")
	}
}

func TestProvider_CustomTracker(t *testing.T) {
	tracker := &fakeTracker{}
	p, err := NewProvider(
		WithWebsiteID("site-1"),
		WithEnv(noEnv),
		WithLogger(testLogger()),
		WithPollInterval(5*time.Millisecond),
		WithScriptFetcher(instantFetcher),
		WithTracker(func(Config) Tracker { return tracker }),
	)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Close()

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p.Done())

	p.Analytics().Identify(EventData{"plan": "pro"})
	if calls := tracker.Calls(); len(calls) != 1 || calls[0].Kind != PayloadIdentify {
		t.Errorf("calls = %+v, want one identify", calls)
	}
}

func TestProvider_Reconfigure(t *testing.T) {
	var built []string
	p, err := NewProvider(
		WithWebsiteID("site-1"),
		WithEnv(noEnv),
		WithLogger(testLogger()),
		WithScriptFetcher(instantFetcher),
		WithTracker(func(cfg Config) Tracker {
			built = append(built, cfg.WebsiteID())
			return &fakeTracker{}
		}),
	)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Close()

	doc := mustParse(t, "<html><head></head></html>")
	if err := p.Mount(context.Background(), doc); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	waitDone(t, p.Done())

	err = p.Reconfigure(context.Background(), doc, WithWebsiteID("site-2"), WithEnv(noEnv), WithTag("v2"))
	if err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	waitDone(t, p.Done())

	if p.Config().WebsiteID() != "site-2" {
		t.Errorf("Config().WebsiteID() = %q, want site-2", p.Config().WebsiteID())
	}
	if p.Analytics().Tag() != "v2" {
		t.Errorf("Tag() = %q, want v2", p.Analytics().Tag())
	}
	if !strings.Contains(string(p.ScriptTag()), `data-website-id="site-2"`) {
		t.Errorf("ScriptTag() = %s, want site-2", p.ScriptTag())
	}
	if len(built) != 2 || built[1] != "site-2" {
		t.Errorf("trackers built for %v, want [site-1 site-2]", built)
	}

	if err := p.Reconfigure(context.Background(), doc, WithEnv(noEnv)); !errors.Is(err, ErrMissingWebsiteID) {
		t.Errorf("Reconfigure() error = %v, want ErrMissingWebsiteID", err)
	}
}

func TestProvider_CloseIdempotent(t *testing.T) {
	p, err := NewProvider(WithWebsiteID("site-1"), WithEnv(noEnv), WithLogger(testLogger()),
		WithScriptFetcher(newBlockingFetcher()))
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p.Analytics().Track("pending", nil)

	p.Close()
	p.Close()

	if p.bridge.Pending() != 0 {
		t.Errorf("Pending() after Close() = %d, want 0", p.bridge.Pending())
	}
}

func TestProvider_NilSafe(t *testing.T) {
	var p *Provider
	if p.Enabled() || p.Ready() {
		t.Error("nil Provider should be disabled")
	}
	if p.Analytics() != nil || p.Vitals() != nil || p.NewFormTracker("f", "", "/", nil) != nil {
		t.Error("nil Provider should return nil handles")
	}
	p.Unmount()
	p.Flush()
	p.Close()
}
