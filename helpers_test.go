package trackbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/trackbridge/internal/poller"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bufferLogger returns a logger writing text records into a buffer guarded
// by the returned function.
func bufferLogger() (*slog.Logger, func() string) {
	var mu sync.Mutex
	var buf bytes.Buffer
	w := writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	})
	read := func() string {
		mu.Lock()
		defer mu.Unlock()
		return buf.String()
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})), read
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// trackerCall is one call received by fakeTracker.
type trackerCall struct {
	Kind string
	Name string
	Data EventData
}

type fakeTracker struct {
	mu    sync.Mutex
	calls []trackerCall
	err   error
}

func (f *fakeTracker) Track(name string, data EventData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trackerCall{Kind: PayloadEvent, Name: name, Data: data})
	return f.err
}

func (f *fakeTracker) Identify(data EventData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trackerCall{Kind: PayloadIdentify, Data: data})
	return f.err
}

func (f *fakeTracker) Calls() []trackerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trackerCall(nil), f.calls...)
}

// waitCalls polls until the tracker has seen n calls or fails the test.
func (f *fakeTracker) waitCalls(t *testing.T, n int) []trackerCall {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := f.Calls(); len(calls) >= n {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("tracker saw %d calls, want %d", len(f.Calls()), n)
	return nil
}

// collectorRequest is one JSON request received by testCollector.
type collectorRequest struct {
	Path string
	Body map[string]any
}

type testCollector struct {
	*httptest.Server

	mu   sync.Mutex
	reqs []collectorRequest
}

// newTestCollector starts a collector that records every request body and
// answers 200. Script paths answer with an empty script.
func newTestCollector(t *testing.T) *testCollector {
	t.Helper()
	c := &testCollector{}
	c.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/javascript")
			_, _ = w.Write([]byte("/* tracker */"))
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.reqs = append(c.reqs, collectorRequest{Path: r.URL.Path, Body: body})
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(c.Close)
	return c
}

func (c *testCollector) requests() []collectorRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]collectorRequest(nil), c.reqs...)
}

func (c *testCollector) waitRequests(t *testing.T, n int) []collectorRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reqs := c.requests(); len(reqs) >= n {
			return reqs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("collector saw %d requests, want %d", len(c.requests()), n)
	return nil
}

// newTestPoster returns a poster aimed at host.
func newTestPoster(t *testing.T, host string, opts ...Option) *poster {
	t.Helper()
	opts = append([]Option{
		WithWebsiteID("site-1"),
		WithHost(host),
		WithEnv(noEnv),
		WithLogger(testLogger()),
		WithTimeout(time.Second),
	}, opts...)
	cfg, err := ResolveConfig(opts...)
	if err != nil {
		t.Fatalf("ResolveConfig() error = %v", err)
	}
	client := poller.NewClient()
	t.Cleanup(client.Close)
	return newPoster(cfg, client)
}

// readyContext is a context that is never cancelled during a test.
func readyContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
