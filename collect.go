package trackbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jpalmerr/trackbridge/internal/poller"
)

// Collector paths, relative to the configured host.
const (
	SendPath   = "/api/send"
	VitalsPath = "/api/collect/vitals"
	FormsPath  = "/api/collect/forms"
)

// poster sends fire-and-forget JSON requests to the collector.
//
// Requests run on a detached context so they outlive the request or page
// that triggered them. Failures, including panics, are logged and dropped;
// nothing is retried or returned to the caller.
//
// Each request is counted in the current generation's WaitGroup. wait swaps
// in a fresh generation under mu before waiting on the old one, so Add never
// races Wait. Posts after close are dropped.
type poster struct {
	cfg    atomic.Pointer[Config]
	client *poller.Client
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     *sync.WaitGroup
}

func newPoster(cfg Config, client *poller.Client) *poster {
	p := &poster{
		client: client,
		logger: cfg.Logger(),
		wg:     &sync.WaitGroup{},
	}
	p.cfg.Store(&cfg)
	return p
}

func (p *poster) config() Config {
	return *p.cfg.Load()
}

func (p *poster) setConfig(cfg Config) {
	p.cfg.Store(&cfg)
}

// post sends bodies to path in the background, one after another in the
// given order. It does nothing once the poster is closed.
func (p *poster) post(path string, bodies ...any) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Debug("dropping collector request after close", "path", path)
		return
	}
	wg := p.wg
	wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("collector request panicked",
					"correlation_id", uuid.NewString(),
					"path", path,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
			}
		}()

		cfg := p.config()
		for _, body := range bodies {
			resp := p.client.PostJSON(context.Background(), cfg.Host()+path, body, cfg.Timeout())
			switch {
			case resp.Error != nil:
				p.logger.Warn("collector request failed", "path", path, "error", resp.Error.Error())
			case !resp.OK():
				p.logger.Warn("collector rejected request", "path", path, "status", resp.StatusCode)
			default:
				p.logger.Debug("collector request sent", "path", path, "latency_ms", resp.Latency.Milliseconds())
			}
		}
	}()
}

// wait blocks until every request posted before the call has finished.
func (p *poster) wait() {
	p.mu.Lock()
	wg := p.wg
	p.wg = &sync.WaitGroup{}
	p.mu.Unlock()
	wg.Wait()
}

// close stops accepting requests and waits for the in-flight ones.
func (p *poster) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wait()
}

// sendRequest is the body of POST {host}/api/send.
type sendRequest struct {
	Type    string      `json:"type"`
	Payload sendPayload `json:"payload"`
}

type sendPayload struct {
	Website  string    `json:"website"`
	Hostname string    `json:"hostname,omitempty"`
	URL      string    `json:"url,omitempty"`
	Referrer string    `json:"referrer,omitempty"`
	Title    string    `json:"title,omitempty"`
	Name     string    `json:"name,omitempty"`
	Tag      string    `json:"tag,omitempty"`
	Data     EventData `json:"data,omitempty"`
}

// sendTracker is the default [Tracker]. It speaks the collector's send API
// directly and applies the script's URL rules: excluded search and hash
// parts, and the domain allow-list.
type sendTracker struct {
	cfg    Config
	poster *poster
}

func newSendTracker(cfg Config, p *poster) *sendTracker {
	return &sendTracker{cfg: cfg, poster: p}
}

// Track sends an event, or a page view when name is empty. For page views
// the url, referrer and title keys move from data into the payload; tag
// always does.
func (s *sendTracker) Track(name string, data EventData) error {
	payload := sendPayload{
		Website: s.cfg.WebsiteID(),
		Name:    name,
	}

	data = data.clone()
	if v, ok := data["url"].(string); ok && name == "" {
		delete(data, "url")
		payload.URL = s.cleanURL(v)
	}
	if v, ok := data["referrer"].(string); ok && name == "" {
		delete(data, "referrer")
		payload.Referrer = v
	}
	if v, ok := data["title"].(string); ok && name == "" {
		delete(data, "title")
		payload.Title = v
	}
	if v, ok := data["tag"].(string); ok {
		delete(data, "tag")
		payload.Tag = v
	}
	if len(data) > 0 {
		payload.Data = data
	}

	if payload.URL != "" {
		if u, err := url.Parse(payload.URL); err == nil {
			payload.Hostname = u.Hostname()
		}
	}
	if !s.allowed(payload.Hostname) {
		return nil
	}

	s.poster.post(SendPath, sendRequest{Type: PayloadEvent, Payload: payload})
	return nil
}

// Identify sends session data.
func (s *sendTracker) Identify(data EventData) error {
	s.poster.post(SendPath, sendRequest{
		Type: PayloadIdentify,
		Payload: sendPayload{
			Website: s.cfg.WebsiteID(),
			Data:    data,
		},
	})
	return nil
}

// allowed applies the domain allow-list. Unknown hostnames pass.
func (s *sendTracker) allowed(hostname string) bool {
	domains := s.cfg.Domains()
	if hostname == "" || len(domains) == 0 {
		return true
	}
	return slices.Contains(domains, hostname)
}

func (s *sendTracker) cleanURL(raw string) string {
	if !s.cfg.ExcludeSearch() && !s.cfg.ExcludeHash() {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if s.cfg.ExcludeSearch() {
		u.RawQuery = ""
		u.ForceQuery = false
	}
	if s.cfg.ExcludeHash() {
		u.Fragment = ""
		u.RawFragment = ""
	}
	return u.String()
}
