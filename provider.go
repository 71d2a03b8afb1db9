package trackbridge

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/jpalmerr/trackbridge/internal/poller"
)

// Provider wires configuration, script loading and event dispatch together.
//
// A Provider owns one tracker slot, one [Bridge], one [Loader] and the HTTP
// client shared by every collector request. Application code receives the
// [Analytics] handle, usually through [NewContext] and [FromContext].
//
// A Provider without a website ID is disabled: it never injects a script and
// every dispatch is dropped. Use [Provider.Enabled] to tell the modes apart.
//
// Create with [NewProvider] and release with [Provider.Close].
type Provider struct {
	enabled bool
	logger  *slog.Logger
	now     func() time.Time

	mu  sync.RWMutex
	cfg Config

	slot      *TrackerSlot
	bridge    *Bridge
	analytics *Analytics
	loader    *Loader
	client    *poller.Client
	poster    *poster
	vitals    *VitalsTracker

	closeOnce sync.Once
}

// NewProvider resolves opts and builds a Provider.
//
// A missing website ID is not an error: the Provider is returned disabled
// and, in development mode, a warning naming the expected environment
// variables is logged. Invalid options return an error.
//
// Example:
//
//	p, err := trackbridge.NewProvider(
//	    trackbridge.WithWebsiteID("3f1c..."),
//	    trackbridge.WithHost("https://analytics.example.com"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//	http.Handle("/", p.Middleware(site))
func NewProvider(opts ...Option) (*Provider, error) {
	cfg, o, err := resolve(opts)
	enabled := true
	if err != nil {
		if !errors.Is(err, ErrMissingWebsiteID) {
			return nil, err
		}
		enabled = false
	}

	logger := cfg.Logger()
	if !enabled && cfg.Development() {
		logger.Warn("analytics disabled: no website ID configured",
			"env", strings.Join(WebsiteIDEnvVars, ", "),
		)
	}

	client := poller.NewClient()
	p := &Provider{
		enabled: enabled,
		logger:  logger,
		now:     o.now,
		cfg:     cfg,
		client:  client,
		poster:  newPoster(cfg, client),
	}
	if enabled {
		p.slot = &TrackerSlot{}
	}
	p.bridge = NewBridge(p.slot, cfg.PollInterval(), logger)
	p.analytics = newAnalytics(p.bridge, cfg)
	p.vitals = newVitalsTracker(p.poster)

	newTracker := o.newTracker
	if newTracker == nil {
		newTracker = func(c Config) Tracker { return newSendTracker(c, p.poster) }
	}
	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = httpFetcher{client: client, timeout: cfg.Timeout()}
	}

	onLoad := func() {
		if p.slot != nil {
			p.slot.Install(newTracker(p.Config()))
		}
	}
	p.loader = NewLoader(cfg, fetcher, onLoad, logger)

	return p, nil
}

// Enabled reports whether the Provider has a website ID.
func (p *Provider) Enabled() bool {
	return p != nil && p.enabled
}

// Config returns the current configuration.
func (p *Provider) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Analytics returns the dispatch handle. It is never nil for a non-nil
// Provider.
func (p *Provider) Analytics() *Analytics {
	if p == nil {
		return nil
	}
	return p.analytics
}

// Vitals returns the web-vitals tracker.
func (p *Provider) Vitals() *VitalsTracker {
	if p == nil {
		return nil
	}
	return p.vitals
}

// NewFormTracker returns a tracker for one form. elements lists the form's
// controls in document order and is used to resolve field indexes for
// [FormTracker.HandleFocusEvent] and [FormTracker.HandleBlurEvent].
func (p *Provider) NewFormTracker(formID, formName, urlPath string, elements []FormElement) *FormTracker {
	if p == nil {
		return nil
	}
	return newFormTracker(p.poster, p.now, formID, formName, urlPath, elements)
}

// Ready reports whether the tracking script has loaded in the current mount
// cycle. A disabled Provider is never ready.
func (p *Provider) Ready() bool {
	return p.Enabled() && p.loader.Ready()
}

// Done returns a channel closed when the current mount cycle becomes ready.
// For a disabled Provider the channel is never closed.
func (p *Provider) Done() <-chan struct{} {
	if !p.Enabled() {
		return make(chan struct{})
	}
	return p.loader.Done()
}

// Mount injects the tracking script into doc and starts loading it. See
// [Loader.Mount]. A disabled Provider leaves doc untouched and returns nil.
func (p *Provider) Mount(ctx context.Context, doc *html.Node) error {
	if !p.Enabled() {
		return nil
	}
	return p.loader.Mount(ctx, doc)
}

// Start loads the tracking script without a document, for server-side use
// where pages embed [Provider.ScriptTag] themselves.
func (p *Provider) Start(ctx context.Context) error {
	return p.Mount(ctx, nil)
}

// Unmount removes the injected script and resets readiness. The installed
// tracker stays in place, so dispatches keep firing.
func (p *Provider) Unmount() {
	if !p.Enabled() {
		return
	}
	p.loader.Unmount()
}

// Reconfigure applies opts on top of the environment defaults and, when the
// script-relevant settings changed, reloads the script into doc. BeforeSend
// and a changed tag apply to every dispatch that fires afterwards, including
// ones already waiting for the tracker.
//
// Returns [ErrMissingWebsiteID] if the new options lack a website ID, and an
// error if the Provider is disabled.
func (p *Provider) Reconfigure(ctx context.Context, doc *html.Node, opts ...Option) error {
	if !p.Enabled() {
		return errors.New("cannot reconfigure a disabled provider")
	}
	cfg, _, err := resolve(opts)
	if err != nil {
		return err
	}

	p.mu.Lock()
	prev := p.cfg
	p.cfg = cfg
	p.mu.Unlock()

	p.poster.setConfig(cfg)
	p.analytics.setConfig(cfg)
	// a tag set at runtime survives unless the configured tag itself changed
	if prev.Tag() != cfg.Tag() {
		p.analytics.SetTag(cfg.Tag())
	}
	return p.loader.Remount(ctx, doc, cfg)
}

// ScriptTag renders the script element for the current configuration, or
// nothing when the Provider is disabled.
func (p *Provider) ScriptTag() template.HTML {
	if !p.Enabled() {
		return ""
	}
	return ScriptTag(p.Config())
}

// Flush blocks until in-flight collector requests have finished.
func (p *Provider) Flush() {
	if p == nil {
		return
	}
	p.poster.wait()
}

// Close unmounts, cancels pending dispatches, waits for in-flight collector
// requests and releases idle connections. Collector requests made after Close
// are dropped. Close is idempotent.
func (p *Provider) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.Unmount()
		p.bridge.Close()
		p.poster.close()
		p.client.Close()
	})
}
