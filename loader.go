package trackbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/jpalmerr/trackbridge/internal/poller"
)

// ScriptFetcher confirms that the tracking script at src can be loaded.
type ScriptFetcher interface {
	Fetch(ctx context.Context, src string) error
}

// ScriptFetcherFunc adapts a function to [ScriptFetcher].
type ScriptFetcherFunc func(ctx context.Context, src string) error

// Fetch calls f(ctx, src).
func (f ScriptFetcherFunc) Fetch(ctx context.Context, src string) error {
	return f(ctx, src)
}

// httpFetcher loads the script over HTTP and requires a 2xx answer.
type httpFetcher struct {
	client  *poller.Client
	timeout time.Duration
}

func (f httpFetcher) Fetch(ctx context.Context, src string) error {
	resp := f.client.Fetch(ctx, "", src, nil, nil, f.timeout)
	if resp.Error != nil {
		return resp.Error
	}
	if !resp.OK() {
		return fmt.Errorf("script returned status %d", resp.StatusCode)
	}
	return nil
}

// readiness is one mount cycle's not-ready to ready transition.
type readiness struct {
	done chan struct{}
	once sync.Once
}

func newReadiness() *readiness {
	return &readiness{done: make(chan struct{})}
}

func (r *readiness) signal() {
	r.once.Do(func() { close(r.done) })
}

func (r *readiness) ready() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Loader keeps one copy of the tracking script in a document and reports
// when it has loaded.
//
// Mount injects the script element, or adopts an existing one, and loads
// the script in the background. The loader becomes ready exactly once per
// mount cycle and stays ready until Unmount. Remount re-runs the whole
// procedure when the configuration changes.
//
// All methods are safe for concurrent use.
type Loader struct {
	fetcher ScriptFetcher
	onLoad  func()
	logger  *slog.Logger

	mu       sync.Mutex
	cfg      Config
	state    *readiness
	doc      *html.Node
	mounted  bool
	injected bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewLoader creates a [Loader]. onLoad runs once per mount cycle, before
// readiness is signalled. It may be nil.
func NewLoader(cfg Config, fetcher ScriptFetcher, onLoad func(), logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if onLoad == nil {
		onLoad = func() {}
	}
	return &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		onLoad:  onLoad,
		logger:  logger,
		state:   newReadiness(),
	}
}

// Mount ensures the script element is present in doc and starts loading it.
//
// If doc already contains an element with [ScriptID], the script is treated
// as loaded: onLoad runs and readiness is signalled before Mount returns,
// without injecting or fetching anything. Otherwise the element is appended
// to <head> and the script is fetched in the background until it succeeds
// or ctx is cancelled. A nil doc skips injection and only loads.
//
// Mount on an already mounted loader is a no-op. Returns
// [ErrMissingWebsiteID] without touching doc when the configuration is
// incomplete.
func (l *Loader) Mount(ctx context.Context, doc *html.Node) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mounted {
		return nil
	}
	if l.cfg.WebsiteID() == "" {
		return ErrMissingWebsiteID
	}

	state := l.state

	if doc != nil {
		injected, err := InjectScript(doc, l.cfg)
		if err != nil {
			return fmt.Errorf("failed to inject script: %w", err)
		}
		if !injected {
			l.mounted = true
			l.doc = doc
			l.logger.Debug("tracking script already present", "id", ScriptID)
			l.onLoad()
			state.signal()
			return nil
		}
		l.injected = true
	}

	l.mounted = true
	l.doc = doc

	loadCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	src := ScriptSrc(l.cfg)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.load(loadCtx, src, state)
	}()
	return nil
}

func (l *Loader) load(ctx context.Context, src string, state *readiness) {
	if err := l.fetcher.Fetch(ctx, src); err != nil {
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("tracking script failed to load", "src", src, "error", err.Error())
		}
		return
	}
	if ctx.Err() != nil {
		// unmounted while the fetch was in flight
		return
	}
	l.onLoad()
	state.signal()
	l.logger.Debug("tracking script loaded", "src", src)
}

// Unmount cancels any in-flight load and removes the element injected by
// Mount. An element Mount adopted rather than injected is left in place.
// The loader becomes not-ready. Unmount is idempotent.
func (l *Loader) Unmount() {
	l.mu.Lock()
	if !l.mounted {
		l.mu.Unlock()
		return
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.injected && l.doc != nil {
		RemoveScript(l.doc)
	}
	l.mounted = false
	l.injected = false
	l.doc = nil
	l.state = newReadiness()
	l.mu.Unlock()

	l.wg.Wait()
}

// Remount applies cfg. When cfg is equal to the current configuration and
// the loader is mounted, nothing happens. Otherwise the loader is unmounted
// and mounted again on doc with the new configuration, starting a fresh
// readiness cycle.
func (l *Loader) Remount(ctx context.Context, doc *html.Node, cfg Config) error {
	l.mu.Lock()
	same := l.mounted && l.cfg.Equal(cfg)
	l.mu.Unlock()
	if same {
		return nil
	}

	l.Unmount()

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	return l.Mount(ctx, doc)
}

// Ready reports whether the current mount cycle has loaded.
func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.ready()
}

// Done returns a channel closed when the current mount cycle becomes ready.
// After Unmount or a configuration change, call Done again for the new cycle.
func (l *Loader) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.done
}

// Config returns the loader's current configuration.
func (l *Loader) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}
