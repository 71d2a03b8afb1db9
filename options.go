package trackbridge

import (
	"errors"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
)

// options holds mutable state during configuration resolution.
type options struct {
	websiteID     *string
	host          *string
	autoTrack     bool
	doNotTrack    bool
	domains       []string
	tag           string
	excludeSearch bool
	excludeHash   bool
	edgeRuntime   bool
	beforeSend    BeforeSendFunc
	pollInterval  time.Duration
	timeout       time.Duration
	development   bool
	logger        *slog.Logger

	lookupEnv  func(string) (string, bool)
	newTracker func(Config) Tracker
	fetcher    ScriptFetcher
	now        func() time.Time
}

// Option is a function that configures trackbridge during construction.
//
// Option implements the functional options pattern and is accepted by both
// [ResolveConfig] and [NewProvider]. Options return an error if validation
// fails. Explicit options always take precedence over environment variables.
type Option func(*options) error

// WithWebsiteID sets the collector's website identifier.
//
// When not set, UMAMI_WEBSITE_ID and then NEXT_PUBLIC_UMAMI_WEBSITE_ID are
// consulted. Returns an error if id is empty.
func WithWebsiteID(id string) Option {
	return func(o *options) error {
		if strings.TrimSpace(id) == "" {
			return errors.New("website ID cannot be empty")
		}
		o.websiteID = &id
		return nil
	}
}

// WithHost sets the collector base URL, e.g. "https://analytics.example.com".
//
// When not set, UMAMI_HOST and then NEXT_PUBLIC_UMAMI_HOST are consulted,
// falling back to [DefaultHost]. A trailing slash is removed.
//
// Returns an error if the URL has no http or https scheme.
func WithHost(rawURL string) Option {
	return func(o *options) error {
		host, err := normalizeHost(rawURL)
		if err != nil {
			return err
		}
		o.host = &host
		return nil
	}
}

// WithAutoTrack controls whether the script records page views on its own.
// Defaults to true.
func WithAutoTrack(enabled bool) Option {
	return func(o *options) error {
		o.autoTrack = enabled
		return nil
	}
}

// WithDoNotTrack makes the script honour the visitor's Do Not Track setting.
func WithDoNotTrack(enabled bool) Option {
	return func(o *options) error {
		o.doNotTrack = enabled
		return nil
	}
}

// WithDomains restricts tracking to the given hostnames.
//
// Empty entries are dropped. Calling WithDomains again replaces the list.
func WithDomains(domains ...string) Option {
	return func(o *options) error {
		o.domains = o.domains[:0]
		for _, d := range domains {
			if d = strings.TrimSpace(d); d != "" {
				o.domains = append(o.domains, d)
			}
		}
		return nil
	}
}

// WithTag sets the initial tag attached to every event. The tag can be changed
// later with [Analytics.SetTag].
func WithTag(tag string) Option {
	return func(o *options) error {
		o.tag = tag
		return nil
	}
}

// WithExcludeSearch strips query strings from tracked URLs.
func WithExcludeSearch(enabled bool) Option {
	return func(o *options) error {
		o.excludeSearch = enabled
		return nil
	}
}

// WithExcludeHash strips fragments from tracked URLs.
func WithExcludeHash(enabled bool) Option {
	return func(o *options) error {
		o.excludeHash = enabled
		return nil
	}
}

// WithEdgeRuntime selects script-edge.js instead of script.js.
func WithEdgeRuntime(enabled bool) Option {
	return func(o *options) error {
		o.edgeRuntime = enabled
		return nil
	}
}

// WithBeforeSend registers a transform invoked before every dispatch.
//
// Return [ErrSuppress] to drop the event. Nil is ignored.
//
// Example:
//
//	trackbridge.WithBeforeSend(func(p trackbridge.EventPayload) (trackbridge.EventPayload, error) {
//	    if p.Name == "internal" {
//	        return p, trackbridge.ErrSuppress
//	    }
//	    delete(p.Data, "email")
//	    return p, nil
//	})
func WithBeforeSend(fn BeforeSendFunc) Option {
	return func(o *options) error {
		o.beforeSend = fn
		return nil
	}
}

// WithPollInterval sets how often the bridge checks for an installed tracker.
// Defaults to 100ms.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		o.pollInterval = d
		return nil
	}
}

// WithTimeout sets the timeout for each request to the collector.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		o.timeout = d
		return nil
	}
}

// WithDevelopment enables diagnostics aimed at developers, such as a warning
// naming the expected environment variables when no website ID is configured.
func WithDevelopment(enabled bool) Option {
	return func(o *options) error {
		o.development = enabled
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithEnv replaces the environment lookup used to resolve defaults.
// Defaults to [os.LookupEnv].
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(o *options) error {
		if lookup == nil {
			return errors.New("env lookup cannot be nil")
		}
		o.lookupEnv = lookup
		return nil
	}
}

// WithTracker replaces the tracker installed when the script finishes
// loading. By default a tracker posting to {host}/api/send is used.
func WithTracker(factory func(Config) Tracker) Option {
	return func(o *options) error {
		if factory == nil {
			return errors.New("tracker factory cannot be nil")
		}
		o.newTracker = factory
		return nil
	}
}

// WithScriptFetcher replaces how the loader confirms the tracking script is
// available. By default the script URL is fetched and must answer 2xx.
func WithScriptFetcher(f ScriptFetcher) Option {
	return func(o *options) error {
		if f == nil {
			return errors.New("script fetcher cannot be nil")
		}
		o.fetcher = f
		return nil
	}
}

// WithClock replaces the time source used for form timings.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		o.now = now
		return nil
	}
}

func defaultOptions() *options {
	return &options{
		autoTrack:    true,
		pollInterval: defaultPollInterval,
		timeout:      defaultTimeout,
		lookupEnv:    os.LookupEnv,
		now:          time.Now,
	}
}

func normalizeHost(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", errors.New("invalid host URL: " + err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("host URL must have an http or https scheme")
	}
	if u.Host == "" {
		return "", errors.New("host URL must include a hostname")
	}
	return strings.TrimRight(u.String(), "/"), nil
}
