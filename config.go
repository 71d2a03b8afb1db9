package trackbridge

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// DefaultHost is the collector used when neither an option nor the
// environment supplies one.
const DefaultHost = "https://cloud.umami.is"

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultTimeout      = 10 * time.Second
)

// Environment variables consulted for defaults, in order of precedence.
var (
	WebsiteIDEnvVars = []string{"UMAMI_WEBSITE_ID", "NEXT_PUBLIC_UMAMI_WEBSITE_ID"}
	HostEnvVars      = []string{"UMAMI_HOST", "NEXT_PUBLIC_UMAMI_HOST"}
)

// ErrMissingWebsiteID is returned by [ResolveConfig] when no website ID was
// given explicitly or through the environment.
var ErrMissingWebsiteID = errors.New("trackbridge: website ID is not configured (set " +
	strings.Join(WebsiteIDEnvVars, " or ") + ")")

// Config is the resolved, immutable tracking configuration.
//
// Config is created by [ResolveConfig] and is never modified afterwards.
// Changing configuration means resolving a new Config and calling
// [Provider.Reconfigure].
type Config struct {
	websiteID     string
	host          string
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
}

// WebsiteID returns the collector's website identifier. Empty when the
// configuration is incomplete.
func (c Config) WebsiteID() string { return c.websiteID }

// Host returns the collector base URL without a trailing slash.
func (c Config) Host() string { return c.host }

// AutoTrack reports whether the script records page views automatically.
func (c Config) AutoTrack() bool { return c.autoTrack }

// DoNotTrack reports whether the visitor's Do Not Track setting is honoured.
func (c Config) DoNotTrack() bool { return c.doNotTrack }

// Domains returns a copy of the hostnames tracking is restricted to.
func (c Config) Domains() []string { return slices.Clone(c.domains) }

// Tag returns the initial event tag.
func (c Config) Tag() string { return c.tag }

// ExcludeSearch reports whether query strings are stripped from URLs.
func (c Config) ExcludeSearch() bool { return c.excludeSearch }

// ExcludeHash reports whether fragments are stripped from URLs.
func (c Config) ExcludeHash() bool { return c.excludeHash }

// EdgeRuntime reports whether script-edge.js is used.
func (c Config) EdgeRuntime() bool { return c.edgeRuntime }

// BeforeSend returns the payload transform, or nil.
func (c Config) BeforeSend() BeforeSendFunc { return c.beforeSend }

// PollInterval returns the bridge polling interval.
func (c Config) PollInterval() time.Duration { return c.pollInterval }

// Timeout returns the per-request collector timeout.
func (c Config) Timeout() time.Duration { return c.timeout }

// Development reports whether developer diagnostics are enabled.
func (c Config) Development() bool { return c.development }

// Logger returns the configured logger.
func (c Config) Logger() *slog.Logger { return c.logger }

// Equal reports whether c and o would produce the same script element.
// Callbacks and the logger are not compared.
func (c Config) Equal(o Config) bool {
	return c.websiteID == o.websiteID &&
		c.host == o.host &&
		c.autoTrack == o.autoTrack &&
		c.doNotTrack == o.doNotTrack &&
		slices.Equal(c.domains, o.domains) &&
		c.tag == o.tag &&
		c.excludeSearch == o.excludeSearch &&
		c.excludeHash == o.excludeHash &&
		c.edgeRuntime == o.edgeRuntime
}

// ResolveConfig merges explicit options with environment-derived defaults.
//
// Website ID and host come from options first, then from [WebsiteIDEnvVars]
// and [HostEnvVars], and the host finally falls back to [DefaultHost].
//
// When no website ID can be found, the returned Config is still fully
// populated and the error is [ErrMissingWebsiteID]. Any other error means an
// option was invalid.
func ResolveConfig(opts ...Option) (Config, error) {
	cfg, _, err := resolve(opts)
	return cfg, err
}

func resolve(opts []Option) (Config, *options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return Config{}, nil, err
		}
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Config{
		autoTrack:     o.autoTrack,
		doNotTrack:    o.doNotTrack,
		domains:       slices.Clone(o.domains),
		tag:           o.tag,
		excludeSearch: o.excludeSearch,
		excludeHash:   o.excludeHash,
		edgeRuntime:   o.edgeRuntime,
		beforeSend:    o.beforeSend,
		pollInterval:  o.pollInterval,
		timeout:       o.timeout,
		development:   o.development,
		logger:        logger,
	}

	switch {
	case o.host != nil:
		cfg.host = *o.host
	default:
		cfg.host = DefaultHost
		if v, ok := firstEnv(o.lookupEnv, HostEnvVars); ok {
			host, err := normalizeHost(v)
			if err != nil {
				return Config{}, nil, errors.New("host from environment: " + err.Error())
			}
			cfg.host = host
		}
	}

	if o.websiteID != nil {
		cfg.websiteID = *o.websiteID
	} else if v, ok := firstEnv(o.lookupEnv, WebsiteIDEnvVars); ok {
		cfg.websiteID = v
	}

	if cfg.websiteID == "" {
		return cfg, o, ErrMissingWebsiteID
	}
	return cfg, o, nil
}

// firstEnv returns the first non-empty value among names.
func firstEnv(lookup func(string) (string, bool), names []string) (string, bool) {
	for _, name := range names {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
