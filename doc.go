// Package trackbridge connects Go web applications to an Umami analytics
// collector.
//
// It injects the collector's tracking script into HTML pages, hands
// application code a small dispatch API for events, page views, revenue and
// identify calls, and posts web-vitals and form-interaction measurements
// straight to the collector.
//
// # Quick Start
//
// Create a [Provider] and wrap the site's handler with its middleware:
//
//	p, err := trackbridge.NewProvider(
//	    trackbridge.WithWebsiteID("3f1c9f0e-1111-4c2a-9a55-7c4f0e9a1b2c"),
//	    trackbridge.WithHost("https://analytics.example.com"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", p.Middleware(site))
//
// Handlers reach the dispatch API through the request context:
//
//	func signup(w http.ResponseWriter, r *http.Request) {
//	    trackbridge.FromContext(r.Context()).Track("signup", trackbridge.EventData{"plan": "pro"})
//	}
//
// # Configuration
//
// Options override the environment. Without [WithWebsiteID], the website ID
// is read from UMAMI_WEBSITE_ID or NEXT_PUBLIC_UMAMI_WEBSITE_ID; without
// [WithHost], the host comes from UMAMI_HOST or NEXT_PUBLIC_UMAMI_HOST and
// falls back to [DefaultHost]. A Provider with no website ID is disabled: it
// injects nothing and drops every call.
//
// The config package reads the same settings from YAML.
//
// # Delivery
//
// Dispatches go through a [Bridge] that waits for a [Tracker] to be
// installed, which happens once the tracking script has loaded. Calls made
// before that are held, not dropped. Delivery is fire-and-forget: there is
// no queueing across restarts, no batching and no retry.
//
// [VitalsTracker] and [FormTracker] bypass the bridge and post directly to
// the collector.
//
// # Architecture
//
// trackbridge consists of several internal packages (under internal/):
//
//   - internal/dom: HTML parsing, lookup and rendering helpers
//   - internal/poller: readiness polling and the pooled HTTP client
//   - internal/store: event storage with pub/sub, plus SQLite and Kafka sinks
//   - internal/server: the development collector
//   - dashboard: the collector's embedded event viewer
//
// The internal packages are not part of the public API and may change
// without notice.
package trackbridge
