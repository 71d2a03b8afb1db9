package trackbridge

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jpalmerr/trackbridge/internal/dom"
)

// Attribute names the tracking script binds click events to.
const (
	EventAttr       = "data-umami-event"
	EventAttrPrefix = "data-umami-event-"
)

// TrackClick marks n so that the tracking script dispatches event with data
// when n is clicked. Existing attributes, including click handlers, are kept
// and keep running.
//
// data keys become data-umami-event-<key> attributes in sorted order. String
// values are used as-is; other values are JSON encoded. Keys are lowercased,
// so keys that differ only in case share one attribute: the key sorting last
// wins and a warning is logged.
//
// If n is not an element, it is returned unchanged and a warning is logged.
// A nil logger uses slog.Default.
func TrackClick(n *html.Node, event string, data EventData, logger *slog.Logger) *html.Node {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil || n.Type != html.ElementNode {
		logger.Warn("click tracking needs an element", "event", event)
		return n
	}

	dom.SetAttr(n, EventAttr, event)
	seen := make(map[string]string, len(data))
	for _, key := range sortedKeys(data) {
		val, err := attrValue(data[key])
		if err != nil {
			logger.Warn("skipping event data value", "event", event, "key", key, "error", err.Error())
			continue
		}
		lower := strings.ToLower(key)
		if prev, ok := seen[lower]; ok {
			logger.Warn("event data keys collide after lowercasing",
				"event", event, "key", key, "replaces", prev)
		}
		seen[lower] = key
		dom.SetAttr(n, EventAttrPrefix+lower, val)
	}
	return n
}

// OutboundLink renders an anchor to href that reports a click as event, with
// href added to its data as "url". An empty event uses
// [OutboundLinkDefaultEvent]. text is escaped.
//
// href must be relative or use the http or https scheme. Any other href,
// such as a javascript: URL, is rendered as "#" without a "url" value and a
// warning is logged.
func OutboundLink(href, text, event string, data EventData) template.HTML {
	if event == "" {
		event = OutboundLinkDefaultEvent
	}
	merged := data.clone()
	if safeHref(href) {
		merged["url"] = href
	} else {
		slog.Default().Warn("rejecting outbound link with unsafe href", "event", event)
		href = "#"
	}

	a := dom.NewElement(atom.A, []html.Attribute{{Key: "href", Val: href}})
	a.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	TrackClick(a, event, merged, nil)

	// attribute values and text are escaped by the renderer
	return template.HTML(dom.RenderString(a))
}

// safeHref reports whether href is relative or an http or https URL.
func safeHref(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https":
		return true
	}
	return false
}

func sortedKeys(data EventData) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func attrValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
