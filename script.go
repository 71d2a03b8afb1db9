package trackbridge

import (
	"errors"
	"html/template"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jpalmerr/trackbridge/internal/dom"
)

// ScriptID is the reserved id of the injected script element. At most one
// element with this id is kept in a document.
const ScriptID = "umami-script"

// ScriptSrc returns the tracking script URL for cfg.
func ScriptSrc(cfg Config) string {
	if cfg.EdgeRuntime() {
		return cfg.Host() + "/script-edge.js"
	}
	return cfg.Host() + "/script.js"
}

// ScriptAttributes returns the attributes of the script element in render
// order. Flags at their defaults are omitted.
func ScriptAttributes(cfg Config) []html.Attribute {
	attrs := []html.Attribute{
		{Key: "id", Val: ScriptID},
		{Key: "defer"},
		{Key: "src", Val: ScriptSrc(cfg)},
		{Key: "data-website-id", Val: cfg.WebsiteID()},
	}
	if !cfg.AutoTrack() {
		attrs = append(attrs, html.Attribute{Key: "data-auto-track", Val: "false"})
	}
	if cfg.DoNotTrack() {
		attrs = append(attrs, html.Attribute{Key: "data-do-not-track", Val: "true"})
	}
	if domains := cfg.Domains(); len(domains) > 0 {
		attrs = append(attrs, html.Attribute{Key: "data-domains", Val: strings.Join(domains, ",")})
	}
	if cfg.Tag() != "" {
		attrs = append(attrs, html.Attribute{Key: "data-tag", Val: cfg.Tag()})
	}
	if cfg.ExcludeSearch() {
		attrs = append(attrs, html.Attribute{Key: "data-exclude-search", Val: strconv.FormatBool(true)})
	}
	if cfg.ExcludeHash() {
		attrs = append(attrs, html.Attribute{Key: "data-exclude-hash", Val: strconv.FormatBool(true)})
	}
	return attrs
}

// ScriptTag renders the script element for use in html/template layouts.
// It returns an empty string when cfg has no website ID.
//
//	<head>
//	  {{ .Analytics }}
//	</head>
func ScriptTag(cfg Config) template.HTML {
	if cfg.WebsiteID() == "" {
		return ""
	}
	// attribute values are escaped by the renderer
	return template.HTML(dom.RenderString(newScriptNode(cfg)))
}

// InjectScript appends the script element to the document's <head>.
//
// If an element with [ScriptID] already exists anywhere in the document, it
// is left untouched and InjectScript returns false. Returns
// [ErrMissingWebsiteID] if cfg has no website ID.
func InjectScript(doc *html.Node, cfg Config) (bool, error) {
	if cfg.WebsiteID() == "" {
		return false, ErrMissingWebsiteID
	}
	if doc == nil {
		return false, errors.New("document cannot be nil")
	}
	if dom.FindByID(doc, ScriptID) != nil {
		return false, nil
	}
	head := dom.Head(doc)
	if head == nil {
		return false, errors.New("document has no <head> element")
	}
	head.AppendChild(newScriptNode(cfg))
	return true, nil
}

// RemoveScript removes the element with [ScriptID] from doc. It reports
// whether an element was removed; calling it on a document without the
// element is a no-op.
func RemoveScript(doc *html.Node) bool {
	n := dom.FindByID(doc, ScriptID)
	if n == nil {
		return false
	}
	dom.Detach(n)
	return true
}

func newScriptNode(cfg Config) *html.Node {
	return dom.NewElement(atom.Script, ScriptAttributes(cfg))
}
