package trackbridge

import (
	"bytes"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/jpalmerr/trackbridge/internal/dom"
)

// OutboundLinkDefaultEvent is the event name used by [OutboundLink] and
// [Provider.OutboundHandler] when none is given.
const OutboundLinkDefaultEvent = "outbound_link"

// Middleware stores the Provider's [Analytics] in every request context and
// injects the tracking script into HTML responses.
//
// The choice is made when the handler first writes a header or body. HTML
// responses without a Content-Encoding are buffered in full, parsed, given the
// script element if they have none, and re-rendered. Everything else streams
// straight through, keeping [http.Flusher] working, and the underlying writer
// stays reachable for [http.ResponseController]. All responses of a disabled
// Provider pass through untouched apart from the context value.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(NewContext(r.Context(), p.Analytics()))
		if !p.Enabled() || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		iw := &injectingResponse{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(iw, r)
		iw.finish(p)
	})
}

// injectingResponse holds HTML bodies back until the handler returns and
// passes everything else through.
type injectingResponse struct {
	http.ResponseWriter
	decided   bool
	buffering bool
	status    int
	buf       bytes.Buffer
}

// decide picks buffering or pass-through from the headers set so far.
func (w *injectingResponse) decide() {
	if w.decided {
		return
	}
	w.decided = true
	h := w.Header()
	w.buffering = isHTML(h) && h.Get("Content-Encoding") == ""
}

func (w *injectingResponse) WriteHeader(status int) {
	if w.decided {
		if !w.buffering {
			// let net/http report the superfluous call
			w.ResponseWriter.WriteHeader(status)
		}
		return
	}
	w.decide()
	if w.buffering {
		w.status = status
		return
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *injectingResponse) Write(p []byte) (int, error) {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	if w.buffering {
		return w.buf.Write(p)
	}
	return w.ResponseWriter.Write(p)
}

// Flush sends buffered data to the client when passing through. Buffered
// HTML is only written once the handler returns.
func (w *injectingResponse) Flush() {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	if w.buffering {
		return
	}
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *injectingResponse) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *injectingResponse) finish(p *Provider) {
	if !w.buffering {
		return
	}
	body := w.buf.Bytes()
	if out, ok := injectHTML(p, body); ok {
		body = out
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.ResponseWriter.WriteHeader(w.status)
	if _, err := w.ResponseWriter.Write(body); err != nil {
		p.logger.Debug("failed to write response", "error", err.Error())
	}
}

// injectHTML returns body with the script element added. ok is false when
// nothing changed.
func injectHTML(p *Provider, body []byte) ([]byte, bool) {
	doc, err := dom.Parse(bytes.NewReader(body))
	if err != nil {
		p.logger.Warn("failed to parse HTML response", "error", err.Error())
		return nil, false
	}
	injected, err := InjectScript(doc, p.Config())
	if err != nil {
		p.logger.Warn("failed to inject tracking script", "error", err.Error())
		return nil, false
	}
	if !injected {
		return nil, false
	}
	var out bytes.Buffer
	if err := dom.Render(&out, doc); err != nil {
		p.logger.Warn("failed to render HTML response", "error", err.Error())
		return nil, false
	}
	return out.Bytes(), true
}

func isHTML(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mediaType == "text/html"
}

// OutboundHandler records a click on an outbound link and then hands over to
// next, or redirects to the target when next is nil.
//
// The target is read from the "url" query parameter and must be an absolute
// http or https URL; anything else is answered with 400. The event is
// dispatched with the target merged into its data as "url". An empty event
// uses [OutboundLinkDefaultEvent].
//
// Without hosts, any absolute http or https target is accepted, which makes
// the redirect an open redirect. Pass the lowercase hostnames links may point
// at, for example the site's [Config.Domains] plus known partners, to answer
// any other target with 400.
func (p *Provider) OutboundHandler(event string, next http.Handler, hosts ...string) http.Handler {
	if event == "" {
		event = OutboundLinkDefaultEvent
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		u, err := url.Parse(target)
		if target == "" || err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			http.Error(w, "missing or invalid url parameter", http.StatusBadRequest)
			return
		}
		if len(hosts) > 0 && !slices.Contains(hosts, strings.ToLower(u.Hostname())) {
			p.logger.Warn("rejecting outbound target", "host", u.Hostname())
			http.Error(w, "url host not allowed", http.StatusBadRequest)
			return
		}

		p.Analytics().Track(event, EventData{"url": target})

		if next != nil {
			next.ServeHTTP(w, r)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	})
}
