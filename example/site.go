package main

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jpalmerr/trackbridge"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>trackbridge demo</title></head>
<body>
  <h1>Pricing</h1>
  {{.Button}}
  <p>Read the {{.Docs}}.</p>
  <form method="post" action="/signup">
    <input name="email" placeholder="you@example.com">
    <button type="submit">Sign up</button>
  </form>
</body>
</html>`))

type site struct {
	provider *trackbridge.Provider
	logger   *slog.Logger
}

func newSite(p *trackbridge.Provider, logger *slog.Logger) *site {
	return &site{provider: p, logger: logger}
}

func (s *site) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.Handle("GET /out", s.provider.OutboundHandler("", nil, "umami.is"))
	return mux
}

// handleHome renders a page; the provider middleware adds the script.
func (s *site) handleHome(w http.ResponseWriter, r *http.Request) {
	a := trackbridge.FromContext(r.Context())
	a.TrackPageView(r.URL.String(), r.Referer())

	button := &html.Node{Type: html.ElementNode, Data: "button", DataAtom: atom.Button}
	button.AppendChild(&html.Node{Type: html.TextNode, Data: "Choose Pro"})
	trackbridge.TrackClick(button, "choose-plan", trackbridge.EventData{"plan": "pro", "seats": 3}, s.logger)

	var buf bytes.Buffer
	if err := html.Render(&buf, button); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := pageTmpl.Execute(w, map[string]template.HTML{
		"Button": template.HTML(buf.String()),
		"Docs":   trackbridge.OutboundLink("/out?url=https://umami.is/docs", "Umami docs", "", nil),
	})
	if err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}

func (s *site) handleSignup(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	a := trackbridge.FromContext(r.Context())
	a.Track("signup", trackbridge.EventData{"email": email, "source": "pricing"})
	a.Identify(trackbridge.EventData{"plan": "pro"})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
