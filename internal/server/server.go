package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jpalmerr/trackbridge/dashboard"
	"github.com/jpalmerr/trackbridge/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// maxBodySize caps collector request bodies.
	maxBodySize = 1 << 20

	// sinkTimeout bounds each sink write.
	sinkTimeout = 2 * time.Second
)

//go:embed assets/script.js
var assets embed.FS

// Server accepts tracking requests, records them in a [store.Store] and
// copies them to any configured sinks.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	port       int
	websites   []string
	sinks      []store.Sink
	httpServer *http.Server
	logger     *slog.Logger
	now        func() time.Time
	stopped    chan struct{}
}

// NewServer creates a new collector [Server].
//
// Parameters:
//   - st: Store for received events
//   - port: TCP port to listen on
//   - websites: accepted website IDs; empty accepts any
//   - sinks: destinations every accepted event is copied to (may be nil)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, port int, websites []string, sinks []store.Sink, logger *slog.Logger) *Server {
	return &Server{
		store:    st,
		port:     port,
		websites: slices.Clone(websites),
		sinks:    sinks,
		logger:   logger,
		now:      time.Now,
		stopped:  make(chan struct{}),
	}
}

// Handler returns the collector's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.cors)
	r.Use(s.requestLog)

	r.Get("/", s.handleDashboard)
	r.Get("/script.js", s.handleScript)
	r.Get("/script-edge.js", s.handleScript)

	r.Route("/api", func(r chi.Router) {
		r.Post("/send", s.handleSend)
		r.Post("/collect/vitals", s.handleVitals)
		r.Post("/collect/forms", s.handleForms)
		r.Get("/events", s.handleEvents)
		r.Get("/sse", s.handleSSE)
	})
	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// all request contexts derive from ctx so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		defer close(s.stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Stopped returns a channel closed once a started server has shut down.
func (s *Server) Stopped() <-chan struct{} {
	return s.stopped
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"request_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	content, err := dashboard.Assets.ReadFile("assets/index.html")
	if err != nil {
		http.Error(w, "dashboard not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(content); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	content, err := assets.ReadFile("assets/script.js")
	if err != nil {
		http.Error(w, "script not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(content); err != nil {
		s.logger.Error("failed to write script response", "error", err)
	}
}

// sendRequest mirrors the body the tracker posts to /api/send.
type sendRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type sendPayload struct {
	Website string `json:"website"`
	Name    string `json:"name"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Type != store.KindEvent && req.Type != store.KindIdentify {
		writeError(w, http.StatusBadRequest, "type must be event or identify")
		return
	}

	var payload sendPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if !s.checkWebsite(w, payload.Website) {
		return
	}

	s.record(r.Context(), w, req.Type, payload.Website, payload.Name, req.Payload)
}

type vitalsRequest struct {
	Website string `json:"website"`
	Metric  string `json:"metric"`
}

func (s *Server) handleVitals(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !s.decode(w, r, &raw) {
		return
	}
	var req vitalsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Metric == "" {
		writeError(w, http.StatusBadRequest, "metric is required")
		return
	}
	if !s.checkWebsite(w, req.Website) {
		return
	}

	s.record(r.Context(), w, store.KindVitals, req.Website, req.Metric, raw)
}

type formsRequest struct {
	Website   string `json:"website"`
	FormID    string `json:"formId"`
	EventType string `json:"eventType"`
}

func (s *Server) handleForms(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !s.decode(w, r, &raw) {
		return
	}
	var req formsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "eventType is required")
		return
	}
	if !s.checkWebsite(w, req.Website) {
		return
	}

	s.record(r.Context(), w, store.KindForms, req.Website, req.EventType, raw)
}

// handleEvents returns recorded events, optionally filtered by ?kind= and
// ?website=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	website := r.URL.Query().Get("website")

	events := s.store.List(kind)
	if website != "" {
		filtered := make([]store.Event, 0, len(events))
		for _, e := range events {
			if e.Website == website {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  len(events),
	})
}

// handleSSE streams recorded events via Server-Sent Events, starting with
// the events already stored.
//
// Writes carry a deadline so a stalled client cannot pin the handler past
// context cancellation.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	kind := r.URL.Query().Get("kind")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, e := range s.store.List(kind) {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if kind != "" && e.Kind != kind {
				continue
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// decode reads a JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// checkWebsite answers 400 for a missing website ID and 403 for one outside
// the allow-list.
func (s *Server) checkWebsite(w http.ResponseWriter, website string) bool {
	if website == "" {
		writeError(w, http.StatusBadRequest, "website is required")
		return false
	}
	if len(s.websites) > 0 && !slices.Contains(s.websites, website) {
		writeError(w, http.StatusForbidden, "unknown website")
		return false
	}
	return true
}

// record stores the event, copies it to the sinks and answers 200 with the
// event ID. Sink failures are logged and do not fail the request.
func (s *Server) record(ctx context.Context, w http.ResponseWriter, kind, website, name string, payload json.RawMessage) {
	event := store.Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Website:    website,
		Name:       name,
		Payload:    payload,
		ReceivedAt: s.now().UTC(),
	}
	s.store.Add(event)

	for _, sink := range s.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := sink.Write(sinkCtx, event); err != nil {
			s.logger.Warn("sink write failed",
				"event_id", event.ID,
				"kind", kind,
				"error", err.Error(),
			)
		}
		cancel()
	}

	s.logger.Info("event received", "kind", kind, "website", website, "name", name)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": event.ID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
