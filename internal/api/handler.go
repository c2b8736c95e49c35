package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/obsidianstack/confwatch/internal/config"
	"github.com/obsidianstack/confwatch/internal/history"
	"github.com/obsidianstack/confwatch/internal/metrics"
	"github.com/obsidianstack/confwatch/internal/watcher"
)

// StatusSource exposes the watcher state.
type StatusSource interface {
	Status() watcher.Status
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func() watcher.Status

// Status calls f.
func (f StatusFunc) Status() watcher.Status { return f() }

// EventSource exposes recent events.
type EventSource interface {
	List() []history.Entry
}

// SummarySource exposes metric totals.
type SummarySource interface {
	Summary() (metrics.Summary, error)
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	status  StatusSource
	events  EventSource
	summary SummarySource
	mux     *http.ServeMux
}

// New creates a Handler and registers all routes. events and summary may be
// nil, in which case their routes answer 404.
func New(status StatusSource, events EventSource, summary SummarySource) http.Handler {
	h := &Handler{status: status, events: events, summary: summary, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/config", h.config)
	h.mux.HandleFunc("/api/v1/events", h.listEvents)
	h.mux.HandleFunc("/api/v1/metrics/summary", h.metricsSummary)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — 200 once a config is retained, 503
// while uninitialized.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := BuildStatus(h.status)
	code := http.StatusOK
	if !resp.HasConfig {
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, resp)
}

// config returns GET /api/v1/config — the retained config. ?format=yaml or
// ?format=toml renders it in that encoding instead of the JSON envelope.
func (h *Handler) config(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := h.status.Status()
	cfg := st.State.Config()
	if cfg == nil {
		jsonErr(w, http.StatusNotFound, "no valid configuration loaded")
		return
	}

	switch f := config.Format(r.URL.Query().Get("format")); f {
	case "", config.FormatJSON:
		jsonResp(w, http.StatusOK, ConfigResponse{Phase: st.State.Phase().String(), Config: cfg})
	case config.FormatYAML, config.FormatTOML:
		data, err := config.Encode(cfg, f)
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/"+string(f))
		w.WriteHeader(http.StatusOK)
		w.Write(data) //nolint:errcheck
	default:
		jsonErr(w, http.StatusBadRequest, "format must be one of: json, yaml, toml")
	}
}

// listEvents returns GET /api/v1/events — recent events, oldest first.
// ?kind=reload_failed filters by event kind.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.events == nil {
		jsonErr(w, http.StatusNotFound, "event history disabled")
		return
	}

	kind := r.URL.Query().Get("kind")
	entries := h.events.List()
	out := make([]history.Entry, 0, len(entries))
	for _, e := range entries {
		if kind == "" || e.Event.Kind.String() == kind {
			out = append(out, e)
		}
	}
	jsonResp(w, http.StatusOK, EventsResponse{Events: out, Count: len(out)})
}

// metricsSummary returns GET /api/v1/metrics/summary — event totals by kind.
func (h *Handler) metricsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.summary == nil {
		jsonErr(w, http.StatusNotFound, "metrics disabled")
		return
	}
	s, err := h.summary.Summary()
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, s)
}

// BuildStatus assembles a StatusResponse from the current watcher state.
// It is shared by the health route and the WebSocket hub.
func BuildStatus(src StatusSource) StatusResponse {
	st := src.Status()
	resp := StatusResponse{
		Phase:       st.State.Phase().String(),
		Path:        st.Path,
		IntervalSec: st.Interval.Seconds(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if !st.LastModified.IsZero() {
		resp.LastModified = st.LastModified.UTC().Format(time.RFC3339Nano)
	}
	if !st.LastChecked.IsZero() {
		resp.LastChecked = st.LastChecked.UTC().Format(time.RFC3339Nano)
	}
	if cfg := st.State.Config(); cfg != nil {
		resp.HasConfig = true
		resp.AppName = cfg.AppName
		resp.Version = cfg.Version
		resp.Environment = cfg.Environment
	}
	if err := st.State.Err(); err != nil {
		resp.LastError = err.Error()
		var ce *config.Error
		if errors.As(err, &ce) {
			resp.LastError = ce.Detail()
			resp.ErrorKind = ce.Kind.String()
		}
	}
	return resp
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
