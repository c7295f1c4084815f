package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watermetergateway/exporter/internal/instrument"
	"github.com/watermetergateway/exporter/internal/store"
)

const landingPage = `<html>
<head><title>Watermeter Exporter</title></head>
<body>
<h1>Watermeter Exporter</h1>
<p><a href="/metrics">Metrics</a></p>
<p><a href="/api/v1/health">Health</a></p>
</body>
</html>
`

// Handler serves the metrics endpoint and the JSON status API.
type Handler struct {
	store  *store.Store
	router chi.Router
}

// New creates a Handler exposing reg and reading poll state from st.
func New(reg *instrument.Registry, st *store.Store) http.Handler {
	h := &Handler{store: st, router: chi.NewRouter()}

	h.router.Use(middleware.Recoverer)
	h.router.Get("/", h.index)
	h.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	h.router.Get("/api/v1/health", h.health)
	h.router.Get("/api/v1/reading", h.reading)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(landingPage))
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	st := h.store.Status()
	resp := HealthResponse{
		State:               stateOf(st),
		Polls:               st.Polls,
		ConsecutiveFailures: st.ConsecutiveFailures,
		UptimePct:           st.UptimePct,
		LastSuccess:         formatTime(st.LastSuccess),
		LastError:           st.LastError,
		LastErrorAt:         formatTime(st.LastErrorAt),
	}
	jsonResp(w, http.StatusOK, resp)
}

// reading returns GET /api/v1/reading — the last good gateway response.
func (h *Handler) reading(w http.ResponseWriter, _ *http.Request) {
	e, ok := h.store.Last()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no successful poll yet")
		return
	}
	jsonResp(w, http.StatusOK, ReadingResponse{
		Fields:    e.Reading,
		FetchedAt: formatTime(e.UpdatedAt),
	})
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

// stateOf reports "unknown" before the first poll, then whether the most
// recent poll succeeded.
func stateOf(st store.Status) string {
	switch {
	case st.Polls == 0:
		return "unknown"
	case st.ConsecutiveFailures > 0:
		return "down"
	default:
		return "up"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
