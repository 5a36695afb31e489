package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/querygate/internal/guard"
)

// HealthReporter reports whether the upstream currently passes health checks.
type HealthReporter interface {
	IsHealthy() bool
}

type KeysResponse struct {
	Count int            `json:"count"`
	Keys  []guard.Status `json:"keys"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	UpstreamHealthy bool   `json:"upstream_healthy"`
	TrackedKeys     int    `json:"tracked_keys"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type handlers struct {
	guard    *guard.Guard
	upstream HealthReporter
	logger   *slog.Logger
}

// NewRouter builds the admin API. stats may be nil, in which case /stats is
// not mounted.
func NewRouter(g *guard.Guard, upstream HealthReporter, stats http.Handler, logger *slog.Logger) *chi.Mux {
	h := &handlers{guard: g, upstream: upstream, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "the requested resource was not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed", Message: "the requested method is not allowed for this resource"})
	})

	r.Get("/healthz", h.health)

	r.Route("/guard/keys", func(r chi.Router) {
		r.Get("/", h.listKeys)
		r.Delete("/", h.resetKeys)
		r.Get("/{key}", h.getKey)
		r.Delete("/{key}", h.forgetKey)
	})

	if stats != nil {
		r.Method(http.MethodGet, "/stats", stats)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:          "ok",
		UpstreamHealthy: true,
		TrackedKeys:     h.guard.Len(),
	}
	if h.upstream != nil {
		resp.UpstreamHealthy = h.upstream.IsHealthy()
	}
	if !resp.UpstreamHealthy {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) listKeys(w http.ResponseWriter, _ *http.Request) {
	stats := h.guard.Stats()
	writeJSON(w, http.StatusOK, KeysResponse{Count: len(stats), Keys: stats})
}

func (h *handlers) resetKeys(w http.ResponseWriter, r *http.Request) {
	cleared := h.guard.Len()
	h.guard.Reset()

	h.logger.Warn("Guard table reset",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Int("cleared", cleared))

	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getKey(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)

	status, ok := h.guard.Lookup(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "key is not tracked"})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) forgetKey(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)

	if !h.guard.Forget(key) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "key is not tracked"})
		return
	}

	h.logger.Info("Guard key forgotten",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("key", key))

	w.WriteHeader(http.StatusNoContent)
}

// keyParam returns the canonical key from the path. Keys usually contain
// slashes, so clients escape them and the raw segment is unescaped here.
func keyParam(r *http.Request) string {
	raw := chi.URLParam(r, "key")
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("Admin request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
