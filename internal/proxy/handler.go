package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/querygate/internal/guard"
	"github.com/angeloszaimis/querygate/internal/query"
)

const RequestIDHeader = "X-Request-ID"

// ResponseRecorder receives the outcome of every forwarded request.
type ResponseRecorder interface {
	RecordResponse(key string, duration time.Duration, statusCode int)
}

// UpstreamError reports a server-side failure of the upstream.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.StatusCode)
}

type Handler struct {
	logger   *slog.Logger
	upstream *Upstream
	executor *query.Executor
	recorder ResponseRecorder
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func NewHandler(logger *slog.Logger, upstream *Upstream, executor *query.Executor, recorder ResponseRecorder) *Handler {
	return &Handler{
		logger:   logger,
		upstream: upstream,
		executor: executor,
		recorder: recorder,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		r.Header.Set(RequestIDHeader, requestID)
	}
	w.Header().Set(RequestIDHeader, requestID)

	key := RequestKey(r)
	canonical, err := guard.Canonicalize(key)
	if err != nil {
		h.logger.Error("Unable to derive query key",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		writeJSONError(w, http.StatusBadRequest, "bad_request", "unable to derive query key")
		return
	}

	logger := h.logger.With(
		slog.String("request_id", requestID),
		slog.String("key", canonical))

	logger.Debug("Received request",
		slog.String("from", extractClientIP(r)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("user_agent", r.UserAgent()))

	if !h.upstream.IsHealthy() {
		logger.Warn("Upstream unhealthy, refusing request")
		writeJSONError(w, http.StatusServiceUnavailable, "upstream_unavailable", "upstream is unhealthy")
		return
	}

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	start := time.Now()

	err = h.executor.Do(r.Context(), key, func(ctx context.Context) error {
		h.upstream.ReverseProxy().ServeHTTP(wrapped, r.WithContext(ctx))

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if wrapped.statusCode >= http.StatusInternalServerError {
			return &UpstreamError{StatusCode: wrapped.statusCode}
		}
		return nil
	})

	var unavailable *query.UnavailableError
	if errors.As(err, &unavailable) {
		logger.Info("Query temporarily blocked",
			slog.Int("retry_after_seconds", unavailable.RetrySeconds()))
		writeUnavailable(w, unavailable)
		return
	}

	duration := time.Since(start)
	h.upstream.RecordResponse(duration)
	if h.recorder != nil {
		h.recorder.RecordResponse(canonical, duration, wrapped.statusCode)
	}

	logger.Info("Forwarded request",
		slog.Int("status", wrapped.statusCode),
		slog.Duration("duration", duration))
}

func writeUnavailable(w http.ResponseWriter, err *query.UnavailableError) {
	secs := err.RetrySeconds()
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusServiceUnavailable, errorBody{
		Error:             "temporarily_unavailable",
		Message:           err.Error(),
		RetryAfterSeconds: secs,
	})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
