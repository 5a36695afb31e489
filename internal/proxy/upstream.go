package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"
)

// Upstream is the API the gateway forwards to, with its health status and
// response time tracking.
type Upstream struct {
	url              *url.URL
	proxy            *httputil.ReverseProxy
	mutex            sync.Mutex
	isHealthy        bool
	ewmaResponseTime time.Duration
	hasEWMA          bool
}

const ewmaAlpha = 0.2

// NewUpstream creates an Upstream for target. It starts healthy. Transport
// errors are logged and answered with 502 Bad Gateway.
func NewUpstream(target *url.URL, logger *slog.Logger) *Upstream {
	u := &Upstream{
		url:       target,
		proxy:     httputil.NewSingleHostReverseProxy(target),
		isHealthy: true,
	}

	u.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("Upstream round trip failed",
			slog.String("upstream", target.String()),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))

		writeJSONError(w, http.StatusBadGateway, "bad_gateway", "upstream request failed")
	}

	return u
}

func (u *Upstream) ReverseProxy() *httputil.ReverseProxy {
	return u.proxy
}

func (u *Upstream) URL() *url.URL {
	return u.url
}

func (u *Upstream) IsHealthy() bool {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.isHealthy
}

// SetHealthy updates the health status and reports whether it changed.
func (u *Upstream) SetHealthy(healthy bool) (changed bool) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if u.isHealthy == healthy {
		return false
	}

	u.isHealthy = healthy
	return true
}

// RecordResponse folds duration into the EWMA response time.
func (u *Upstream) RecordResponse(duration time.Duration) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		u.ewmaResponseTime = duration
		u.hasEWMA = true
		return
	}
	// ewma = (1 - α) * ewma + α * latest
	u.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(u.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns 0 until the first response is recorded.
func (u *Upstream) EWMATime() time.Duration {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.ewmaResponseTime
}

type errorBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}
