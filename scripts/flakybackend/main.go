// flakybackend is a test upstream for the gateway. Any request carrying
// fail=1 in its query string answers 500, everything else returns a JSON
// report with a fresh UUID.
//
// Usage:
//
//	go run ./scripts/flakybackend -port 8081
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

type Report struct {
	ID          string            `json:"id"`
	Path        string            `json:"path"`
	Filters     map[string]string `json:"filters"`
	GeneratedAt time.Time         `json:"generated_at"`
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	latency := flag.Duration("latency", 0, "artificial delay added to every response")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(*latency)

		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("query", r.URL.RawQuery),
			slog.String("request_id", r.Header.Get("X-Request-ID")))

		if r.URL.Query().Get("fail") == "1" {
			http.Error(w, `{"error":"report generation failed"}`, http.StatusInternalServerError)
			return
		}

		filters := make(map[string]string)
		for name := range r.URL.Query() {
			filters[name] = r.URL.Query().Get(name)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Report{
			ID:          uuid.NewString(),
			Path:        r.URL.Path,
			Filters:     filters,
			GeneratedAt: time.Now().UTC(),
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("starting flaky backend", slog.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
