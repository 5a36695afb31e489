package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const DefaultHealthPath = "/health"

// HealthCheck polls the upstream's health endpoint every interval until ctx is
// cancelled. Any status other than 200 OK, or a transport error, marks the
// upstream unhealthy.
func HealthCheck(
	ctx context.Context,
	upstream *Upstream,
	interval time.Duration,
	logger *slog.Logger,
) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthURL := upstream.URL().ResolveReference(&url.URL{Path: DefaultHealthPath})

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health check stopped",
				slog.String("upstream", upstream.URL().String()))
			return

		case <-ticker.C:
			healthy := probe(ctx, client, healthURL.String())

			if upstream.SetHealthy(healthy) {
				if healthy {
					logger.Info("Upstream is back up",
						slog.String("upstream", upstream.URL().String()))
				} else {
					logger.Warn("Upstream is down",
						slog.String("upstream", upstream.URL().String()))
				}
			}
		}
	}
}

func probe(ctx context.Context, client *http.Client, target string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}

	res, err := client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK
}
