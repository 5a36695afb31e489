package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// guardEvents counts guard transitions and decisions by event type
	guardEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_guard_events_total",
			Help: "Total number of guard events",
		},
		[]string{"event"},
	)

	// upstreamResponses counts completed upstream round trips by status code
	upstreamResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_upstream_responses_total",
			Help: "Total number of upstream responses",
		},
		[]string{"code"},
	)

	upstreamLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querygate_upstream_latency_seconds",
			Help:    "Upstream round trip latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	droppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "querygate_metric_events_dropped_total",
			Help: "Metric events dropped because the collector buffer was full",
		},
	)
)

func observeResponse(duration time.Duration, statusCode int) {
	upstreamResponses.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	upstreamLatency.Observe(duration.Seconds())
}

// RegisterTableSize exposes the number of tracked guard keys as a gauge read
// from size on every scrape. Registering twice is a no-op.
func RegisterTableSize(reg prometheus.Registerer, size func() int) error {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "querygate_guard_tracked_keys",
			Help: "Number of keys currently tracked by the guard",
		},
		func() float64 { return float64(size()) },
	)

	if err := reg.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}

	return nil
}
