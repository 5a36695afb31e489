package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/querygate/internal/guard"
)

const EventResponseCompleted = "response_completed"

type MetricEvent struct {
	Type       string
	Timestamp  time.Time
	Key        string
	Duration   time.Duration
	StatusCode int
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Observe implements guard.Observer.
func (c *Collector) Observe(e guard.Event) {
	c.Emit(MetricEvent{
		Type:      string(e.Type),
		Timestamp: e.At,
		Key:       e.Key,
	})
}

// RecordResponse reports a completed upstream round trip.
func (c *Collector) RecordResponse(key string, duration time.Duration, statusCode int) {
	c.Emit(MetricEvent{
		Type:       EventResponseCompleted,
		Timestamp:  time.Now(),
		Key:        key,
		Duration:   duration,
		StatusCode: statusCode,
	})
}

// Emit queues an event without blocking.
func (c *Collector) Emit(event MetricEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		droppedEvents.Inc()
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Duration, event.StatusCode)
		observeResponse(event.Duration, event.StatusCode)
	default:
		c.metrics.IncrementEvent(event.Type)
		guardEvents.WithLabelValues(event.Type).Inc()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	snap := c.metrics.Snapshot()
	snap.DroppedEvents = c.dropped.Load()
	return snap
}
