// Package metrics collects guard and gateway metrics.
//
// It uses a channel-based event pipeline fed by two producers:
//   - the guard, through the Collector's guard.Observer implementation
//   - the gateway handler, which reports each completed upstream response
//
// The collector runs in a dedicated goroutine. Producers never block: when the
// buffer is full the event is dropped and counted. Every processed event is
// also mirrored into Prometheus collectors served on /metrics, while Snapshot
// and Handler expose a JSON view for the admin API.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//	g := guard.New(guard.WithObserver(collector))
//
//	snapshot := collector.Snapshot()
//
// Shutdown drains pending events before the goroutine exits.
package metrics
