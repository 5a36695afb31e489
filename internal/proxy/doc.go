// Package proxy implements the guarded gateway in front of a single upstream
// API. Every request is mapped to a logical query key and forwarded through a
// query.Executor, so a query that keeps failing upstream is answered locally
// with 503 until its block window elapses. Upstream health is polled in the
// background and response times are tracked as an EWMA.
package proxy
