// Package admin serves the operator API of a running gateway and provides the
// client used by the inspect command.
//
// Routes:
//
//	GET    /healthz           liveness and upstream health
//	GET    /guard/keys        status of every tracked query key
//	DELETE /guard/keys        forget every tracked key
//	GET    /guard/keys/{key}  status of one canonical key (path escaped)
//	DELETE /guard/keys/{key}  forget one key, unblocking it immediately
//	GET    /stats             JSON metrics snapshot
//	GET    /metrics           Prometheus exposition
package admin
