// Package httpserver wraps http.Server with address validation, configurable
// timeouts and graceful shutdown. The gateway and the admin API each run one.
package httpserver
