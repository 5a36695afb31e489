package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/querygate/internal/admin"
	"github.com/angeloszaimis/querygate/internal/guard"
	"github.com/angeloszaimis/querygate/internal/metrics"
	"github.com/angeloszaimis/querygate/internal/proxy"
)

func setupGatewayRouter(gatewayHandler *proxy.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", gatewayHandler)
	return mux
}

func setupAdminRouter(g *guard.Guard, upstream *proxy.Upstream, metricsCollector *metrics.Collector, logger *slog.Logger) http.Handler {
	return admin.NewRouter(g, upstream, metricsCollector.Handler(), logger)
}
