package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/angeloszaimis/querygate/config"
	"github.com/angeloszaimis/querygate/internal/guard"
	"github.com/angeloszaimis/querygate/internal/httpserver"
	"github.com/angeloszaimis/querygate/internal/metrics"
	"github.com/angeloszaimis/querygate/internal/proxy"
	"github.com/angeloszaimis/querygate/internal/query"
	"github.com/angeloszaimis/querygate/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway and its admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(cfg, log)
			if err != nil {
				log.Error("Failed to initialize gateway", slog.Any("err", err))
				return err
			}

			return a.run(ctx)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default searches ./config and .)")

	return cmd
}

type app struct {
	cfg       *config.Config
	log       *slog.Logger
	guard     *guard.Guard
	upstream  *proxy.Upstream
	collector *metrics.Collector
	gateway   *httpserver.Server
	admin     *httpserver.Server
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	target, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)
	g := guard.New(guardOptions(cfg, log, collector)...)

	if err := metrics.RegisterTableSize(prometheus.DefaultRegisterer, g.Len); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	upstream := proxy.NewUpstream(target, log)
	executor := query.NewExecutor(g, query.WithLogger(log))
	gatewayHandler := proxy.NewHandler(log, upstream, executor, collector)

	gateway, err := httpserver.New(cfg.Server.Address, setupGatewayRouter(gatewayHandler),
		httpserver.WithWriteTimeout(0))
	if err != nil {
		return nil, fmt.Errorf("create gateway server: %w", err)
	}

	adminSrv, err := httpserver.New(cfg.Admin.Address, setupAdminRouter(g, upstream, collector, log))
	if err != nil {
		return nil, fmt.Errorf("create admin server: %w", err)
	}

	return &app{
		cfg:       cfg,
		log:       log,
		guard:     g,
		upstream:  upstream,
		collector: collector,
		gateway:   gateway,
		admin:     adminSrv,
	}, nil
}

func guardOptions(cfg *config.Config, log *slog.Logger, observer guard.Observer) []guard.Option {
	return []guard.Option{
		guard.WithFailureThreshold(cfg.Guard.FailureThreshold),
		guard.WithBlockDuration(config.Duration(cfg.Guard.BlockDuration)),
		guard.WithMaxEntries(cfg.Guard.MaxEntries),
		guard.WithIdleTTL(config.Duration(cfg.Guard.IdleTTL)),
		guard.WithHalfOpenProbe(cfg.Guard.HalfOpenProbe),
		guard.WithLogger(log),
		guard.WithObserver(observer),
	}
}

// run binds both listeners, starts background workers and serves until ctx is
// cancelled or a server fails.
func (a *app) run(ctx context.Context) error {
	if err := a.gateway.Listen(); err != nil {
		return fmt.Errorf("listen gateway: %w", err)
	}
	if err := a.admin.Listen(); err != nil {
		return fmt.Errorf("listen admin: %w", err)
	}

	workers, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	a.collector.Start(workers)
	go guard.Janitor(workers, a.guard, config.Duration(a.cfg.Guard.SweepInterval), a.log)
	go proxy.HealthCheck(workers, a.upstream, config.Duration(a.cfg.Upstream.HealthInterval), a.log)

	srvErrCh := make(chan error, 2)
	go func() {
		srvErrCh <- a.gateway.Start()
	}()
	go func() {
		srvErrCh <- a.admin.Start()
	}()

	a.log.Info("Gateway started",
		slog.String("address", a.gateway.Addr()),
		slog.String("admin", a.admin.Addr()),
		slog.String("upstream", a.upstream.URL().String()),
		slog.Int("failure_threshold", a.guard.FailureThreshold()),
		slog.Duration("block_duration", a.guard.BlockDuration()))

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutting down gracefully...")
	case err := <-srvErrCh:
		if err != nil {
			a.log.Error("Server stopped unexpectedly", slog.Any("err", err))
			runErr = err
		}
	}

	if err := a.gateway.Shutdown(context.Background()); err != nil {
		a.log.Error("Error during gateway shutdown", slog.Any("err", err))
	}
	if err := a.admin.Shutdown(context.Background()); err != nil {
		a.log.Error("Error during admin shutdown", slog.Any("err", err))
	}

	return runErr
}
