package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/params/internal/config"
	"github.com/vango-dev/params/pkg/middleware"
	"github.com/vango-dev/params/pkg/server"
	"github.com/vango-dev/params/pkg/session"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the parameter page",
		Long: `Serve the parameter page over HTTP and WebSocket.

The page is the parameters list of the config file, or a demo page
with one parameter of every type when the list is empty.

Examples:
  paramsd serve
  paramsd serve --port=9000
  PARAMSD_STORE_DRIVER=sqlite PARAMSD_STORE_DSN=file:paramsd.db paramsd serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")

	return cmd
}

// runServe serves until ctx is cancelled. Logs go to logOut.
func runServe(ctx context.Context, cfg *config.Config, out, logOut io.Writer) error {
	logger := newLogger(cfg.Log, logOut)

	store, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	manager := session.NewManager(store, cfg.ManagerConfig(), logger)
	srvConfig := newServerConfig(cfg, manager)
	srvConfig.Logger = logger

	srv := server.New(srvConfig)
	success(out, "paramsd listening on http://%s", cfg.Address())
	info(out, "store: %s, sessions: max %d (%d per IP)",
		cfg.Store.Driver, cfg.Session.MaxSessions, cfg.Session.MaxSessionsPerIP)
	return srv.Run(ctx)
}

// newServerConfig translates the file configuration for server.New.
func newServerConfig(cfg *config.Config, manager *session.Manager) server.Config {
	srvConfig := server.Config{
		Address:         cfg.Address(),
		Page:            buildPage(cfg.Parameters, localToday()),
		Manager:         manager,
		CookieName:      cfg.Session.CookieName,
		CookieSecure:    cfg.Session.CookieSecure,
		TrustedProxies:  cfg.Server.TrustedProxies,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Std(),
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		srvConfig.CheckOrigin = server.AllowOrigins(cfg.Server.AllowedOrigins...)
	}

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts := []middleware.MetricsOption{
			middleware.WithRegistry(registry),
			middleware.WithSessionCount(manager.Count),
		}
		if cfg.Metrics.Namespace != "" {
			opts = append(opts, middleware.WithNamespace(cfg.Metrics.Namespace))
		}
		srvConfig.Metrics = middleware.NewMetrics(opts...)
		srvConfig.Gatherer = registry
		srvConfig.MetricsPath = cfg.Metrics.Path
	}

	if cfg.Tracing.Enabled {
		srvConfig.Tracer = middleware.NewTracer(middleware.WithTracerName(cfg.Tracing.TracerName))
	}
	return srvConfig
}
