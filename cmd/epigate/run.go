package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/epigate/pkg/audit/scheduler"
	"mercator-hq/epigate/pkg/cli"
	"mercator-hq/epigate/pkg/config"
	"mercator-hq/epigate/pkg/policy"
	"mercator-hq/epigate/pkg/server"
	"mercator-hq/epigate/pkg/telemetry/health"
	"mercator-hq/epigate/pkg/telemetry/metrics"
	"mercator-hq/epigate/pkg/telemetry/tracing"
)

type runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gate server",
		Long: `Start the gate server with the specified configuration.

The server hosts the dashboard, the /verify and rule APIs, health and
metrics endpoints. The periodic audit integrity check, the rules file
watcher and the rules repository poller run alongside it. SIGINT or SIGTERM triggers a graceful shutdown.

Examples:
  # Start with default config
  epigate run

  # Start with custom config
  epigate run --config /etc/epigate/config.yaml

  # Override listen address
  epigate run --listen 0.0.0.0:8080

  # Validate config without starting server
  epigate run --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, opts, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.listenAddress, "listen", "l", "", "override listen address")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "validate config without starting server")
	return cmd
}

func runServer(cmd *cobra.Command, opts *rootOptions, flags *runFlags) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	if flags.listenAddress != "" {
		cfg.Server.ListenAddress = flags.listenAddress
	}
	if flags.logLevel != "" {
		cfg.Telemetry.Logging.Level = flags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}

	out := cmd.OutOrStdout()
	if flags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	logger, err := newLogger(&cfg.Telemetry.Logging, opts.verbose, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	provider, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	}

	a, err := openApp(ctx, cfg, logger, collector)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.Close()

	checker := health.New(0)
	checker.RegisterCheck("storage", a.backend.Ping)

	srv, err := server.NewServer(&cfg.Server, server.Options{
		Gate:        a.gate,
		Health:      checker,
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Build:       server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate},
		Logger:      logger,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	var reporter scheduler.Reporter
	if collector != nil {
		reporter = collector
	}
	integrity := scheduler.New(a.backend, cfg.Audit.IntegritySchedule, reporter, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return integrity.Run(gctx) })

	if cfg.Gate.WatchRules && cfg.Gate.RulesFile != "" {
		watcher, err := policy.NewWatcher(&policy.WatcherConfig{
			Path:             cfg.Gate.RulesFile,
			DebounceInterval: cfg.Gate.WatchDebounce,
		}, logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		g.Go(func() error {
			return watcher.Watch(gctx, func() error {
				_, err := a.reloadRulesFile(gctx)
				return err
			})
		})
	}

	if a.rulesRepo != nil {
		g.Go(func() error {
			return a.rulesRepo.Poll(gctx, func(ctx context.Context) error {
				_, err := a.reloadRulesFile(ctx)
				return err
			})
		})
	}

	fmt.Fprintf(out, "Epigate %s\n", Version)
	fmt.Fprintf(out, "✓ Storage: %s\n", cfg.Storage.Backend)
	fmt.Fprintf(out, "✓ Readiness checks: %s\n", strings.Join(checker.ListChecks(), ", "))
	fmt.Fprintf(out, "✓ Dashboard: http://%s/\n", cfg.Server.ListenAddress)
	if collector != nil {
		fmt.Fprintf(out, "✓ Metrics: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}

	if err := g.Wait(); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}
