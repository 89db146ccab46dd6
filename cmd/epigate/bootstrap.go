package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/epigate/pkg/cli"
	"mercator-hq/epigate/pkg/config"
	"mercator-hq/epigate/pkg/gate"
	"mercator-hq/epigate/pkg/policy"
	"mercator-hq/epigate/pkg/policy/git"
	"mercator-hq/epigate/pkg/storage"
	"mercator-hq/epigate/pkg/telemetry/logging"
	"mercator-hq/epigate/pkg/telemetry/metrics"
)

// loadConfig reads the --config file with environment overrides. A missing
// default config.yaml is not an error; an explicitly named missing file is.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	path := opts.configFile
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return cfg, nil
}

func newLogger(cfg *config.LoggingConfig, verbose bool, w io.Writer) (*slog.Logger, error) {
	level := cfg.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:          level,
		Format:         cfg.Format,
		AddSource:      cfg.AddSource,
		RedactMessages: cfg.RedactMessages,
		Writer:         w,
	})
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

// app is the wired gate shared by run and the one-shot commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend storage.Backend
	gate    *gate.Gate

	// rulesFile is gate.rules_file, or the rules file inside the clone
	// when rulesRepo is set. Empty means no rules file.
	rulesFile string
	rulesRepo *git.Repository
}

// openApp opens the configured backend, builds the gate and loads seed
// rules and the rules file. collector may be nil.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) (*app, error) {
	backend, err := storage.Open(cfg.Storage.Backend, &storage.SQLiteConfig{
		Path:         cfg.Storage.SQLite.Path,
		Driver:       cfg.Storage.SQLite.Driver,
		MaxOpenConns: cfg.Storage.SQLite.MaxOpenConns,
		MaxIdleConns: cfg.Storage.SQLite.MaxIdleConns,
		WALMode:      cfg.Storage.SQLite.WALMode,
		BusyTimeout:  cfg.Storage.SQLite.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	opts := []gate.Option{
		gate.WithLogger(logger),
		gate.WithRecentLimit(cfg.Gate.RecentLimit),
	}
	if collector != nil {
		opts = append(opts, gate.WithObserver(collector))
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		backend:   backend,
		gate:      gate.New(backend, backend, gate.NewDenylist(cfg.Gate.Denylist), opts...),
		rulesFile: cfg.Gate.RulesFile,
	}

	if cfg.Gate.RulesGit.Repository != "" {
		repo, err := git.NewRepository(&cfg.Gate.RulesGit, logger)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("invalid rules repository: %w", err)
		}
		if _, err := repo.Sync(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to sync rules repository: %w", err)
		}
		a.rulesRepo = repo
		a.rulesFile = repo.RulesPath()
	}

	if err := a.loadRules(ctx); err != nil {
		backend.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) loadRules(ctx context.Context) error {
	seeds := make([]policy.Policy, 0, len(a.cfg.Gate.SeedRules))
	for _, r := range a.cfg.Gate.SeedRules {
		seeds = append(seeds, policy.Policy{
			Sector:    r.Sector,
			Threshold: r.Threshold,
			Keyword:   r.Keyword,
			Unit:      r.Unit,
		})
	}
	seeded, err := policy.SeedMissing(ctx, a.backend, seeds)
	if err != nil {
		return fmt.Errorf("failed to seed rules: %w", err)
	}
	if seeded > 0 {
		a.logger.Info("seed rules stored", "count", seeded)
	}

	if a.rulesFile != "" {
		if _, err := a.reloadRulesFile(ctx); err != nil {
			return err
		}
	}
	return nil
}

// reloadRulesFile upserts every rule in the rules file.
func (a *app) reloadRulesFile(ctx context.Context) (int, error) {
	rules, err := policy.LoadRulesFile(a.rulesFile)
	if err != nil {
		return 0, err
	}
	n, err := policy.Apply(ctx, a.backend, rules)
	if err != nil {
		return n, fmt.Errorf("failed to apply rules file: %w", err)
	}
	a.logger.Info("rules file applied", "path", a.rulesFile, "count", n)
	return n, nil
}

func (a *app) Close() error {
	return a.backend.Close()
}

// bootstrap loads config, builds a logger writing to stderr and opens the
// app. It is used by the one-shot commands.
func bootstrap(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	// One-shot commands keep stderr quiet unless asked.
	logCfg := cfg.Telemetry.Logging
	if !opts.verbose {
		logCfg.Level = "warn"
	}
	logger, err := newLogger(&logCfg, opts.verbose, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return openApp(cmd.Context(), cfg, logger, nil)
}
