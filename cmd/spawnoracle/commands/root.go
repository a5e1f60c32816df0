// Package commands wires the spawnoracle CLI.
package commands

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/spawnoracle/internal/config"
	"github.com/rewired-gh/spawnoracle/internal/engine"
	"github.com/rewired-gh/spawnoracle/internal/logger"
	"github.com/rewired-gh/spawnoracle/internal/storage"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	configPath string
	verbose    bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "spawnoracle",
	Short: "Spawn Oracle estimates daily boss spawn chances",
	Long: `Spawn Oracle tracks boss appearances and estimates the chance that each boss
spawns today from its configured respawn window, extrapolating overdue bosses from
their mean respawn interval.`,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger.InitWithOptions(level, cfg.Logging.Format, logger.Options{
			File:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
		if configPath != "" {
			logger.Debug("Configuration loaded from %s", configPath)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to configuration file (empty: defaults and environment only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chanceCmd())
	rootCmd.AddCommand(tableCmd())
	rootCmd.AddCommand(killCmd())
	rootCmd.AddCommand(revertCmd())
	rootCmd.AddCommand(lastCmd())
	rootCmd.AddCommand(configureCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(syncKillsCmd())
}

// openEngine opens the configured store and builds an engine over it. The caller
// closes the returned store.
func openEngine(ctx context.Context) (*engine.Engine, storage.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		DefaultHour: cfg.Engine.DefaultAppearanceHour,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	e, err := engine.New(store, engine.Options{
		DayStartHour:          cfg.Engine.DayStartHour,
		DefaultAppearanceHour: cfg.Engine.DefaultAppearanceHour,
		HistoryWindow:         cfg.Engine.HistoryWindow,
		Precision:             cfg.Engine.Precision,
		StrictHistory:         cfg.Engine.StrictHistory,
		Location:              loc,
		Concurrency:           cfg.Engine.Concurrency,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return e, store, nil
}

// withEngine runs fn against a freshly opened engine and closes the store afterwards
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) error) error {
	ctx := cmd.Context()
	e, store, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()
	return fn(ctx, e)
}

func joinName(args []string) string {
	return strings.Join(args, " ")
}
