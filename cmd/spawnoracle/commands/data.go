package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/engine"
	"github.com/rewired-gh/spawnoracle/internal/killstats"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [catalog.yaml]",
		Short: "Import respawn windows and history from a boss catalog",
		Long: `Upserts every boss in the catalog and records its history as imported
appearances, at most one per effective day. Defaults to catalog_path from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.CatalogPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no catalog given and catalog_path is not configured")
			}

			catalog, err := bosses.LoadCatalog(path)
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				summary, err := e.ImportCatalog(ctx, catalog)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configured %d bosses, recorded %d appearances, %d already present\n",
					summary.Configured, summary.Recorded, summary.Skipped)
				return nil
			})
		},
	}
}

func syncKillsCmd() *cobra.Command {
	var world string
	cmd := &cobra.Command{
		Use:   "sync-kills",
		Short: "Import yesterday's boss kills from the kill statistics API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if world == "" {
				world = cfg.KillStats.World
			}
			if world == "" {
				return fmt.Errorf("no world given and killstats.world is not configured")
			}
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				report, err := newSyncer(e, world).Sync(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, report.Summary())
				if len(report.Ambiguous) > 0 {
					fmt.Fprintf(out, "Skipped ambiguous races: %v\n", report.Ambiguous)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&world, "world", "", "game world (default killstats.world)")
	return cmd
}

func newSyncer(e *engine.Engine, world string) *killstats.Syncer {
	client := killstats.NewClient(
		cfg.KillStats.APIBaseURL,
		cfg.KillStats.Timeout,
		cfg.KillStats.RequestsPerMinute,
		cfg.KillStats.MaxRetries,
	)
	return killstats.NewSyncer(client, e, world)
}
