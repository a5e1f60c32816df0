package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/engine"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func chanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chance <boss>",
		Short: "Show today's spawn chance of a boss",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				est, err := e.GetChance(ctx, joinName(args))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %s\n", est.BossName, est.Label(e.Precision()))
				if est.HasData {
					fmt.Fprintf(out, "days since last appearance: %d\n", est.DaysElapsed)
				}
				if est.Extrapolated {
					fmt.Fprintln(out, "overdue, extrapolated from the mean interval")
				}
				return nil
			})
		},
	}
}

func tableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "table",
		Short: "Show the spawn chance of every configured boss",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				estimates, evalErrors, err := e.ChanceAll(ctx)
				if err != nil {
					return err
				}
				writeTable(cmd.OutOrStdout(), estimates, e.Precision())
				for _, evalErr := range evalErrors {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", evalErr)
				}
				return nil
			})
		},
	}
}

// writeTable prints bosses by chance descending, then raid categories
func writeTable(out io.Writer, estimates []models.SpawnEstimate, precision int) {
	normal, groups := bosses.SeparateByCategory(estimates, bosses.RaidCategories)
	sort.SliceStable(normal, func(i, j int) bool {
		if normal[i].HasData != normal[j].HasData {
			return normal[i].HasData
		}
		if normal[i].ChancePercent != normal[j].ChancePercent {
			return normal[i].ChancePercent > normal[j].ChancePercent
		}
		return normal[i].BossName < normal[j].BossName
	})

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BOSS\tCHANCE\tDAYS\tCHECKED BY")
	for _, est := range normal {
		days := "-"
		if est.HasData {
			days = fmt.Sprintf("%d", est.DaysElapsed)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", est.BossName, est.Label(precision), days, est.LastChecker)
	}
	for _, g := range groups {
		fmt.Fprintf(tw, "%s (raid)\t%s\t-\t\n", g.Name, g.Estimate().Label(precision))
	}
	_ = tw.Flush()
}

func killCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "kill <boss>",
		Short: "Record a kill of a boss",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				when, err := e.ParseKillTime(at)
				if err != nil {
					return err
				}
				a, err := e.RecordKill(ctx, joinName(args), when)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s at %s\n", a.BossName, formatTime(a.AppearanceDate, e.Location()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "kill time, YYYY-MM-DD [HH:MM] (default now)")
	return cmd
}

func revertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <boss>",
		Short: "Delete the newest appearance of a boss",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				a, err := e.RevertLastKill(ctx, joinName(args))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s record of %s at %s\n", a.Source, a.BossName, formatTime(a.AppearanceDate, e.Location()))
				return nil
			})
		},
	}
}

func lastCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "last <boss>",
		Short: "List the newest appearances of a boss",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				list, err := e.LastAppearances(ctx, joinName(args), n)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No appearances recorded")
					return nil
				}
				for i, a := range list {
					fmt.Fprintf(out, "%d. %s (%s)\n", i+1, formatTime(a.AppearanceDate, e.Location()), a.Source)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "number", "n", engine.DefaultLastAppearances, "number of appearances")
	return cmd
}

func configureCmd() *cobra.Command {
	var minDays, maxDays int
	cmd := &cobra.Command{
		Use:   "configure <boss>",
		Short: "Create or replace the respawn window of a boss",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				c, err := e.ConfigureBoss(ctx, joinName(args), minDays, maxDays)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s respawns after %d to %d days\n", c.BossName, c.MinDays, c.MaxDays)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&minDays, "min", 0, "minimum days between appearances")
	cmd.Flags().IntVar(&maxDays, "max", 0, "maximum days between appearances")
	_ = cmd.MarkFlagRequired("min")
	_ = cmd.MarkFlagRequired("max")
	return cmd
}

func purgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <boss>",
		Short: "Delete a boss and its entire history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge %q without --yes", joinName(args))
			}
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				if err := e.PurgeBoss(ctx, joinName(args)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", bosses.CanonicalName(joinName(args)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(timeLayout)
}
