package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/spawnoracle/internal/api"
	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/engine"
	"github.com/rewired-gh/spawnoracle/internal/killstats"
	"github.com/rewired-gh/spawnoracle/internal/logger"
	"github.com/rewired-gh/spawnoracle/internal/monitor"
	"github.com/rewired-gh/spawnoracle/internal/telegram"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor, the Telegram bot, the daily kill sync and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	e, store, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	if cfg.CatalogPath != "" {
		catalog, err := bosses.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return err
		}
		if _, err := e.ImportCatalog(ctx, catalog); err != nil {
			return fmt.Errorf("failed to import catalog: %w", err)
		}
	}

	// Initialize Telegram client
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
		telegramClient.ListenForCommands(ctx, telegram.NewHandler(e, bosses.RaidCategories))
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	// Start HTTP API
	var srv *http.Server
	if cfg.HTTP.Enabled {
		srv = &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      api.NewRouter(e, bosses.RaidCategories, cfg.HTTP.CORSAllowOrigins),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("Starting HTTP API on %s", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed: %v", err)
			}
		}()
	}

	// Monitor ticker; a nil channel never fires when the monitor is disabled
	var tickC <-chan time.Time
	var mon *monitor.Monitor
	if cfg.Monitor.Enabled {
		mon = monitor.New(e, bosses.RaidCategories, cfg.Monitor.Threshold)
		ticker := time.NewTicker(cfg.Monitor.PollInterval)
		defer ticker.Stop()
		tickC = ticker.C
		logger.Info("Starting monitor (interval: %v, threshold: %.2f%%, cooldown: %v)",
			cfg.Monitor.PollInterval, cfg.Monitor.Threshold, cfg.Monitor.Cooldown)
	}

	// Daily kill statistics sync
	var syncC <-chan time.Time
	var syncer *killstats.Syncer
	var syncTimer *time.Timer
	if cfg.KillStats.Enabled {
		syncer = newSyncer(e, cfg.KillStats.World)
		next := nextRun(e.Now(), cfg.KillStats.SyncHour)
		syncTimer = time.NewTimer(time.Until(next))
		defer syncTimer.Stop()
		syncC = syncTimer.C
		logger.Info("Kill statistics sync for %s scheduled at %s", cfg.KillStats.World, next.Format(time.RFC3339))
	}

	consecutiveFailures := 0
	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Monitoring cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && telegramClient != nil {
			if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	if mon != nil {
		logger.Debug("Running initial monitoring cycle")
		handleCycleResult(runMonitoringCycle(ctx, e, mon, telegramClient))
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, cleaning up...")
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("HTTP shutdown error: %v", err)
				}
				cancel()
			}
			logger.Info("Service stopped")
			return nil

		case <-tickC:
			logger.Debug("Starting scheduled monitoring cycle")
			handleCycleResult(runMonitoringCycle(ctx, e, mon, telegramClient))

		case <-syncC:
			runKillSync(ctx, syncer, telegramClient)
			next := nextRun(e.Now(), cfg.KillStats.SyncHour)
			syncTimer.Reset(time.Until(next))
			logger.Debug("Next kill statistics sync at %s", next.Format(time.RFC3339))
		}
	}
}

// runMonitoringCycle evaluates every boss and alerts the chat about bosses that
// reached the threshold and were not alerted recently.
func runMonitoringCycle(ctx context.Context, e *engine.Engine, mon *monitor.Monitor, telegramClient *telegram.Client) error {
	startTime := time.Now()

	cycle, err := mon.RunCycle(ctx)
	if err != nil {
		return err
	}
	if len(cycle.Errors) > 0 && len(cycle.Normal)+len(cycle.Groups) == 0 {
		return fmt.Errorf("cycle %s: all %d bosses failed, first: %w", cycle.ID, len(cycle.Errors), cycle.Errors[0])
	}

	due := mon.FilterRecentlyNotified(cycle.Due, cfg.Monitor.Cooldown)
	if len(due) > 0 {
		logger.Info("Cycle %s: %d bosses at or above %.2f%%", cycle.ID, len(due), cfg.Monitor.Threshold)
		if telegramClient != nil {
			if err := telegramClient.SendAlert(due, e.Precision(), e.Now()); err != nil {
				logger.Error("Failed to send Telegram notification: %v", err)
			} else {
				mon.RecordNotified(due)
			}
		}
	}

	logger.Info("Monitoring cycle %s completed in %v", cycle.ID, time.Since(startTime))
	return nil
}

func runKillSync(ctx context.Context, syncer *killstats.Syncer, telegramClient *telegram.Client) {
	report, err := syncer.Sync(ctx)
	if err != nil {
		logger.Error("Kill statistics sync failed: %v", err)
		if telegramClient != nil {
			if sendErr := telegramClient.SendError(fmt.Errorf("kill statistics sync: %w", err)); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return
	}

	logger.Info("%s", report.Summary())
	if telegramClient != nil {
		if err := telegramClient.SendText(report.Summary()); err != nil {
			logger.Warn("Failed to send sync summary to Telegram: %v", err)
		}
	}
}

// nextRun returns the next time at hour:00 strictly after now, in now's location
func nextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
