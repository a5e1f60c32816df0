// Package engine is the boundary every adapter (CLI, Telegram, HTTP, monitor, kill
// statistics import) talks to.
//
// Each call canonicalizes the boss name, reads the config and recent history from the
// store, runs spawn.Compute and, when the boss is overdue, persists the predicted
// appearance for the predicted effective day. Nothing derived is cached between calls:
// the store is the only source of truth.
//
// Read-compute-write sequences for one boss are serialized by a per-name mutex. The
// store additionally re-checks the day window inside its own transaction, so a
// prediction is written at most once per effective day even across restarts.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/gameday"
	"github.com/rewired-gh/spawnoracle/internal/logger"
	"github.com/rewired-gh/spawnoracle/internal/models"
	"github.com/rewired-gh/spawnoracle/internal/spawn"
	"github.com/rewired-gh/spawnoracle/internal/storage"
)

// DefaultLastAppearances is how many records LastAppearances returns when n <= 0
const DefaultLastAppearances = 3

// Options configures an Engine. Zero values of Location, Now and Concurrency are
// replaced with time.Local, time.Now and 4.
type Options struct {
	DayStartHour          int
	DefaultAppearanceHour int
	HistoryWindow         int // newest records sampled for the mean interval; 0 means all
	Precision             int
	StrictHistory         bool
	Location              *time.Location
	Concurrency           int
	Now                   func() time.Time
}

// Engine computes and records boss spawn chances
type Engine struct {
	store storage.Store
	opts  Options
	locks sync.Map // canonical boss name -> *sync.Mutex
}

// EvaluationError represents a per-boss error during batch evaluation
type EvaluationError struct {
	BossName string
	Err      error
}

func (e EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error for boss %s: %v", e.BossName, e.Err)
}

func (e EvaluationError) Unwrap() error {
	return e.Err
}

// ImportSummary counts the outcome of a catalog import
type ImportSummary struct {
	Configured int
	Recorded   int
	Skipped    int // history entries already present for their day
}

// New creates an Engine over store
func New(store storage.Store, opts Options) (*Engine, error) {
	if opts.DayStartHour < 0 || opts.DayStartHour > 23 {
		return nil, fmt.Errorf("%w: day start hour must be within [0, 23]", models.ErrValidation)
	}
	if opts.DefaultAppearanceHour < opts.DayStartHour || opts.DefaultAppearanceHour > 23 {
		return nil, fmt.Errorf("%w: default appearance hour must be within [%d, 23]", models.ErrValidation, opts.DayStartHour)
	}
	if opts.HistoryWindow < 0 {
		return nil, fmt.Errorf("%w: history window must not be negative", models.ErrValidation)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Engine{store: store, opts: opts}, nil
}

// Location returns the location day boundaries are computed in
func (e *Engine) Location() *time.Location {
	return e.opts.Location
}

// Precision returns the number of decimals chances are rounded to
func (e *Engine) Precision() int {
	return e.opts.Precision
}

// DefaultAppearanceHour returns the hour given to date-only and predicted appearances
func (e *Engine) DefaultAppearanceHour() int {
	return e.opts.DefaultAppearanceHour
}

// Now returns the engine clock in the configured location
func (e *Engine) Now() time.Time {
	return e.opts.Now().In(e.opts.Location)
}

// EffectiveDay returns the effective day of t in the configured location
func (e *Engine) EffectiveDay(t time.Time) time.Time {
	return gameday.EffectiveDay(t.In(e.opts.Location), e.opts.DayStartHour)
}

func (e *Engine) lock(name string) func() {
	v, _ := e.locks.LoadOrStore(name, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (e *Engine) params() spawn.Params {
	return spawn.Params{
		DayStartHour:  e.opts.DayStartHour,
		DefaultHour:   e.opts.DefaultAppearanceHour,
		HistoryWindow: e.opts.HistoryWindow,
		StrictHistory: e.opts.StrictHistory,
	}
}

// GetChance returns today's spawn estimate for a boss. A boss without appearances
// yields an estimate with HasData false. Returns models.ErrNotFound when the boss
// has no config.
func (e *Engine) GetChance(ctx context.Context, name string) (models.SpawnEstimate, error) {
	name = bosses.CanonicalName(name)
	unlock := e.lock(name)
	defer unlock()

	cfg, err := e.store.GetConfig(ctx, name)
	if err != nil {
		return models.SpawnEstimate{}, err
	}
	return e.evaluate(ctx, *cfg)
}

// evaluate must be called with the boss lock held
func (e *Engine) evaluate(ctx context.Context, cfg models.BossConfig) (models.SpawnEstimate, error) {
	history, err := e.store.RecentAppearances(ctx, cfg.BossName, e.opts.HistoryWindow)
	if err != nil {
		return models.SpawnEstimate{}, fmt.Errorf("failed to load history of %s: %w", cfg.BossName, err)
	}
	for i := range history {
		history[i].AppearanceDate = history[i].AppearanceDate.In(e.opts.Location)
	}

	res := spawn.Compute(cfg, history, e.Now(), e.params())

	if res.Predicted != nil {
		start, end := gameday.Window(res.PredictedDay, e.opts.DayStartHour)
		rec, inserted, err := e.store.RecordAppearanceIfAbsent(ctx, cfg.BossName, *res.Predicted, models.SourcePredicted, start, end)
		if err != nil {
			return models.SpawnEstimate{}, fmt.Errorf("failed to record predicted appearance of %s: %w", cfg.BossName, err)
		}
		if inserted {
			logger.Info("Recorded predicted appearance of %s at %s (id %d)",
				cfg.BossName, rec.AppearanceDate.Format("2006-01-02 15:04"), rec.ID)
		}
	}

	return models.SpawnEstimate{
		BossName:      cfg.BossName,
		ChancePercent: spawn.Round(res.ChancePercent, e.opts.Precision),
		Extrapolated:  res.Extrapolated,
		DaysElapsed:   res.DaysElapsed,
		HasData:       res.HasData,
		LastChecked:   cfg.LastChecked,
		LastChecker:   cfg.LastChecker,
	}, nil
}

// ChanceAll evaluates every configured boss concurrently. Per-boss failures are
// returned as EvaluationErrors and do not stop the batch; the returned error is
// only set when the configs cannot be listed or ctx is done. Estimates are sorted
// by boss name.
func (e *Engine) ChanceAll(ctx context.Context) ([]models.SpawnEstimate, []EvaluationError, error) {
	configs, err := e.store.ListConfigs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list bosses: %w", err)
	}

	results := make([]*models.SpawnEstimate, len(configs))
	var mu sync.Mutex
	var evalErrors []EvaluationError

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, cfg := range configs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			unlock := e.lock(cfg.BossName)
			est, err := e.evaluate(ctx, cfg)
			unlock()
			if err != nil {
				mu.Lock()
				evalErrors = append(evalErrors, EvaluationError{BossName: cfg.BossName, Err: err})
				mu.Unlock()
				return nil
			}
			results[i] = &est
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	estimates := make([]models.SpawnEstimate, 0, len(results))
	for _, r := range results {
		if r != nil {
			estimates = append(estimates, *r)
		}
	}
	sort.Slice(evalErrors, func(i, j int) bool {
		return evalErrors[i].BossName < evalErrors[j].BossName
	})

	logger.Debug("ChanceAll: evaluated=%d, failed=%d", len(estimates), len(evalErrors))
	return estimates, evalErrors, nil
}

// RecordKill appends an observed appearance. A zero at means now.
func (e *Engine) RecordKill(ctx context.Context, name string, at time.Time) (models.Appearance, error) {
	name = bosses.CanonicalName(name)
	if at.IsZero() {
		at = e.Now()
	}

	unlock := e.lock(name)
	defer unlock()

	a, err := e.store.RecordAppearance(ctx, name, at, models.SourceObserved)
	if err != nil {
		return models.Appearance{}, err
	}
	logger.Info("Recorded kill of %s at %s", name, at.In(e.opts.Location).Format("2006-01-02 15:04"))
	return a, nil
}

// RecordImported appends an imported appearance unless the effective day of at
// already has one. Reports whether a record was written.
func (e *Engine) RecordImported(ctx context.Context, name string, at time.Time) (bool, error) {
	name = bosses.CanonicalName(name)
	unlock := e.lock(name)
	defer unlock()

	return e.recordImported(ctx, name, at)
}

func (e *Engine) recordImported(ctx context.Context, name string, at time.Time) (bool, error) {
	start, end := gameday.Window(e.EffectiveDay(at), e.opts.DayStartHour)
	_, inserted, err := e.store.RecordAppearanceIfAbsent(ctx, name, at, models.SourceImported, start, end)
	return inserted, err
}

// RevertLastKill deletes the newest appearance of a boss, whatever its source.
// Returns models.ErrNotFound when there is nothing to revert.
func (e *Engine) RevertLastKill(ctx context.Context, name string) (models.Appearance, error) {
	name = bosses.CanonicalName(name)
	unlock := e.lock(name)
	defer unlock()

	a, err := e.store.DeleteMostRecent(ctx, name)
	if err != nil {
		return models.Appearance{}, err
	}
	logger.Info("Reverted %s appearance of %s at %s", a.Source, name, a.AppearanceDate.In(e.opts.Location).Format("2006-01-02 15:04"))
	return a, nil
}

// ConfigureBoss creates or replaces the respawn window of a boss
func (e *Engine) ConfigureBoss(ctx context.Context, name string, minDays, maxDays int) (models.BossConfig, error) {
	cfg := models.BossConfig{BossName: bosses.CanonicalName(name), MinDays: minDays, MaxDays: maxDays}
	if err := cfg.Validate(); err != nil {
		return models.BossConfig{}, err
	}

	unlock := e.lock(cfg.BossName)
	defer unlock()

	if err := e.store.UpsertConfig(ctx, cfg); err != nil {
		return models.BossConfig{}, err
	}
	return cfg, nil
}

// PurgeBoss removes a boss config and its entire history
func (e *Engine) PurgeBoss(ctx context.Context, name string) error {
	name = bosses.CanonicalName(name)
	unlock := e.lock(name)
	defer unlock()

	if err := e.store.DeleteAll(ctx, name); err != nil {
		return err
	}
	logger.Info("Purged boss %s", name)
	return nil
}

// LastAppearances returns the n newest appearances of a boss
func (e *Engine) LastAppearances(ctx context.Context, name string, n int) ([]models.Appearance, error) {
	if n <= 0 {
		n = DefaultLastAppearances
	}
	return e.store.RecentAppearances(ctx, bosses.CanonicalName(name), n)
}

// MarkChecked records that checker looked for the boss just now
func (e *Engine) MarkChecked(ctx context.Context, name, checker string) error {
	return e.store.MarkChecked(ctx, bosses.CanonicalName(name), checker, e.Now())
}

// Bosses returns every configured boss ordered by name
func (e *Engine) Bosses(ctx context.Context) ([]models.BossConfig, error) {
	return e.store.ListConfigs(ctx)
}

// ParseKillTime parses a user-supplied kill time in the configured location.
// An empty string means now; a bare date gets the default appearance hour.
func (e *Engine) ParseKillTime(s string) (time.Time, error) {
	if s == "" {
		return e.Now(), nil
	}
	return gameday.ParseTimestamp(s, e.opts.DefaultAppearanceHour, e.opts.Location)
}

// ImportCatalog upserts every catalog entry and records its history as imported
// appearances, one per effective day. Re-importing the same catalog is a no-op.
func (e *Engine) ImportCatalog(ctx context.Context, c *bosses.Catalog) (ImportSummary, error) {
	var summary ImportSummary

	for _, entry := range c.Bosses {
		cfg, err := entry.Config()
		if err != nil {
			return summary, err
		}

		if err := e.importEntry(ctx, cfg, entry.History, &summary); err != nil {
			return summary, err
		}
	}

	logger.Info("Imported catalog: %d bosses, %d appearances recorded, %d already present",
		summary.Configured, summary.Recorded, summary.Skipped)
	return summary, nil
}

func (e *Engine) importEntry(ctx context.Context, cfg models.BossConfig, history []string, summary *ImportSummary) error {
	unlock := e.lock(cfg.BossName)
	defer unlock()

	if err := e.store.UpsertConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to configure %s: %w", cfg.BossName, err)
	}
	summary.Configured++

	for _, raw := range history {
		at, err := gameday.ParseTimestamp(raw, e.opts.DefaultAppearanceHour, e.opts.Location)
		if err != nil {
			return fmt.Errorf("history of %s: %w", cfg.BossName, err)
		}
		inserted, err := e.recordImported(ctx, cfg.BossName, at)
		if err != nil {
			return fmt.Errorf("failed to import history of %s: %w", cfg.BossName, err)
		}
		if inserted {
			summary.Recorded++
		} else {
			summary.Skipped++
		}
	}
	return nil
}
