// Package monitor runs the scheduled re-evaluation cycle.
//
// Each cycle evaluates every configured boss through the engine, folds raid bosses
// into their categories and selects the entries whose chance reached the alert
// threshold. A cooldown map suppresses repeated alerts for the same boss unless
// its chance rose since the last alert. The map lives in memory only; a restart
// may re-send one alert per boss.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/engine"
	"github.com/rewired-gh/spawnoracle/internal/logger"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

// Estimator evaluates every configured boss
type Estimator interface {
	ChanceAll(ctx context.Context) ([]models.SpawnEstimate, []engine.EvaluationError, error)
}

// notifiedRecord tracks a previously sent alert for cooldown deduplication.
type notifiedRecord struct {
	ChancePercent float64
	SentAt        time.Time
}

// Cycle is the outcome of one evaluation pass
type Cycle struct {
	ID        string
	StartedAt time.Time
	Normal    []models.SpawnEstimate // bosses outside any raid category
	Groups    []bosses.Group
	Due       []models.SpawnEstimate // at or above the threshold, highest chance first
	Errors    []engine.EvaluationError
}

// Monitor handles periodic boss evaluation and alert selection
type Monitor struct {
	estimator      Estimator
	rules          bosses.CategoryRules
	threshold      float64
	notifiedBosses map[string]notifiedRecord // key = boss or category name
	now            func() time.Time
}

// New creates a new Monitor instance. threshold is a chance percent in (0, 100].
func New(est Estimator, rules bosses.CategoryRules, threshold float64) *Monitor {
	return &Monitor{
		estimator:      est,
		rules:          rules,
		threshold:      threshold,
		notifiedBosses: make(map[string]notifiedRecord),
		now:            time.Now,
	}
}

// RunCycle evaluates all bosses once. Per-boss failures are reported in
// Cycle.Errors; the returned error is only set when nothing could be evaluated.
func (m *Monitor) RunCycle(ctx context.Context) (*Cycle, error) {
	cycle := &Cycle{
		ID:        uuid.New().String(),
		StartedAt: m.now(),
	}

	estimates, evalErrors, err := m.estimator.ChanceAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("cycle %s: %w", cycle.ID, err)
	}
	cycle.Errors = evalErrors
	for _, e := range evalErrors {
		logger.Warn("Cycle %s: %v", cycle.ID, e)
	}

	cycle.Normal, cycle.Groups = bosses.SeparateByCategory(estimates, m.rules)

	candidates := make([]models.SpawnEstimate, 0, len(cycle.Normal)+len(cycle.Groups))
	candidates = append(candidates, cycle.Normal...)
	for _, g := range cycle.Groups {
		candidates = append(candidates, g.Estimate())
	}
	cycle.Due = SelectDue(candidates, m.threshold)

	logger.Debug("Cycle %s: evaluated=%d, groups=%d, due=%d, errors=%d",
		cycle.ID, len(estimates), len(cycle.Groups), len(cycle.Due), len(evalErrors))
	return cycle, nil
}

// SelectDue returns the estimates with data whose chance is at least threshold,
// sorted by chance descending and then by name. Returns a non-nil slice.
func SelectDue(estimates []models.SpawnEstimate, threshold float64) []models.SpawnEstimate {
	due := make([]models.SpawnEstimate, 0)
	for _, est := range estimates {
		if est.HasData && est.ChancePercent >= threshold {
			due = append(due, est)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].ChancePercent != due[j].ChancePercent {
			return due[i].ChancePercent > due[j].ChancePercent
		}
		return due[i].BossName < due[j].BossName
	})
	return due
}

// FilterRecentlyNotified removes bosses alerted within cooldown unless their chance
// has risen since that alert. Returns a non-nil slice.
func (m *Monitor) FilterRecentlyNotified(due []models.SpawnEstimate, cooldown time.Duration) []models.SpawnEstimate {
	now := m.now()
	result := make([]models.SpawnEstimate, 0, len(due))

	for _, est := range due {
		rec, exists := m.notifiedBosses[est.BossName]
		if exists && now.Sub(rec.SentAt) < cooldown && est.ChancePercent <= rec.ChancePercent {
			continue
		}
		result = append(result, est)
	}
	return result
}

// RecordNotified records the given bosses as alerted at the current time.
// Call this after a successful Telegram send to enable cooldown deduplication.
func (m *Monitor) RecordNotified(sent []models.SpawnEstimate) {
	now := m.now()
	for _, est := range sent {
		m.notifiedBosses[est.BossName] = notifiedRecord{
			ChancePercent: est.ChancePercent,
			SentAt:        now,
		}
	}
}
