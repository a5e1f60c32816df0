package spawn

import (
	"math"
	"time"

	"github.com/rewired-gh/spawnoracle/internal/gameday"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

// Params tunes the calculator for one deployment
type Params struct {
	DayStartHour  int // hour at which a new game day begins
	DefaultHour   int // hour given to predicted appearances; must be >= DayStartHour
	HistoryWindow int // newest records used for the mean interval; 0 means all
	StrictHistory bool
}

// Result is the outcome of one chance computation
type Result struct {
	HasData       bool
	ChancePercent float64
	DaysElapsed   int
	Extrapolated  bool
	// Predicted is set when the boss was overdue and a predicted appearance should be
	// persisted. PredictedDay is the effective day it falls on.
	Predicted    *time.Time
	PredictedDay time.Time
}

// Chance maps elapsed days onto the respawn window. Not clamped to whole days;
// callers round with Round.
func Chance(daysElapsed, minDays, maxDays int) float64 {
	var chance float64
	switch {
	case daysElapsed < minDays:
		chance = 0
	case daysElapsed >= maxDays:
		chance = 100
	default:
		chance = 100 / float64(maxDays-daysElapsed+1)
	}
	if math.IsNaN(chance) {
		return 0
	}
	return math.Max(0, math.Min(100, chance))
}

// Round rounds v to precision decimal places
func Round(v float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

// Compute returns the spawn chance of a boss at now. history must be ordered newest
// first and already limited to valid records.
func Compute(cfg models.BossConfig, history []models.Appearance, now time.Time, p Params) Result {
	if len(history) == 0 {
		return Result{}
	}

	last := gameday.EffectiveDay(history[0].AppearanceDate, p.DayStartHour)
	today := gameday.EffectiveDay(now, p.DayStartHour)

	res := Result{
		HasData:      true,
		DaysElapsed:  gameday.DaysBetween(today, last),
		Extrapolated: history[0].Predicted(),
	}

	if cfg.Degenerate() {
		res.ChancePercent = 100
		return res
	}

	if res.DaysElapsed > cfg.MaxDays {
		sample := history
		if p.HistoryWindow > 0 && len(sample) > p.HistoryWindow {
			sample = sample[:p.HistoryWindow]
		}

		avg := MeanInterval(sample)
		if math.IsNaN(avg) || avg < 1 {
			if p.StrictHistory {
				return Result{}
			}
			avg = float64(cfg.MaxDays)
		}

		// Advance by whole mean intervals until the boss is no longer overdue, so the
		// persisted prediction does not trigger another extrapolation on the next query.
		step := int(math.Floor(avg))
		k := (res.DaysElapsed - cfg.MaxDays + step - 1) / step
		if k < 1 {
			k = 1
		}

		predictedDay := last.AddDate(0, 0, k*step)
		predicted := gameday.AtHour(predictedDay, p.DefaultHour)
		res.Predicted = &predicted
		res.PredictedDay = predictedDay
		res.DaysElapsed = gameday.DaysBetween(today, predictedDay)
		res.Extrapolated = true
	}

	res.ChancePercent = Chance(res.DaysElapsed, cfg.MinDays, cfg.MaxDays)
	return res
}
