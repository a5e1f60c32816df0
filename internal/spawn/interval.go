// Package spawn computes the chance that a boss appears today.
//
// Days since the last appearance are measured in effective days (see gameday) and
// mapped onto the boss's [min, max] respawn window:
//
//	days <  min             → 0%
//	min <= days < max       → 100 / (max - days + 1)
//	days >= max             → 100%
//
// The middle branch is a reciprocal curve rather than a linear ramp: it stays low for
// most of the window and climbs steeply as max approaches, which matches observed
// respawn behaviour.
//
// When a boss is overdue (days > max) the last appearance is replaced by a predicted
// one, placed a mean historical interval after it. Compute reports that prediction so
// the caller can persist it.
package spawn

import (
	"github.com/rewired-gh/spawnoracle/internal/gameday"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

// MeanInterval returns the mean number of days between consecutive appearances.
// history must be ordered newest first. Time of day is dropped before counting.
// Fewer than two records yield 0.
func MeanInterval(history []models.Appearance) float64 {
	if len(history) < 2 {
		return 0
	}

	sum := 0
	for i := 0; i < len(history)-1; i++ {
		newer := gameday.Midnight(history[i].AppearanceDate)
		older := gameday.Midnight(history[i+1].AppearanceDate)
		sum += gameday.DaysBetween(newer, older)
	}
	return float64(sum) / float64(len(history)-1)
}
