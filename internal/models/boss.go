// Package models defines the core domain entities for spawnoracle.
// These models represent per-boss respawn windows, recorded appearances and the
// computed spawn estimates handed to adapters.
// Models validate themselves; violations wrap ErrValidation.
//
// Terminology:
//   - Boss: a named recurring spawn, optionally with a location suffix, e.g. "Zomba(East)".
//   - Appearance: one observed, imported or predicted timestamp at which the boss was present.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation marks bad input: empty names, inverted windows, unparseable dates.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks operations on a boss or record that does not exist.
	ErrNotFound = errors.New("not found")
)

// BossConfig is the respawn window of a boss, in days since its last appearance.
type BossConfig struct {
	BossName    string     `json:"boss_name"`
	MinDays     int        `json:"min_days"`
	MaxDays     int        `json:"max_days"`
	LastChecked *time.Time `json:"last_checked,omitempty"` // last time someone looked for it in-game
	LastChecker string     `json:"last_checker,omitempty"`
}

// Validate checks that the window is well formed
func (c *BossConfig) Validate() error {
	if strings.TrimSpace(c.BossName) == "" {
		return fmt.Errorf("%w: boss name must not be empty", ErrValidation)
	}
	if c.MinDays < 0 {
		return fmt.Errorf("%w: min days must not be negative", ErrValidation)
	}
	if c.MinDays > c.MaxDays {
		return fmt.Errorf("%w: min days (%d) must be <= max days (%d)", ErrValidation, c.MinDays, c.MaxDays)
	}
	return nil
}

// Degenerate reports a single-day window, where any history means a certain spawn.
func (c *BossConfig) Degenerate() bool {
	return c.MinDays == c.MaxDays
}
