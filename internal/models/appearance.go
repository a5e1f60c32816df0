package models

import (
	"fmt"
	"strings"
	"time"
)

// Appearance sources
const (
	SourceObserved  = "observed"  // reported by a player
	SourceImported  = "imported"  // kill statistics or catalog history
	SourcePredicted = "predicted" // written by extrapolation
)

// Appearance represents a single recorded spawn of a boss
type Appearance struct {
	ID             int64     `json:"id"`
	BossName       string    `json:"boss_name"`
	AppearanceDate time.Time `json:"appearance_date"`
	Source         string    `json:"source"`
}

// Validate checks that all appearance fields are valid
func (a *Appearance) Validate() error {
	if strings.TrimSpace(a.BossName) == "" {
		return fmt.Errorf("%w: boss name must not be empty", ErrValidation)
	}
	if a.AppearanceDate.IsZero() {
		return fmt.Errorf("%w: appearance date must be set", ErrValidation)
	}
	switch a.Source {
	case SourceObserved, SourceImported, SourcePredicted:
	default:
		return fmt.Errorf("%w: unknown appearance source %q", ErrValidation, a.Source)
	}
	return nil
}

// Predicted reports whether the record was written by extrapolation
func (a *Appearance) Predicted() bool {
	return a.Source == SourcePredicted
}
