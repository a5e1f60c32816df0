package models

import (
	"strconv"
	"time"
)

// SpawnEstimate is the computed chance that a boss appears today. It is never persisted.
type SpawnEstimate struct {
	BossName      string     `json:"boss_name"`
	ChancePercent float64    `json:"chance_percent"`
	Extrapolated  bool       `json:"extrapolated"`
	DaysElapsed   int        `json:"days_elapsed"` // may be negative when history is inconsistent
	HasData       bool       `json:"has_data"`     // false is the "N/A" sentinel
	LastChecked   *time.Time `json:"last_checked,omitempty"`
	LastChecker   string     `json:"last_checker,omitempty"`
}

// Label renders the chance for display: "N/A", "42%" or "~7.14%" for extrapolated values.
func (e SpawnEstimate) Label(precision int) string {
	if !e.HasData {
		return "N/A"
	}
	if precision < 0 {
		precision = 0
	}
	s := strconv.FormatFloat(e.ChancePercent, 'f', precision, 64) + "%"
	if e.Extrapolated {
		return "~" + s
	}
	return s
}
