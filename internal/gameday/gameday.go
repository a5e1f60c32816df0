// Package gameday maps wall-clock timestamps onto the game's "effective day".
//
// The game world resets at a fixed local hour rather than at midnight, so a kill at
// 03:00 still belongs to the previous day. All day counts in spawnoracle go through
// EffectiveDay and DaysBetween; durations are never divided by 24h directly, which
// keeps daylight-saving transitions from shifting counts.
package gameday

import (
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/spawnoracle/internal/models"
)

// Midnight returns 00:00 of t's calendar day in t's location
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EffectiveDay returns midnight of the day t belongs to. Timestamps whose hour is
// before dayStartHour belong to the previous calendar day.
func EffectiveDay(t time.Time, dayStartHour int) time.Time {
	day := Midnight(t)
	if t.Hour() < dayStartHour {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// DaysBetween returns the whole calendar days from b to a (negative when a is earlier).
// Both values are reduced to their calendar dates first.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(da.Sub(db).Hours()) / 24
}

// AtHour returns day's calendar date at the given hour
func AtHour(day time.Time, hour int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, day.Location())
}

// Window returns the [start, end) span of the effective day that starts on day
func Window(day time.Time, dayStartHour int) (time.Time, time.Time) {
	start := AtHour(day, dayStartHour)
	return start, start.AddDate(0, 0, 1)
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp parses the date formats found in appearance history.
// A bare "2006-01-02" date is placed at defaultHour. Values without an offset are
// interpreted in loc.
func ParseTimestamp(s string, defaultHour int, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", models.ErrValidation)
	}
	if loc == nil {
		loc = time.Local
	}

	if d, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return AtHour(d, defaultHour), nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", models.ErrValidation, s)
}
