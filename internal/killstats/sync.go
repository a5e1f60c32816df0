package killstats

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/gameday"
	"github.com/rewired-gh/spawnoracle/internal/logger"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

// Fetcher returns the kill statistics of a world
type Fetcher interface {
	FetchKillStatistics(ctx context.Context, world string) ([]Entry, error)
}

// Recorder is the part of the engine a sync writes through
type Recorder interface {
	Bosses(ctx context.Context) ([]models.BossConfig, error)
	RecordImported(ctx context.Context, name string, at time.Time) (bool, error)
	Now() time.Time
	EffectiveDay(t time.Time) time.Time
	DefaultAppearanceHour() int
}

// Report summarizes one sync
type Report struct {
	Day            time.Time // effective day the kills were recorded on
	Recorded       []string
	AlreadyPresent []string
	Ambiguous      []string // races matching more than one configured boss
	Untracked      int      // killed races with no configured boss
}

// Summary renders the report as one line
func (r *Report) Summary() string {
	killed := append(append([]string{}, r.Recorded...), r.AlreadyPresent...)
	sort.Strings(killed)
	list := "none"
	if len(killed) > 0 {
		list = strings.Join(killed, ", ")
	}
	return fmt.Sprintf("Bosses killed on %s: %s", r.Day.Format("2006-01-02"), list)
}

// Syncer imports the previous day's kills into the engine
type Syncer struct {
	fetcher  Fetcher
	recorder Recorder
	world    string
}

// NewSyncer creates a Syncer for one world
func NewSyncer(f Fetcher, r Recorder, world string) *Syncer {
	return &Syncer{fetcher: f, recorder: r, world: world}
}

// Sync fetches the kill statistics and records every tracked boss killed during
// the previous effective day. A boss is matched when its base name (see
// bosses.BaseName) equals the race; races matching several configured bosses, such
// as bosses with location suffixes, are skipped because the location is unknown.
func (s *Syncer) Sync(ctx context.Context) (*Report, error) {
	entries, err := s.fetcher.FetchKillStatistics(ctx, s.world)
	if err != nil {
		return nil, err
	}

	configs, err := s.recorder.Bosses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bosses: %w", err)
	}
	byBase := make(map[string][]string)
	for _, cfg := range configs {
		base := bosses.BaseName(cfg.BossName)
		byBase[base] = append(byBase[base], cfg.BossName)
	}

	day := s.recorder.EffectiveDay(s.recorder.Now()).AddDate(0, 0, -1)
	at := gameday.AtHour(day, s.recorder.DefaultAppearanceHour())
	report := &Report{Day: day}

	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.LastDayKilled <= 0 {
			continue
		}
		base := bosses.BaseName(bosses.CanonicalName(entry.Race))
		if seen[base] {
			continue
		}
		seen[base] = true

		matches := byBase[base]
		switch len(matches) {
		case 0:
			report.Untracked++
			continue
		case 1:
		default:
			logger.Warn("Kill statistics race %q matches %d bosses (%s), skipping",
				entry.Race, len(matches), strings.Join(matches, ", "))
			report.Ambiguous = append(report.Ambiguous, entry.Race)
			continue
		}

		inserted, err := s.recorder.RecordImported(ctx, matches[0], at)
		if err != nil {
			return report, fmt.Errorf("failed to record kill of %s: %w", matches[0], err)
		}
		if inserted {
			report.Recorded = append(report.Recorded, matches[0])
		} else {
			report.AlreadyPresent = append(report.AlreadyPresent, matches[0])
		}
	}

	logger.Info("Kill statistics sync for %s: recorded=%d, already present=%d, ambiguous=%d, untracked=%d",
		day.Format("2006-01-02"), len(report.Recorded), len(report.AlreadyPresent), len(report.Ambiguous), report.Untracked)
	return report, nil
}
