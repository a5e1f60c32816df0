// Package storage persists boss respawn windows and the append-only appearance log.
//
// Two backends implement Store: SQLite (modernc, pure Go, the default for a single bot
// process) and PostgreSQL (pgx pool with a transaction manager, for shared deployments).
// Both build their SQL with squirrel and share table and column names.
//
// Appearances are never edited in place. The only mutations are deleting the most
// recent record of a boss (revert) and purging a boss entirely.
package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rewired-gh/spawnoracle/internal/models"
)

const (
	configsTable    = "boss_configs"
	appearanceTable = "appearances"

	colBossName    = "boss_name"
	colMinDays     = "min_days"
	colMaxDays     = "max_days"
	colLastChecked = "last_checked"
	colLastChecker = "last_checker"

	colID             = "id"
	colAppearanceDate = "appearance_date"
	colSource         = "source"
)

// upsertSuffix is valid for both SQLite and PostgreSQL
const upsertSuffix = "ON CONFLICT (" + colBossName + ") DO UPDATE SET " +
	colMinDays + " = excluded." + colMinDays + ", " +
	colMaxDays + " = excluded." + colMaxDays

// Store is the appearance store used by the engine and adapters
type Store interface {
	UpsertConfig(ctx context.Context, cfg models.BossConfig) error
	GetConfig(ctx context.Context, bossName string) (*models.BossConfig, error)
	ListConfigs(ctx context.Context) ([]models.BossConfig, error)
	MarkChecked(ctx context.Context, bossName, checker string, at time.Time) error

	RecordAppearance(ctx context.Context, bossName string, at time.Time, source string) (models.Appearance, error)
	// RecordAppearanceIfAbsent inserts only when no appearance of bossName falls in
	// [start, end). The check and insert run in one transaction.
	RecordAppearanceIfAbsent(ctx context.Context, bossName string, at time.Time, source string, start, end time.Time) (*models.Appearance, bool, error)
	RecentAppearances(ctx context.Context, bossName string, limit int) ([]models.Appearance, error)
	DeleteMostRecent(ctx context.Context, bossName string) (models.Appearance, error)
	DeleteAll(ctx context.Context, bossName string) error
	ExistsInWindow(ctx context.Context, bossName string, start, end time.Time) (bool, error)
	CountAppearances(ctx context.Context, bossName string) (int, error)

	Close() error
}

// Options selects and configures a backend
type Options struct {
	Driver      string // "sqlite" or "postgres"
	Path        string // SQLite file, ":memory:" for tests
	DSN         string // PostgreSQL connection string
	DefaultHour int    // hour given to legacy date-only rows
}

// Open returns the backend selected by opts.Driver
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		return NewSQLite(opts.Path, opts.DefaultHour)
	case "postgres":
		return NewPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

func newAppearance(bossName string, at time.Time, source string) (models.Appearance, error) {
	a := models.Appearance{BossName: bossName, AppearanceDate: at, Source: source}
	if err := a.Validate(); err != nil {
		return models.Appearance{}, err
	}
	return a, nil
}

func recentQuery(sb sq.StatementBuilderType, bossName string, limit int) sq.SelectBuilder {
	q := sb.Select(colID, colBossName, colAppearanceDate, colSource).
		From(appearanceTable).
		Where(sq.Eq{colBossName: bossName}).
		OrderBy(colAppearanceDate+" DESC", colID+" DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func windowQuery(sb sq.StatementBuilderType, bossName string, start, end interface{}) sq.SelectBuilder {
	return sb.Select("1").
		From(appearanceTable).
		Where(sq.Eq{colBossName: bossName}).
		Where(sq.GtOrEq{colAppearanceDate: start}).
		Where(sq.Lt{colAppearanceDate: end}).
		Limit(1)
}

func notFound(bossName string) error {
	return fmt.Errorf("%w: no appearances recorded for %s", models.ErrNotFound, bossName)
}

func configNotFound(bossName string) error {
	return fmt.Errorf("%w: boss %s is not configured", models.ErrNotFound, bossName)
}
