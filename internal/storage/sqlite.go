package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/spawnoracle/internal/gameday"
	"github.com/rewired-gh/spawnoracle/internal/logger"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

// dateLayout is fixed width and UTC so lexical order matches time order
const dateLayout = "2006-01-02T15:04:05.000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS boss_configs (
	boss_name    TEXT PRIMARY KEY,
	min_days     INTEGER NOT NULL,
	max_days     INTEGER NOT NULL,
	last_checked TEXT,
	last_checker TEXT
);
CREATE TABLE IF NOT EXISTS appearances (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	boss_name       TEXT NOT NULL,
	appearance_date TEXT NOT NULL,
	source          TEXT NOT NULL DEFAULT 'observed'
);
CREATE INDEX IF NOT EXISTS idx_appearances_boss_date ON appearances (boss_name, appearance_date);
`

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite is a Store backed by a single SQLite database file
type SQLite struct {
	db          *sql.DB
	sb          sq.StatementBuilderType
	defaultHour int
}

// NewSQLite opens (and migrates) a SQLite database. If path is empty, uses an
// OS-appropriate tmp directory.
func NewSQLite(path string, defaultHour int) (*SQLite, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "spawnoracle", "spawnoracle.db")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" databases are
	// private to their connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLite{
		db:          db,
		sb:          sq.StatementBuilder.PlaceholderFormat(sq.Question),
		defaultHour: defaultHour,
	}, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertConfig inserts or overwrites the respawn window of a boss
func (s *SQLite) UpsertConfig(ctx context.Context, cfg models.BossConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	query, args, err := s.sb.Insert(configsTable).
		Columns(colBossName, colMinDays, colMaxDays).
		Values(cfg.BossName, cfg.MinDays, cfg.MaxDays).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert config: %w", err)
	}
	return nil
}

// GetConfig retrieves the config of a boss
func (s *SQLite) GetConfig(ctx context.Context, bossName string) (*models.BossConfig, error) {
	query, args, err := s.configSelect().Where(sq.Eq{colBossName: bossName}).ToSql()
	if err != nil {
		return nil, err
	}

	cfg, err := s.scanConfig(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, configNotFound(bossName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return cfg, nil
}

// ListConfigs returns all boss configs ordered by name
func (s *SQLite) ListConfigs(ctx context.Context) ([]models.BossConfig, error) {
	query, args, err := s.configSelect().OrderBy(colBossName).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	configs := make([]models.BossConfig, 0)
	for rows.Next() {
		cfg, err := s.scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// MarkChecked records who last looked for a boss
func (s *SQLite) MarkChecked(ctx context.Context, bossName, checker string, at time.Time) error {
	query, args, err := s.sb.Update(configsTable).
		Set(colLastChecked, formatDate(at)).
		Set(colLastChecker, checker).
		Where(sq.Eq{colBossName: bossName}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark checked: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return configNotFound(bossName)
	}
	return nil
}

// RecordAppearance appends one appearance
func (s *SQLite) RecordAppearance(ctx context.Context, bossName string, at time.Time, source string) (models.Appearance, error) {
	a, err := newAppearance(bossName, at, source)
	if err != nil {
		return models.Appearance{}, err
	}
	if err := s.insertAppearance(ctx, s.db, &a); err != nil {
		return models.Appearance{}, err
	}
	return a, nil
}

// RecordAppearanceIfAbsent appends one appearance unless the window already has one
func (s *SQLite) RecordAppearanceIfAbsent(ctx context.Context, bossName string, at time.Time, source string, start, end time.Time) (*models.Appearance, bool, error) {
	a, err := newAppearance(bossName, at, source)
	if err != nil {
		return nil, false, err
	}

	inserted := false
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.existsInWindow(ctx, tx, bossName, start, end)
		if err != nil || exists {
			return err
		}
		if err := s.insertAppearance(ctx, tx, &a); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		return nil, false, nil
	}
	return &a, true, nil
}

// RecentAppearances returns up to limit appearances, newest first. Rows with an
// unparseable date are logged and skipped.
func (s *SQLite) RecentAppearances(ctx context.Context, bossName string, limit int) ([]models.Appearance, error) {
	query, args, err := recentQuery(s.sb, bossName, limit).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query appearances: %w", err)
	}
	defer rows.Close()

	appearances := make([]models.Appearance, 0)
	for rows.Next() {
		a, raw, err := s.scanAppearance(rows)
		if err != nil {
			logger.Warn("Skipping appearance %q of %s: %v", raw, bossName, err)
			continue
		}
		appearances = append(appearances, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read appearances: %w", err)
	}
	return appearances, nil
}

// DeleteMostRecent removes and returns the newest appearance of a boss
func (s *SQLite) DeleteMostRecent(ctx context.Context, bossName string) (models.Appearance, error) {
	var deleted models.Appearance
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := recentQuery(s.sb, bossName, 1).ToSql()
		if err != nil {
			return err
		}

		var id int64
		var name, raw, source string
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id, &name, &raw, &source)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(bossName)
		}
		if err != nil {
			return fmt.Errorf("failed to find most recent appearance: %w", err)
		}

		del, args, err := s.sb.Delete(appearanceTable).Where(sq.Eq{colID: id}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, del, args...); err != nil {
			return fmt.Errorf("failed to delete appearance: %w", err)
		}

		// The row is gone either way; an unparseable date only degrades the report.
		at, _ := s.parseDate(raw)
		deleted = models.Appearance{ID: id, BossName: name, AppearanceDate: at, Source: source}
		return nil
	})
	return deleted, err
}

// DeleteAll removes every appearance and the config of a boss
func (s *SQLite) DeleteAll(ctx context.Context, bossName string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{appearanceTable, configsTable} {
			query, args, err := s.sb.Delete(table).Where(sq.Eq{colBossName: bossName}).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}
		return nil
	})
}

// ExistsInWindow reports whether any appearance of a boss falls in [start, end)
func (s *SQLite) ExistsInWindow(ctx context.Context, bossName string, start, end time.Time) (bool, error) {
	return s.existsInWindow(ctx, s.db, bossName, start, end)
}

// CountAppearances returns the number of stored appearances of a boss
func (s *SQLite) CountAppearances(ctx context.Context, bossName string) (int, error) {
	query, args, err := s.sb.Select("COUNT(*)").
		From(appearanceTable).
		Where(sq.Eq{colBossName: bossName}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count appearances: %w", err)
	}
	return n, nil
}

func (s *SQLite) existsInWindow(ctx context.Context, q querier, bossName string, start, end time.Time) (bool, error) {
	query, args, err := windowQuery(s.sb, bossName, formatDate(start), formatDate(end)).ToSql()
	if err != nil {
		return false, err
	}

	var one int
	err = q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check appearance window: %w", err)
	}
	return true, nil
}

func (s *SQLite) insertAppearance(ctx context.Context, q querier, a *models.Appearance) error {
	query, args, err := s.sb.Insert(appearanceTable).
		Columns(colBossName, colAppearanceDate, colSource).
		Values(a.BossName, formatDate(a.AppearanceDate), a.Source).
		ToSql()
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert appearance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read appearance id: %w", err)
	}
	a.ID = id
	return nil
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLite) configSelect() sq.SelectBuilder {
	return s.sb.Select(colBossName, colMinDays, colMaxDays, colLastChecked, colLastChecker).From(configsTable)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLite) scanConfig(row rowScanner) (*models.BossConfig, error) {
	var cfg models.BossConfig
	var checked, checker sql.NullString
	if err := row.Scan(&cfg.BossName, &cfg.MinDays, &cfg.MaxDays, &checked, &checker); err != nil {
		return nil, err
	}
	if checked.Valid {
		if t, err := s.parseDate(checked.String); err == nil {
			cfg.LastChecked = &t
		}
	}
	cfg.LastChecker = checker.String
	return &cfg, nil
}

func (s *SQLite) scanAppearance(row rowScanner) (models.Appearance, string, error) {
	var a models.Appearance
	var raw string
	if err := row.Scan(&a.ID, &a.BossName, &raw, &a.Source); err != nil {
		return models.Appearance{}, raw, err
	}
	at, err := s.parseDate(raw)
	if err != nil {
		return models.Appearance{}, raw, err
	}
	a.AppearanceDate = at
	return a, raw, nil
}

// parseDate accepts the canonical layout and, for rows written by older tools, any
// format gameday understands.
func (s *SQLite) parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	return gameday.ParseTimestamp(raw, s.defaultHour, time.UTC)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
