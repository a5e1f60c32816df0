package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rewired-gh/spawnoracle/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS boss_configs (
	boss_name    TEXT PRIMARY KEY,
	min_days     INTEGER NOT NULL,
	max_days     INTEGER NOT NULL,
	last_checked TIMESTAMPTZ,
	last_checker TEXT
);
CREATE TABLE IF NOT EXISTS appearances (
	id              BIGSERIAL PRIMARY KEY,
	boss_name       TEXT NOT NULL,
	appearance_date TIMESTAMPTZ NOT NULL,
	source          TEXT NOT NULL DEFAULT 'observed'
);
CREATE INDEX IF NOT EXISTS idx_appearances_boss_date ON appearances (boss_name, appearance_date);
`

// Postgres is a Store backed by a PostgreSQL connection pool. Multi-statement
// operations run through a transaction manager so repository calls made with the
// transaction context share one transaction.
type Postgres struct {
	pool      *pgxpool.Pool
	txManager trm.Manager
	getter    *trmpgx.CtxGetter
	sb        sq.StatementBuilderType
}

// NewPostgres connects to dsn and migrates the schema
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	txManager, err := manager.New(trmpgx.NewDefaultFactory(pool))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create transaction manager: %w", err)
	}

	return &Postgres{
		pool:      pool,
		txManager: txManager,
		getter:    trmpgx.DefaultCtxGetter,
		sb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close closes the pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// conn returns the transaction bound to ctx, or the pool outside a transaction
func (p *Postgres) conn(ctx context.Context) trmpgx.Tr {
	return p.getter.DefaultTrOrDB(ctx, p.pool)
}

func (p *Postgres) UpsertConfig(ctx context.Context, cfg models.BossConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	query, args, err := p.sb.Insert(configsTable).
		Columns(colBossName, colMinDays, colMaxDays).
		Values(cfg.BossName, cfg.MinDays, cfg.MaxDays).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := p.conn(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert config: %w", err)
	}
	return nil
}

func (p *Postgres) GetConfig(ctx context.Context, bossName string) (*models.BossConfig, error) {
	query, args, err := p.configSelect().Where(sq.Eq{colBossName: bossName}).ToSql()
	if err != nil {
		return nil, err
	}

	cfg, err := scanPgConfig(p.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, configNotFound(bossName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return cfg, nil
}

func (p *Postgres) ListConfigs(ctx context.Context) ([]models.BossConfig, error) {
	query, args, err := p.configSelect().OrderBy(colBossName).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := p.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	configs := make([]models.BossConfig, 0)
	for rows.Next() {
		cfg, err := scanPgConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func (p *Postgres) MarkChecked(ctx context.Context, bossName, checker string, at time.Time) error {
	query, args, err := p.sb.Update(configsTable).
		Set(colLastChecked, at.UTC()).
		Set(colLastChecker, checker).
		Where(sq.Eq{colBossName: bossName}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := p.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return configNotFound(bossName)
	}
	return nil
}

func (p *Postgres) RecordAppearance(ctx context.Context, bossName string, at time.Time, source string) (models.Appearance, error) {
	a, err := newAppearance(bossName, at, source)
	if err != nil {
		return models.Appearance{}, err
	}
	if err := p.insertAppearance(ctx, &a); err != nil {
		return models.Appearance{}, err
	}
	return a, nil
}

// RecordAppearanceIfAbsent serializes concurrent writers for the same boss with a
// transaction-scoped advisory lock before checking the window.
func (p *Postgres) RecordAppearanceIfAbsent(ctx context.Context, bossName string, at time.Time, source string, start, end time.Time) (*models.Appearance, bool, error) {
	a, err := newAppearance(bossName, at, source)
	if err != nil {
		return nil, false, err
	}

	inserted := false
	err = p.txManager.Do(ctx, func(txCtx context.Context) error {
		if _, err := p.conn(txCtx).Exec(txCtx, "SELECT pg_advisory_xact_lock(hashtext($1))", bossName); err != nil {
			return fmt.Errorf("failed to lock boss %s: %w", bossName, err)
		}

		exists, err := p.ExistsInWindow(txCtx, bossName, start, end)
		if err != nil || exists {
			return err
		}
		if err := p.insertAppearance(txCtx, &a); err != nil {
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

func (p *Postgres) RecentAppearances(ctx context.Context, bossName string, limit int) ([]models.Appearance, error) {
	query, args, err := recentQuery(p.sb, bossName, limit).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := p.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query appearances: %w", err)
	}
	defer rows.Close()

	appearances := make([]models.Appearance, 0)
	for rows.Next() {
		var a models.Appearance
		if err := rows.Scan(&a.ID, &a.BossName, &a.AppearanceDate, &a.Source); err != nil {
			return nil, fmt.Errorf("failed to scan appearance: %w", err)
		}
		a.AppearanceDate = a.AppearanceDate.UTC()
		appearances = append(appearances, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read appearances: %w", err)
	}
	return appearances, nil
}

func (p *Postgres) DeleteMostRecent(ctx context.Context, bossName string) (models.Appearance, error) {
	var deleted models.Appearance
	err := p.txManager.Do(ctx, func(txCtx context.Context) error {
		recent, err := p.RecentAppearances(txCtx, bossName, 1)
		if err != nil {
			return err
		}
		if len(recent) == 0 {
			return notFound(bossName)
		}

		query, args, err := p.sb.Delete(appearanceTable).Where(sq.Eq{colID: recent[0].ID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := p.conn(txCtx).Exec(txCtx, query, args...); err != nil {
			return fmt.Errorf("failed to delete appearance: %w", err)
		}
		deleted = recent[0]
		return nil
	})
	return deleted, err
}

func (p *Postgres) DeleteAll(ctx context.Context, bossName string) error {
	return p.txManager.Do(ctx, func(txCtx context.Context) error {
		for _, table := range []string{appearanceTable, configsTable} {
			query, args, err := p.sb.Delete(table).Where(sq.Eq{colBossName: bossName}).ToSql()
			if err != nil {
				return err
			}
			if _, err := p.conn(txCtx).Exec(txCtx, query, args...); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}
		return nil
	})
}

func (p *Postgres) ExistsInWindow(ctx context.Context, bossName string, start, end time.Time) (bool, error) {
	query, args, err := windowQuery(p.sb, bossName, start.UTC(), end.UTC()).ToSql()
	if err != nil {
		return false, err
	}

	var one int
	err = p.conn(ctx).QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check appearance window: %w", err)
	}
	return true, nil
}

func (p *Postgres) CountAppearances(ctx context.Context, bossName string) (int, error) {
	query, args, err := p.sb.Select("COUNT(*)").
		From(appearanceTable).
		Where(sq.Eq{colBossName: bossName}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var n int
	if err := p.conn(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count appearances: %w", err)
	}
	return n, nil
}

func (p *Postgres) insertAppearance(ctx context.Context, a *models.Appearance) error {
	query, args, err := p.sb.Insert(appearanceTable).
		Columns(colBossName, colAppearanceDate, colSource).
		Values(a.BossName, a.AppearanceDate.UTC(), a.Source).
		Suffix("RETURNING " + colID).
		ToSql()
	if err != nil {
		return err
	}

	if err := p.conn(ctx).QueryRow(ctx, query, args...).Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to insert appearance: %w", err)
	}
	return nil
}

func (p *Postgres) configSelect() sq.SelectBuilder {
	return p.sb.Select(colBossName, colMinDays, colMaxDays, colLastChecked, colLastChecker).From(configsTable)
}

func scanPgConfig(row pgx.Row) (*models.BossConfig, error) {
	var cfg models.BossConfig
	var checked *time.Time
	var checker *string
	if err := row.Scan(&cfg.BossName, &cfg.MinDays, &cfg.MaxDays, &checked, &checker); err != nil {
		return nil, err
	}
	if checked != nil {
		t := checked.UTC()
		cfg.LastChecked = &t
	}
	if checker != nil {
		cfg.LastChecker = *checker
	}
	return &cfg, nil
}
