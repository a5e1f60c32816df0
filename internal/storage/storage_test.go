package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/spawnoracle/internal/models"
)

// backends returns every Store the tests can reach. PostgreSQL joins when
// SPAWN_ORACLE_TEST_PG_DSN points at a disposable database.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	stores := make(map[string]Store)

	lite, err := NewSQLite(":memory:", 15)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = lite.Close() })
	stores["sqlite"] = lite

	if dsn := os.Getenv("SPAWN_ORACLE_TEST_PG_DSN"); dsn != "" {
		ctx := context.Background()
		pg, err := NewPostgres(ctx, dsn)
		if err != nil {
			t.Fatalf("NewPostgres failed: %v", err)
		}
		if _, err := pg.pool.Exec(ctx, "TRUNCATE "+appearanceTable+", "+configsTable); err != nil {
			t.Fatalf("failed to truncate: %v", err)
		}
		t.Cleanup(func() { _ = pg.Close() })
		stores["postgres"] = pg
	}

	return stores
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestStore_ConfigRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.GetConfig(ctx, "Tyrn"); !errors.Is(err, models.ErrNotFound) {
				t.Fatalf("Expected ErrNotFound, got %v", err)
			}

			if err := s.UpsertConfig(ctx, models.BossConfig{BossName: "Tyrn", MinDays: 1, MaxDays: 30}); err != nil {
				t.Fatalf("UpsertConfig failed: %v", err)
			}
			if err := s.UpsertConfig(ctx, models.BossConfig{BossName: "Tyrn", MinDays: 2, MaxDays: 20}); err != nil {
				t.Fatalf("UpsertConfig overwrite failed: %v", err)
			}

			cfg, err := s.GetConfig(ctx, "Tyrn")
			if err != nil {
				t.Fatalf("GetConfig failed: %v", err)
			}
			if cfg.MinDays != 2 || cfg.MaxDays != 20 {
				t.Errorf("Expected window [2, 20], got [%d, %d]", cfg.MinDays, cfg.MaxDays)
			}
			if cfg.LastChecked != nil {
				t.Errorf("Expected no last checked, got %v", cfg.LastChecked)
			}

			if err := s.UpsertConfig(ctx, models.BossConfig{BossName: "Bad", MinDays: 5, MaxDays: 1}); !errors.Is(err, models.ErrValidation) {
				t.Errorf("Expected ErrValidation for inverted window, got %v", err)
			}
		})
	}
}

func TestStore_MarkChecked(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := day("2025-06-01 12:30")

			if err := s.MarkChecked(ctx, "Nobody", "alice", at); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("Expected ErrNotFound for unknown boss, got %v", err)
			}

			if err := s.UpsertConfig(ctx, models.BossConfig{BossName: "Tyrn", MinDays: 1, MaxDays: 30}); err != nil {
				t.Fatalf("UpsertConfig failed: %v", err)
			}
			if err := s.MarkChecked(ctx, "Tyrn", "alice", at); err != nil {
				t.Fatalf("MarkChecked failed: %v", err)
			}

			cfg, err := s.GetConfig(ctx, "Tyrn")
			if err != nil {
				t.Fatalf("GetConfig failed: %v", err)
			}
			if cfg.LastChecked == nil || !cfg.LastChecked.Equal(at) {
				t.Errorf("Expected last checked %v, got %v", at, cfg.LastChecked)
			}
			if cfg.LastChecker != "alice" {
				t.Errorf("Expected checker alice, got %q", cfg.LastChecker)
			}

			// Re-upserting the window keeps the checked marker.
			if err := s.UpsertConfig(ctx, models.BossConfig{BossName: "Tyrn", MinDays: 1, MaxDays: 25}); err != nil {
				t.Fatalf("UpsertConfig failed: %v", err)
			}
			cfg, _ = s.GetConfig(ctx, "Tyrn")
			if cfg.LastChecker != "alice" {
				t.Errorf("Expected checker to survive upsert, got %q", cfg.LastChecker)
			}
		})
	}
}

func TestStore_RecentAppearancesOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			dates := []string{"2025-05-01 15:00", "2025-05-20 09:00", "2025-05-10 18:30", "2025-05-20 09:00"}
			for _, d := range dates {
				if _, err := s.RecordAppearance(ctx, "Tyrn", day(d), models.SourceObserved); err != nil {
					t.Fatalf("RecordAppearance failed: %v", err)
				}
			}
			if _, err := s.RecordAppearance(ctx, "Other", day("2025-06-01 15:00"), models.SourceObserved); err != nil {
				t.Fatalf("RecordAppearance failed: %v", err)
			}

			all, err := s.RecentAppearances(ctx, "Tyrn", 0)
			if err != nil {
				t.Fatalf("RecentAppearances failed: %v", err)
			}
			if len(all) != 4 {
				t.Fatalf("Expected 4 appearances, got %d", len(all))
			}
			for i := 1; i < len(all); i++ {
				if all[i].AppearanceDate.After(all[i-1].AppearanceDate) {
					t.Errorf("Appearances not newest first at %d: %v after %v", i, all[i].AppearanceDate, all[i-1].AppearanceDate)
				}
			}
			// Equal dates tie-break on insertion order.
			if all[0].ID < all[1].ID {
				t.Errorf("Expected later insert first on equal dates, got ids %d, %d", all[0].ID, all[1].ID)
			}

			top, err := s.RecentAppearances(ctx, "Tyrn", 2)
			if err != nil {
				t.Fatalf("RecentAppearances failed: %v", err)
			}
			if len(top) != 2 {
				t.Errorf("Expected 2 appearances with limit, got %d", len(top))
			}

			n, err := s.CountAppearances(ctx, "Tyrn")
			if err != nil {
				t.Fatalf("CountAppearances failed: %v", err)
			}
			if n != 4 {
				t.Errorf("Expected count 4, got %d", n)
			}
		})
	}
}

func TestStore_RecordAppearanceRejectsInvalid(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.RecordAppearance(ctx, "", day("2025-05-01 15:00"), models.SourceObserved); !errors.Is(err, models.ErrValidation) {
				t.Errorf("Expected ErrValidation for empty name, got %v", err)
			}
			if _, err := s.RecordAppearance(ctx, "Tyrn", time.Time{}, models.SourceObserved); !errors.Is(err, models.ErrValidation) {
				t.Errorf("Expected ErrValidation for zero time, got %v", err)
			}
			if _, err := s.RecordAppearance(ctx, "Tyrn", day("2025-05-01 15:00"), "guessed"); !errors.Is(err, models.ErrValidation) {
				t.Errorf("Expected ErrValidation for unknown source, got %v", err)
			}
		})
	}
}

func TestStore_DeleteMostRecent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.DeleteMostRecent(ctx, "Tyrn"); !errors.Is(err, models.ErrNotFound) {
				t.Fatalf("Expected ErrNotFound on empty log, got %v", err)
			}

			first, _ := s.RecordAppearance(ctx, "Tyrn", day("2025-05-01 15:00"), models.SourceObserved)
			if _, err := s.RecordAppearance(ctx, "Tyrn", day("2025-05-19 15:00"), models.SourcePredicted); err != nil {
				t.Fatalf("RecordAppearance failed: %v", err)
			}

			deleted, err := s.DeleteMostRecent(ctx, "Tyrn")
			if err != nil {
				t.Fatalf("DeleteMostRecent failed: %v", err)
			}
			if !deleted.AppearanceDate.Equal(day("2025-05-19 15:00")) || deleted.Source != models.SourcePredicted {
				t.Errorf("Deleted wrong appearance: %+v", deleted)
			}

			rest, _ := s.RecentAppearances(ctx, "Tyrn", 0)
			if len(rest) != 1 || rest[0].ID != first.ID {
				t.Errorf("Expected only the first appearance to remain, got %+v", rest)
			}
		})
	}
}

func TestStore_DeleteAll(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_ = s.UpsertConfig(ctx, models.BossConfig{BossName: "Tyrn", MinDays: 1, MaxDays: 30})
			_ = s.UpsertConfig(ctx, models.BossConfig{BossName: "Other", MinDays: 1, MaxDays: 30})
			_, _ = s.RecordAppearance(ctx, "Tyrn", day("2025-05-01 15:00"), models.SourceObserved)
			_, _ = s.RecordAppearance(ctx, "Other", day("2025-05-01 15:00"), models.SourceObserved)

			if err := s.DeleteAll(ctx, "Tyrn"); err != nil {
				t.Fatalf("DeleteAll failed: %v", err)
			}

			if _, err := s.GetConfig(ctx, "Tyrn"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("Expected config to be gone, got %v", err)
			}
			if n, _ := s.CountAppearances(ctx, "Tyrn"); n != 0 {
				t.Errorf("Expected no appearances, got %d", n)
			}
			if n, _ := s.CountAppearances(ctx, "Other"); n != 1 {
				t.Errorf("Expected other boss untouched, got %d appearances", n)
			}
		})
	}
}

func TestStore_RecordAppearanceIfAbsent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			start := day("2025-06-18 10:00")
			end := start.AddDate(0, 0, 1)

			a, inserted, err := s.RecordAppearanceIfAbsent(ctx, "Tyrn", day("2025-06-18 15:00"), models.SourcePredicted, start, end)
			if err != nil {
				t.Fatalf("RecordAppearanceIfAbsent failed: %v", err)
			}
			if !inserted || a == nil || a.ID == 0 {
				t.Fatalf("Expected insert, got inserted=%v appearance=%+v", inserted, a)
			}

			a, inserted, err = s.RecordAppearanceIfAbsent(ctx, "Tyrn", day("2025-06-19 09:00"), models.SourcePredicted, start, end)
			if err != nil {
				t.Fatalf("RecordAppearanceIfAbsent failed: %v", err)
			}
			if inserted || a != nil {
				t.Errorf("Expected no insert inside an occupied window, got %+v", a)
			}

			// The window end is exclusive.
			exists, err := s.ExistsInWindow(ctx, "Tyrn", end, end.AddDate(0, 0, 1))
			if err != nil {
				t.Fatalf("ExistsInWindow failed: %v", err)
			}
			if exists {
				t.Error("Expected next window to be empty")
			}

			if n, _ := s.CountAppearances(ctx, "Tyrn"); n != 1 {
				t.Errorf("Expected 1 appearance, got %d", n)
			}
		})
	}
}

func TestStore_RecordAppearanceIfAbsentConcurrent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			start := day("2025-06-18 10:00")
			end := start.AddDate(0, 0, 1)

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, _, err := s.RecordAppearanceIfAbsent(ctx, "Tyrn", day("2025-06-18 15:00"), models.SourcePredicted, start, end); err != nil {
						t.Errorf("RecordAppearanceIfAbsent failed: %v", err)
					}
				}()
			}
			wg.Wait()

			if n, _ := s.CountAppearances(ctx, "Tyrn"); n != 1 {
				t.Errorf("Expected exactly 1 appearance after concurrent writes, got %d", n)
			}
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "spawnoracle.db")
	ctx := context.Background()

	s, err := NewSQLite(path, 15)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	if _, err := s.RecordAppearance(ctx, "Tyrn", day("2025-05-01 17:51"), models.SourceImported); err != nil {
		t.Fatalf("RecordAppearance failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := NewSQLite(path, 15)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = s2.Close() }()

	got, err := s2.RecentAppearances(ctx, "Tyrn", 0)
	if err != nil {
		t.Fatalf("RecentAppearances failed: %v", err)
	}
	if len(got) != 1 || !got[0].AppearanceDate.Equal(day("2025-05-01 17:51")) || got[0].Source != models.SourceImported {
		t.Errorf("Unexpected appearances after reopen: %+v", got)
	}
}

func TestSQLite_SkipsUnparseableDates(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLite(":memory:", 15)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	for _, raw := range []string{"not a date", "2025-05-01"} {
		if _, err := s.db.Exec("INSERT INTO appearances (boss_name, appearance_date) VALUES (?, ?)", "Tyrn", raw); err != nil {
			t.Fatalf("raw insert failed: %v", err)
		}
	}

	got, err := s.RecentAppearances(ctx, "Tyrn", 0)
	if err != nil {
		t.Fatalf("RecentAppearances failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected the malformed row to be skipped, got %+v", got)
	}
	// Legacy date-only rows get the default appearance hour.
	if !got[0].AppearanceDate.Equal(day("2025-05-01 15:00")) {
		t.Errorf("Expected 2025-05-01 15:00, got %v", got[0].AppearanceDate)
	}
	if got[0].Source != models.SourceObserved {
		t.Errorf("Expected default source observed, got %q", got[0].Source)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "mysql"}); err == nil {
		t.Error("Expected error for unknown driver")
	}
}
