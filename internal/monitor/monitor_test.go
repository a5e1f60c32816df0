package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/engine"
	"github.com/rewired-gh/spawnoracle/internal/models"
	"github.com/rewired-gh/spawnoracle/internal/storage"
)

// fakeEstimator returns canned estimates
type fakeEstimator struct {
	estimates []models.SpawnEstimate
	errs      []engine.EvaluationError
	err       error
}

func (f fakeEstimator) ChanceAll(ctx context.Context) ([]models.SpawnEstimate, []engine.EvaluationError, error) {
	return f.estimates, f.errs, f.err
}

func est(name string, chance float64) models.SpawnEstimate {
	return models.SpawnEstimate{BossName: name, ChancePercent: chance, HasData: true}
}

func TestRunCycle(t *testing.T) {
	fake := fakeEstimator{
		estimates: []models.SpawnEstimate{
			est("Tyrn", 20),
			est("Fleabringer(NW)", 100),
			est("Chizzoron the Distorter", 10),
			{BossName: "Zulazza the Corruptor", ChancePercent: 50, HasData: true, Extrapolated: true},
			{BossName: "Dharalion", HasData: false},
		},
		errs: []engine.EvaluationError{{BossName: "Broken", Err: errors.New("boom")}},
	}
	mon := New(fake, bosses.RaidCategories, 50)

	cycle, err := mon.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if _, err := uuid.Parse(cycle.ID); err != nil {
		t.Errorf("Expected UUID cycle ID, got %q", cycle.ID)
	}
	if len(cycle.Normal) != 3 {
		t.Errorf("Expected 3 bosses outside categories, got %d", len(cycle.Normal))
	}
	if len(cycle.Groups) != 1 || cycle.Groups[0].Name != "Zzaion" {
		t.Fatalf("Expected the Zzaion group, got %+v", cycle.Groups)
	}
	if len(cycle.Errors) != 1 {
		t.Errorf("Expected 1 evaluation error, got %d", len(cycle.Errors))
	}

	if len(cycle.Due) != 2 {
		t.Fatalf("Expected 2 due entries, got %+v", cycle.Due)
	}
	if cycle.Due[0].BossName != "Fleabringer(NW)" || cycle.Due[1].BossName != "Zzaion" {
		t.Errorf("Unexpected due order: %s, %s", cycle.Due[0].BossName, cycle.Due[1].BossName)
	}
	if !cycle.Due[1].Extrapolated {
		t.Error("Expected group estimate to keep the extrapolated flag")
	}
}

func TestRunCycle_FatalError(t *testing.T) {
	mon := New(fakeEstimator{err: errors.New("store offline")}, bosses.RaidCategories, 50)
	if _, err := mon.RunCycle(context.Background()); err == nil {
		t.Error("Expected error when evaluation fails")
	}
}

func TestRunCycle_WithEngine(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLite(":memory:", 15)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	clock := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	e, err := engine.New(store, engine.Options{
		DayStartHour:          10,
		DefaultAppearanceHour: 15,
		HistoryWindow:         25,
		Precision:             2,
		Location:              time.UTC,
		Now:                   func() time.Time { return clock },
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}

	if _, err := e.ConfigureBoss(ctx, "Tyrn", 1, 10); err != nil {
		t.Fatalf("ConfigureBoss failed: %v", err)
	}
	if _, err := e.RecordKill(ctx, "Tyrn", time.Date(2025, 6, 20, 15, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("RecordKill failed: %v", err)
	}

	cycle, err := New(e, bosses.RaidCategories, 100).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(cycle.Due) != 1 || cycle.Due[0].ChancePercent != 100 {
		t.Errorf("Expected Tyrn due at 100%%, got %+v", cycle.Due)
	}
}

func TestSelectDue(t *testing.T) {
	estimates := []models.SpawnEstimate{
		est("B", 50),
		est("A", 50),
		est("C", 49.99),
		est("D", 100),
		{BossName: "E", HasData: false},
	}

	due := SelectDue(estimates, 50)
	if len(due) != 3 {
		t.Fatalf("Expected 3 due bosses, got %d", len(due))
	}
	want := []string{"D", "A", "B"}
	for i, name := range want {
		if due[i].BossName != name {
			t.Errorf("Expected %s at %d, got %s", name, i, due[i].BossName)
		}
	}

	if SelectDue(nil, 50) == nil {
		t.Error("SelectDue should never return nil")
	}
}

func TestFilterRecentlyNotified_SuppressesDuplicates(t *testing.T) {
	mon := New(fakeEstimator{}, nil, 50)
	due := []models.SpawnEstimate{est("Tyrn", 50)}

	mon.RecordNotified(due)

	// Immediately filter with a long cooldown, should be suppressed
	if filtered := mon.FilterRecentlyNotified(due, time.Hour); len(filtered) != 0 {
		t.Errorf("Expected 0 bosses after suppressing duplicate, got %d", len(filtered))
	}
}

// A boss whose chance rose since the last alert is sent again inside the cooldown.
func TestFilterRecentlyNotified_AllowsRisingChance(t *testing.T) {
	mon := New(fakeEstimator{}, nil, 50)
	mon.RecordNotified([]models.SpawnEstimate{est("Tyrn", 50)})

	filtered := mon.FilterRecentlyNotified([]models.SpawnEstimate{est("Tyrn", 100)}, time.Hour)
	if len(filtered) != 1 {
		t.Errorf("Expected 1 boss (chance rose), got %d", len(filtered))
	}
}

func TestFilterRecentlyNotified_NeverNil(t *testing.T) {
	mon := New(fakeEstimator{}, nil, 50)
	if mon.FilterRecentlyNotified([]models.SpawnEstimate{}, time.Hour) == nil {
		t.Error("FilterRecentlyNotified should never return nil")
	}
}

func TestFilterRecentlyNotified_PassesAfterCooldown(t *testing.T) {
	mon := New(fakeEstimator{}, nil, 50)

	// Manually set SentAt to 2 hours ago
	mon.notifiedBosses["Tyrn"] = notifiedRecord{
		ChancePercent: 50,
		SentAt:        time.Now().Add(-2 * time.Hour),
	}

	// Cooldown is 1 hour, should pass now
	if filtered := mon.FilterRecentlyNotified([]models.SpawnEstimate{est("Tyrn", 50)}, time.Hour); len(filtered) != 1 {
		t.Errorf("Expected 1 boss after cooldown expired, got %d", len(filtered))
	}
}
