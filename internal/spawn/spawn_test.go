package spawn

import (
	"math"
	"testing"
	"time"

	"github.com/rewired-gh/spawnoracle/internal/models"
)

var testParams = Params{DayStartHour: 10, DefaultHour: 15, HistoryWindow: 25}

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func history(dates ...time.Time) []models.Appearance {
	out := make([]models.Appearance, len(dates))
	for i, d := range dates {
		out[i] = models.Appearance{ID: int64(len(dates) - i), BossName: "Tyrn(Darashia)", AppearanceDate: d, Source: models.SourceObserved}
	}
	return out
}

func TestMeanInterval(t *testing.T) {
	tests := []struct {
		name     string
		history  []models.Appearance
		expected float64
	}{
		{"empty", nil, 0},
		{"single record", history(at(2025, 2, 22, 17)), 0},
		{
			name:     "time of day is ignored",
			history:  history(at(2025, 2, 22, 23), at(2025, 2, 7, 1)),
			expected: 15,
		},
		{
			name:     "mean of three intervals",
			history:  history(at(2025, 3, 1, 12), at(2025, 2, 19, 12), at(2025, 2, 5, 12), at(2025, 1, 20, 12)),
			expected: (10 + 14 + 16) / 3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MeanInterval(tt.history)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("MeanInterval() = %f, expected %f", got, tt.expected)
			}
		})
	}
}

func TestChance_Window(t *testing.T) {
	const minDays, maxDays = 12, 25

	for d := -3; d < minDays; d++ {
		if got := Chance(d, minDays, maxDays); got != 0 {
			t.Errorf("Chance(%d) = %f, expected 0 below min", d, got)
		}
	}
	for d := maxDays; d < maxDays+10; d++ {
		if got := Chance(d, minDays, maxDays); got != 100 {
			t.Errorf("Chance(%d) = %f, expected 100 at or beyond max", d, got)
		}
	}

	prev := -1.0
	for d := minDays; d < maxDays; d++ {
		got := Chance(d, minDays, maxDays)
		if got < prev {
			t.Errorf("Chance not monotonic: Chance(%d) = %f < %f", d, got, prev)
		}
		if got < 0 || got > 100 {
			t.Errorf("Chance(%d) = %f out of range", d, got)
		}
		prev = got
	}

	if got := Chance(24, minDays, maxDays); got != 50 {
		t.Errorf("Chance(24) = %f, expected 50", got)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v         float64
		precision int
		expected  float64
	}{
		{7.142857, 2, 7.14},
		{7.142857, 0, 7},
		{66.666, 1, 66.7},
		{50, -1, 50},
	}
	for _, tt := range tests {
		if got := Round(tt.v, tt.precision); got != tt.expected {
			t.Errorf("Round(%f, %d) = %f, expected %f", tt.v, tt.precision, got, tt.expected)
		}
	}
}

func TestCompute_NoData(t *testing.T) {
	cfg := models.BossConfig{BossName: "Zomba", MinDays: 12, MaxDays: 25}
	res := Compute(cfg, nil, at(2025, 6, 30, 12), testParams)
	if res.HasData {
		t.Error("expected no-data sentinel")
	}
	if res.ChancePercent != 0 || res.Predicted != nil {
		t.Errorf("unexpected result for empty history: %+v", res)
	}
}

func TestCompute_WithinWindow(t *testing.T) {
	cfg := models.BossConfig{BossName: "Tyrn(Darashia)", MinDays: 12, MaxDays: 25}
	now := at(2025, 6, 30, 12)

	tests := []struct {
		name        string
		last        time.Time
		wantElapsed int
		wantChance  float64
	}{
		{"fresh kill", at(2025, 6, 25, 18), 5, 0},
		{"at min", at(2025, 6, 18, 18), 12, 100.0 / 14},
		{"one day before max", at(2025, 6, 6, 18), 24, 50},
		{"exactly max", at(2025, 6, 5, 18), 25, 100},
		{"kill before day start counts for previous day", at(2025, 6, 7, 3), 24, 50},
		{"inconsistent future record", at(2025, 7, 3, 12), -3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Compute(cfg, history(tt.last), now, testParams)
			if res.DaysElapsed != tt.wantElapsed {
				t.Errorf("DaysElapsed = %d, expected %d", res.DaysElapsed, tt.wantElapsed)
			}
			if math.Abs(res.ChancePercent-tt.wantChance) > 1e-9 {
				t.Errorf("ChancePercent = %f, expected %f", res.ChancePercent, tt.wantChance)
			}
			if res.Extrapolated || res.Predicted != nil {
				t.Errorf("did not expect extrapolation: %+v", res)
			}
		})
	}
}

func TestCompute_Extrapolation(t *testing.T) {
	cfg := models.BossConfig{BossName: "Tyrn(Darashia)", MinDays: 12, MaxDays: 25}
	now := at(2025, 6, 30, 12)
	last := now.AddDate(0, 0, -30).Add(3 * time.Hour) // 2025-05-31 15:00

	h := history(last, last.AddDate(0, 0, -18), last.AddDate(0, 0, -36))
	res := Compute(cfg, h, now, testParams)

	if !res.Extrapolated {
		t.Fatal("expected extrapolated result")
	}
	if res.DaysElapsed != 12 {
		t.Errorf("DaysElapsed = %d, expected 12", res.DaysElapsed)
	}
	if got := Round(res.ChancePercent, 2); got != 7.14 {
		t.Errorf("ChancePercent = %f, expected 7.14", got)
	}
	if res.Predicted == nil {
		t.Fatal("expected a predicted appearance to persist")
	}
	if want := at(2025, 6, 18, 15); !res.Predicted.Equal(want) {
		t.Errorf("Predicted = %v, expected %v", res.Predicted, want)
	}
	if want := at(2025, 6, 18, 0); !res.PredictedDay.Equal(want) {
		t.Errorf("PredictedDay = %v, expected %v", res.PredictedDay, want)
	}
}

func TestCompute_PredictedRecordIsStable(t *testing.T) {
	cfg := models.BossConfig{BossName: "Tyrn(Darashia)", MinDays: 12, MaxDays: 25}
	now := at(2025, 6, 30, 12)
	last := at(2025, 5, 31, 15)
	h := history(last, last.AddDate(0, 0, -18), last.AddDate(0, 0, -36))

	first := Compute(cfg, h, now, testParams)
	if first.Predicted == nil {
		t.Fatal("expected prediction")
	}

	predicted := models.Appearance{ID: 99, BossName: cfg.BossName, AppearanceDate: *first.Predicted, Source: models.SourcePredicted}
	second := Compute(cfg, append([]models.Appearance{predicted}, h...), now, testParams)

	if second.Predicted != nil {
		t.Errorf("second evaluation should not extrapolate again: %+v", second)
	}
	if second.ChancePercent != first.ChancePercent || second.DaysElapsed != first.DaysElapsed {
		t.Errorf("second evaluation differs: first=%+v second=%+v", first, second)
	}
	if !second.Extrapolated {
		t.Error("a predicted newest record should still be reported as extrapolated")
	}
}

func TestCompute_MultiStepExtrapolation(t *testing.T) {
	cfg := models.BossConfig{BossName: "Tyrn(Darashia)", MinDays: 2, MaxDays: 8}
	now := at(2025, 6, 30, 12)
	last := at(2025, 6, 10, 15) // 20 days ago
	h := history(last, last.AddDate(0, 0, -5), last.AddDate(0, 0, -10))

	res := Compute(cfg, h, now, testParams)
	// mean 5: one step leaves 15 > 8, three steps leave 5
	if res.DaysElapsed != 5 {
		t.Errorf("DaysElapsed = %d, expected 5", res.DaysElapsed)
	}
	if res.DaysElapsed > cfg.MaxDays {
		t.Error("extrapolation must end inside the window")
	}
}

func TestCompute_InsufficientHistoryFallback(t *testing.T) {
	cfg := models.BossConfig{BossName: "Tyrn(Darashia)", MinDays: 12, MaxDays: 25}
	now := at(2025, 6, 30, 12)
	h := history(at(2025, 5, 31, 15)) // 30 days, single record

	res := Compute(cfg, h, now, testParams)
	if !res.Extrapolated || res.Predicted == nil {
		t.Fatalf("expected fallback extrapolation, got %+v", res)
	}
	// Fallback interval is max days: the prediction lands 25 days after the last record,
	// leaving 5 elapsed days, which is below the window.
	if res.DaysElapsed != 5 || res.ChancePercent != 0 {
		t.Errorf("unexpected fallback result %+v", res)
	}

	strict := testParams
	strict.StrictHistory = true
	res = Compute(cfg, h, now, strict)
	if res.HasData || res.Predicted != nil {
		t.Errorf("strict history should yield N/A, got %+v", res)
	}
}

func TestCompute_DegenerateWindow(t *testing.T) {
	cfg := models.BossConfig{BossName: "Dharalion", MinDays: 5, MaxDays: 5}
	now := at(2025, 6, 30, 12)

	for _, daysAgo := range []int{0, 2, 10} {
		res := Compute(cfg, history(now.AddDate(0, 0, -daysAgo)), now, testParams)
		if res.ChancePercent != 100 {
			t.Errorf("%d days ago: ChancePercent = %f, expected 100", daysAgo, res.ChancePercent)
		}
		if res.Predicted != nil {
			t.Errorf("%d days ago: degenerate window must not extrapolate", daysAgo)
		}
	}
}

func TestCompute_HistoryWindowLimitsSample(t *testing.T) {
	cfg := models.BossConfig{BossName: "Tyrn(Darashia)", MinDays: 12, MaxDays: 25}
	now := at(2025, 6, 30, 12)
	last := at(2025, 5, 31, 15)
	// newest interval 18, older ones 40
	h := history(last, last.AddDate(0, 0, -18), last.AddDate(0, 0, -58), last.AddDate(0, 0, -98))

	p := testParams
	p.HistoryWindow = 2
	res := Compute(cfg, h, now, p)
	if res.DaysElapsed != 12 {
		t.Errorf("DaysElapsed = %d, expected 12 with a two-record window", res.DaysElapsed)
	}
}
