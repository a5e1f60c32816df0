package models

import (
	"errors"
	"testing"
	"time"
)

func TestBossConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  BossConfig
		wantErr bool
	}{
		{
			name:    "valid window",
			config:  BossConfig{BossName: "Zomba(East)", MinDays: 12, MaxDays: 25},
			wantErr: false,
		},
		{
			name:    "degenerate window",
			config:  BossConfig{BossName: "Dharalion", MinDays: 5, MaxDays: 5},
			wantErr: false,
		},
		{
			name:    "empty name",
			config:  BossConfig{BossName: "  ", MinDays: 1, MaxDays: 2},
			wantErr: true,
		},
		{
			name:    "inverted window",
			config:  BossConfig{BossName: "Tyrn(Darashia)", MinDays: 20, MaxDays: 10},
			wantErr: true,
		},
		{
			name:    "negative min",
			config:  BossConfig{BossName: "Tyrn(Darashia)", MinDays: -1, MaxDays: 10},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("BossConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestAppearanceValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		appearance Appearance
		wantErr    bool
	}{
		{"valid observed", Appearance{BossName: "Zomba", AppearanceDate: now, Source: SourceObserved}, false},
		{"valid predicted", Appearance{BossName: "Zomba", AppearanceDate: now, Source: SourcePredicted}, false},
		{"empty name", Appearance{AppearanceDate: now, Source: SourceObserved}, true},
		{"zero date", Appearance{BossName: "Zomba", Source: SourceObserved}, true},
		{"unknown source", Appearance{BossName: "Zomba", AppearanceDate: now, Source: "guess"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.appearance.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Appearance.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSpawnEstimateLabel(t *testing.T) {
	tests := []struct {
		name      string
		estimate  SpawnEstimate
		precision int
		expected  string
	}{
		{"no data", SpawnEstimate{BossName: "Zomba"}, 2, "N/A"},
		{"whole percent", SpawnEstimate{HasData: true, ChancePercent: 50}, 0, "50%"},
		{"two decimals", SpawnEstimate{HasData: true, ChancePercent: 7.142857}, 2, "7.14%"},
		{"extrapolated", SpawnEstimate{HasData: true, ChancePercent: 7.14, Extrapolated: true}, 2, "~7.14%"},
		{"zero chance with data", SpawnEstimate{HasData: true}, 0, "0%"},
	}

	for _, tt := range tests {
		if got := tt.estimate.Label(tt.precision); got != tt.expected {
			t.Errorf("%s: Label(%d) = %s, expected %s", tt.name, tt.precision, got, tt.expected)
		}
	}
}
