package bosses

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/spawnoracle/internal/models"
)

// CatalogEntry is one boss in the catalog file
type CatalogEntry struct {
	Name    string   `yaml:"name"`
	MinDays int      `yaml:"min_days"`
	MaxDays int      `yaml:"max_days"`
	History []string `yaml:"history,omitempty"` // past appearances, any gameday.ParseTimestamp format
}

// Catalog is the on-disk list of known bosses and their respawn windows
type Catalog struct {
	Bosses []CatalogEntry `yaml:"bosses"`
}

// Config returns the entry as a validated BossConfig with a canonical name
func (e CatalogEntry) Config() (models.BossConfig, error) {
	cfg := models.BossConfig{
		BossName: CanonicalName(e.Name),
		MinDays:  e.MinDays,
		MaxDays:  e.MaxDays,
	}
	if err := cfg.Validate(); err != nil {
		return models.BossConfig{}, fmt.Errorf("catalog entry %q: %w", e.Name, err)
	}
	return cfg, nil
}

// LoadCatalog reads a boss catalog from a YAML file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(c.Bosses))
	for _, e := range c.Bosses {
		cfg, err := e.Config()
		if err != nil {
			return nil, err
		}
		if seen[cfg.BossName] {
			return nil, fmt.Errorf("catalog lists %q twice", cfg.BossName)
		}
		seen[cfg.BossName] = true
	}

	return &c, nil
}
