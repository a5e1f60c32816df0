package bosses

import (
	"sort"

	"github.com/rewired-gh/spawnoracle/internal/models"
)

// CategoryRules maps a boss base name (see BaseName) to the category it folds into
type CategoryRules map[string]string

// RaidCategories groups raid bosses that are the same logical spawn event under
// different in-game names.
var RaidCategories = CategoryRules{
	"chizzoron the distorter": "Zzaion",
	"zulazza the corruptor":   "Zzaion",
	"zomba":                   "Zomba",
	"the blightfather":        "Blightfather",
	"grand mother foulscale":  "Foulscale",
}

// Group is the folded estimate of one category
type Group struct {
	Name          string   `json:"name"`
	ChancePercent float64  `json:"chance_percent"`
	Extrapolated  bool     `json:"extrapolated"`
	HasData       bool     `json:"has_data"`
	Members       []string `json:"members"`
}

// Estimate returns the group as a SpawnEstimate named after the category
func (g Group) Estimate() models.SpawnEstimate {
	return models.SpawnEstimate{
		BossName:      g.Name,
		ChancePercent: g.ChancePercent,
		Extrapolated:  g.Extrapolated,
		HasData:       g.HasData,
	}
}

// SeparateByCategory splits estimates into those without a category and one group per
// category, keeping the highest chance among each category's members. Estimates without
// data only count when no member has data. Groups are sorted by name.
func SeparateByCategory(estimates []models.SpawnEstimate, rules CategoryRules) ([]models.SpawnEstimate, []Group) {
	normal := make([]models.SpawnEstimate, 0, len(estimates))
	groups := make(map[string]*Group)

	for _, est := range estimates {
		category, ok := rules[BaseName(est.BossName)]
		if !ok {
			normal = append(normal, est)
			continue
		}

		g, exists := groups[category]
		if !exists {
			g = &Group{Name: category}
			groups[category] = g
		}
		g.Members = append(g.Members, est.BossName)

		if !est.HasData {
			continue
		}
		if !g.HasData || est.ChancePercent > g.ChancePercent {
			g.ChancePercent = est.ChancePercent
			g.Extrapolated = est.Extrapolated
			g.HasData = true
		}
	}

	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})

	return normal, out
}
