package telegram

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

// freshness maps the time since a boss was last checked in-game to a status square
func freshness(lastChecked *time.Time, now time.Time) string {
	if lastChecked == nil {
		return "🌸"
	}
	d := now.Sub(*lastChecked)
	switch {
	case d < time.Minute:
		return "🟩"
	case d < 5*time.Minute:
		return "⬜"
	case d < 15*time.Minute:
		return "🟨"
	case d < 30*time.Minute:
		return "🟧"
	case d < time.Hour:
		return "🟥"
	default:
		return "🌸"
	}
}

const freshnessLegend = "🟩 <1m \\| ⬜ 1\\-5m \\| 🟨 5\\-15m \\| 🟧 15\\-30m \\| 🟥 30m\\-1h \\| 🌸 1h\\+ or never"

// formatTable renders the chance table: bosses with data sorted by chance
// descending, then raid categories, then bosses without data.
func formatTable(normal []models.SpawnEstimate, groups []bosses.Group, precision int, now time.Time) string {
	var b strings.Builder
	b.WriteString("📋 *Boss spawn chances*\n")
	b.WriteString(fmt.Sprintf("📅 %s\n\n", escapeMarkdownV2(now.Format("2006-01-02 15:04"))))

	withData := make([]models.SpawnEstimate, 0, len(normal))
	var noData []string
	for _, est := range normal {
		if est.HasData {
			withData = append(withData, est)
		} else {
			noData = append(noData, est.BossName)
		}
	}
	sort.SliceStable(withData, func(i, j int) bool {
		if withData[i].ChancePercent != withData[j].ChancePercent {
			return withData[i].ChancePercent > withData[j].ChancePercent
		}
		return withData[i].BossName < withData[j].BossName
	})

	if len(withData) == 0 && len(groups) == 0 && len(noData) == 0 {
		b.WriteString("No bosses configured\\.\n")
		return b.String()
	}

	for _, est := range withData {
		line := fmt.Sprintf("%s %s: *%s*", freshness(est.LastChecked, now),
			escapeMarkdownV2(est.BossName), escapeMarkdownV2(est.Label(precision)))
		if est.LastChecker != "" {
			line += " \\(" + escapeMarkdownV2(est.LastChecker) + "\\)"
		}
		b.WriteString(line + "\n")
	}

	if len(groups) > 0 {
		parts := make([]string, 0, len(groups))
		for _, g := range groups {
			parts = append(parts, fmt.Sprintf("%s %s", escapeMarkdownV2(g.Name), escapeMarkdownV2(g.Estimate().Label(precision))))
		}
		b.WriteString("\n⚔️ Raids: " + strings.Join(parts, " \\| ") + "\n")
	}

	if len(noData) > 0 {
		sort.Strings(noData)
		escaped := make([]string, len(noData))
		for i, n := range noData {
			escaped[i] = escapeMarkdownV2(n)
		}
		b.WriteString("\n❔ No data: " + strings.Join(escaped, ", ") + "\n")
	}

	b.WriteString("\n" + freshnessLegend + "\n")
	return b.String()
}

// formatAlert renders bosses that reached the alert threshold
func formatAlert(due []models.SpawnEstimate, precision int, now time.Time) string {
	var b strings.Builder
	b.WriteString("🚨 *Bosses likely to spawn today*\n\n")
	b.WriteString(fmt.Sprintf("📅 %s\n\n", escapeMarkdownV2(now.Format("2006-01-02 15:04"))))

	for i, est := range due {
		b.WriteString(fmt.Sprintf("%d\\. %s: *%s*", i+1, escapeMarkdownV2(est.BossName), escapeMarkdownV2(est.Label(precision))))
		if est.Extrapolated {
			b.WriteString(" \\(extrapolated\\)")
		}
		b.WriteString(fmt.Sprintf("\n   ⏱ %s since last appearance\n", escapeMarkdownV2(formatDays(est.DaysElapsed))))
	}
	return b.String()
}

// formatChance renders a single estimate
func formatChance(est models.SpawnEstimate, precision int, now time.Time) string {
	if !est.HasData {
		return fmt.Sprintf("%s: *N/A* \\(no recorded appearances\\)", escapeMarkdownV2(est.BossName))
	}
	msg := fmt.Sprintf("%s: *%s*\n⏱ %s since last appearance",
		escapeMarkdownV2(est.BossName), escapeMarkdownV2(est.Label(precision)), escapeMarkdownV2(formatDays(est.DaysElapsed)))
	if est.Extrapolated {
		msg += "\n〰️ overdue, extrapolated from the mean interval"
	}
	if est.LastChecked != nil {
		msg += fmt.Sprintf("\n%s checked %s ago", freshness(est.LastChecked, now),
			escapeMarkdownV2(formatDuration(now.Sub(*est.LastChecked))))
		if est.LastChecker != "" {
			msg += " by " + escapeMarkdownV2(est.LastChecker)
		}
	}
	return msg
}

// formatAppearances renders recent appearances, newest first
func formatAppearances(name string, list []models.Appearance, loc *time.Location) string {
	if len(list) == 0 {
		return fmt.Sprintf("No appearances recorded for %s\\.", escapeMarkdownV2(name))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗓 Last appearances of %s:\n", escapeMarkdownV2(name)))
	for i, a := range list {
		b.WriteString(fmt.Sprintf("%d\\. %s \\(%s\\)\n", i+1,
			escapeMarkdownV2(a.AppearanceDate.In(loc).Format("2006-01-02 15:04")), escapeMarkdownV2(a.Source)))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

func formatDays(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if days := int(d.Hours()) / 24; days >= 1 {
		return fmt.Sprintf("%dd", days)
	}
	if hours := int(d.Hours()); hours >= 1 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
