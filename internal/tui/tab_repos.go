package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/tui/components"
	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
)

func (a App) renderReposTab(cw int) string {
	t := theme.Active
	stats := a.stats
	var b strings.Builder

	// Row 1: Metric cards
	metrics := []components.Metric{
		{Label: "Sessions", Value: cli.FormatNumber(int64(stats.TotalSessions)), Note: fmt.Sprintf("%.1f/day", stats.SessionsPerDay)},
		{Label: "Prompts", Value: cli.FormatNumber(int64(stats.TotalPrompts)), Note: fmt.Sprintf("%.1f/day", stats.PromptsPerDay)},
		{Label: "Repos", Value: cli.FormatNumber(int64(stats.Repos)), Note: fmt.Sprintf("%d agents", stats.Sources)},
		{Label: "Logs", Value: cli.FormatBytes(stats.TotalBytes), Note: fmt.Sprintf("%d active days", stats.ActiveDays)},
	}
	b.WriteString(components.MetricCardRow(metrics, cw))
	b.WriteString("\n")

	// Row 2: Daily sessions, oldest on the left
	if len(a.daily) > 0 {
		vals := make([]float64, len(a.daily))
		for i, d := range a.daily {
			vals[len(a.daily)-1-i] = float64(d.Sessions)
		}
		chartH := 8
		if a.isCompactLayout() {
			chartH = 6
		}
		b.WriteString(components.ContentCard(
			fmt.Sprintf("Daily Sessions (%s)", a.windowLabel()),
			components.BarChart(vals, chartDateLabels(a.daily), t.Blue, components.CardInnerWidth(cw), chartH),
			cw,
		))
		b.WriteString("\n")
	}

	// Row 3: Repos by sessions + agent split
	repoCard := components.ContentCard("Repos", a.renderRepoBars(cw), cw)
	if a.isCompactLayout() {
		b.WriteString(repoCard)
		return b.String()
	}
	halves := components.LayoutRow(cw, 2)
	b.WriteString(components.CardRow([]string{
		components.ContentCard("Repos", a.renderRepoBars(halves[0]), halves[0]),
		components.ContentCard("Agents", a.renderSourceBars(halves[1]), halves[1]),
	}))
	return b.String()
}

func (a App) renderRepoBars(w int) string {
	t := theme.Active
	innerW := components.CardInnerWidth(w)
	repos := a.repos
	if len(repos) == 0 {
		return lipgloss.NewStyle().Foreground(t.TextMuted).Render("No sessions in range")
	}

	byCount := make([]model.RepoStats, len(repos))
	copy(byCount, repos)
	sort.SliceStable(byCount, func(i, j int) bool { return byCount[i].Sessions > byCount[j].Sessions })
	if len(byCount) > 10 {
		byCount = byCount[:10]
	}

	labelW := min(24, innerW/3)
	barW := max(8, innerW-labelW-20)
	peak := float64(byCount[0].Sessions)
	colors := []lipgloss.Color{t.BlueBright, t.Cyan, t.Magenta, t.Yellow, t.Green}

	lines := make([]string, 0, len(byCount))
	for i, r := range byCount {
		name := r.Repo
		if name == "" {
			name = "(none)"
		}
		note := fmt.Sprintf("%d · %s", r.Sessions, cli.FormatAge(r.LastActive))
		lines = append(lines, components.HBar(name, float64(r.Sessions), peak, note, labelW, barW, colors[i%len(colors)]))
	}
	return strings.Join(lines, "\n")
}

func (a App) renderSourceBars(w int) string {
	t := theme.Active
	innerW := components.CardInnerWidth(w)

	counts := make(map[string]int)
	for _, d := range a.filtered {
		counts[d.Source]++
	}
	if len(counts) == 0 {
		return lipgloss.NewStyle().Foreground(t.TextMuted).Render("No sessions in range")
	}
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	total := float64(len(a.filtered))
	peak := float64(counts[names[0]])
	labelW := 10
	barW := max(8, innerW-labelW-14)
	lines := make([]string, 0, len(names))
	for _, n := range names {
		c := counts[n]
		note := fmt.Sprintf("%d %s", c, cli.FormatPercent(float64(c)/total))
		lines = append(lines, components.HBar(n, float64(c), peak, note, labelW, barW, t.Accent))
	}
	return strings.Join(lines, "\n")
}

// chartDateLabels builds labels for daily stats, oldest first, matching
// the reversed chart values.
func chartDateLabels(days []model.DailyStats) []string {
	n := len(days)
	labels := make([]string, n)
	for i, d := range days {
		idx := n - 1 - i
		if d.Date.Day() == 1 || idx == 0 || idx == n-1 {
			labels[idx] = d.Date.Format("Jan 2")
		} else {
			labels[idx] = d.Date.Format("2")
		}
	}
	return labels
}
