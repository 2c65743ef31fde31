package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
)

// ProgressBar renders a block progress bar with percentage.
func ProgressBar(pct float64, width int) string {
	t := theme.Active
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	var barColor lipgloss.Color
	switch {
	case pct >= 0.8:
		barColor = t.AccentBright
	case pct >= 0.5:
		barColor = t.Accent
	default:
		barColor = t.Cyan
	}

	filledStyle := lipgloss.NewStyle().Foreground(barColor).Background(t.Surface)
	emptyStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	pctStyle := lipgloss.NewStyle().Foreground(barColor).Background(t.Surface).Bold(true)
	spaceStyle := lipgloss.NewStyle().Background(t.Surface)

	var b strings.Builder
	b.WriteString(filledStyle.Render(strings.Repeat("█", filled)))
	b.WriteString(emptyStyle.Render(strings.Repeat("░", width-filled)))

	return b.String() + spaceStyle.Render(" ") + pctStyle.Render(fmt.Sprintf("%.0f%%", pct*100))
}

// PhaseColor returns the colour for a search phase: the indexed tier is
// green, raw-file tiers shade toward orange as they get more expensive.
func PhaseColor(p model.Phase) lipgloss.Color {
	t := theme.Active
	switch p {
	case model.PhaseIndexed, model.PhaseDone:
		return t.Green
	case model.PhaseLegacySmall, model.PhaseLegacyLarge:
		return t.Blue
	case model.PhaseUnindexedSmall, model.PhaseUnindexedLarge:
		return t.Yellow
	case model.PhaseToolOutputsSmall, model.PhaseToolOutputsLarge:
		return t.Orange
	default:
		return t.TextDim
	}
}

// PhaseBar renders a labeled bar for a search's progress through the
// current tier, with the scanned/total file counts.
func PhaseBar(p model.SearchProgress, labelW, barWidth int) string {
	t := theme.Active
	color := PhaseColor(p.Phase)

	bar := progress.New(
		progress.WithSolidFill(string(color)),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	labelStyle := lipgloss.NewStyle().Foreground(color).Background(t.Surface).Bold(true)
	countStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	spaceStyle := lipgloss.NewStyle().Background(t.Surface)

	scanned := p.ScannedSmall + p.ScannedLarge
	total := p.TotalSmall + p.TotalLarge
	return labelStyle.Render(fmt.Sprintf("%-*s", labelW, p.Phase)) +
		spaceStyle.Render(" ") +
		bar.ViewAs(p.Fraction()) +
		spaceStyle.Render(" ") +
		countStyle.Render(fmt.Sprintf("%d/%d", scanned, total))
}
