package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
)

// RenderStatusBar renders the bottom status bar: key hints on the left,
// state on the right. busy adds a refresh marker.
func RenderStatusBar(width int, hints, info string, busy bool) string {
	t := theme.Active

	hintStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	infoStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	busyStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface)

	left := hintStyle.Render(" " + hints)
	right := infoStyle.Render(info + " ")
	if busy {
		right = busyStyle.Render("↻ ") + right
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	fill := lipgloss.NewStyle().Background(t.Surface).Render(strings.Repeat(" ", gap))
	return lipgloss.NewStyle().MaxWidth(width).Render(left + fill + right)
}
