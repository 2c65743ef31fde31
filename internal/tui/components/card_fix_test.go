package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
)

func init() {
	// Force TrueColor output so ANSI codes are generated in tests
	lipgloss.SetColorProfile(termenv.TrueColor)
}

func TestCardRowBackgroundFill(t *testing.T) {
	theme.SetActive("flexoki-dark")

	shortCard := ContentCard("Short", "Content", 22)
	tallCard := ContentCard("Tall", "Line 1\nLine 2\nLine 3\nLine 4\nLine 5", 22)
	shortLines := lipgloss.Height(shortCard)
	tallLines := lipgloss.Height(tallCard)
	require.Less(t, shortLines, tallLines)

	lines := strings.Split(CardRow([]string{tallCard, shortCard}), "\n")
	assert.Len(t, lines, tallLines)
	for i := shortLines; i < len(lines); i++ {
		assert.Contains(t, lines[i], "\x1b[", "line %d below the short card is unstyled", i)
	}
}

func TestCardRowWidthConsistency(t *testing.T) {
	theme.SetActive("flexoki-dark")

	row := CardRow([]string{
		ContentCard("Tall", "A\nB\nC\nD\nE\nF", 20),
		ContentCard("Short", "A", 30),
	})
	for i, line := range strings.Split(row, "\n") {
		assert.Equal(t, 50, lipgloss.Width(line), "line %d", i)
	}
}

func TestLayoutRowSumsToTotal(t *testing.T) {
	widths := LayoutRow(101, 4)
	assert.Equal(t, []int{26, 25, 25, 25}, widths)
	assert.Nil(t, LayoutRow(10, 0))
}

func TestMetricCardRowWidth(t *testing.T) {
	row := MetricCardRow([]Metric{
		{Label: "Sessions", Value: "12"},
		{Label: "Repos", Value: "3", Note: "2 agents"},
	}, 60)
	assert.Equal(t, 60, lipgloss.Width(row))
	assert.Contains(t, row, "Sessions")
}

func TestTabWidthsMatchRender(t *testing.T) {
	theme.SetActive("flexoki-dark")
	for active := range Tabs {
		bar := RenderTabBar(active, 200)
		want := 0
		for i, tab := range Tabs {
			want += TabVisualWidth(tab, i == active)
		}
		want += len(Tabs) - 1
		want-- // the last tab's trailing pad is trimmed with the fill
		assert.Equal(t, want, lipgloss.Width(strings.TrimRight(stripANSI(bar), " ")), "active=%d", active)
	}
	assert.Equal(t, 2, TabIdxByKey('r'))
	assert.Equal(t, -1, TabIdxByKey('z'))
}

func TestSparklineScales(t *testing.T) {
	assert.Equal(t, "▁█", stripANSI(Sparkline([]float64{0, 4}, theme.Active.Blue)))
	assert.Empty(t, Sparkline(nil, theme.Active.Blue))
}

func TestBarChartHeightAndLabels(t *testing.T) {
	chart := BarChart([]float64{1, 5, 3}, []string{"Mon", "Tue", "Wed"}, theme.Active.Blue, 40, 4)
	lines := strings.Split(stripANSI(chart), "\n")
	require.Len(t, lines, 6) // 4 rows, axis, labels
	assert.Contains(t, lines[0], "5")
	assert.Contains(t, lines[5], "Mon")
}

func TestHBar(t *testing.T) {
	out := stripANSI(HBar("alpha", 5, 10, "5", 8, 10, theme.Active.Green))
	assert.Equal(t, "alpha    █████░░░░░ 5", out)
	out = stripANSI(HBar("tiny", 0.1, 100, "0", 4, 10, theme.Active.Green))
	assert.Contains(t, out, "█░", "non-zero values always show")
}

func TestPhaseBar(t *testing.T) {
	out := stripANSI(PhaseBar(model.SearchProgress{
		Phase:        model.PhaseUnindexedSmall,
		ScannedSmall: 3,
		TotalSmall:   4,
	}, 18, 10))
	assert.Contains(t, out, "unindexed-small")
	assert.Contains(t, out, "3/4")
}

func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEsc = true
		case inEsc:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEsc = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
