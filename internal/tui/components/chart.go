package components

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
)

var levels = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders a unicode sparkline from values.
func Sparkline(values []float64, color lipgloss.Color) string {
	if len(values) == 0 {
		return ""
	}
	t := theme.Active
	peak := maxOf(values)

	var buf strings.Builder
	buf.Grow(len(values) * 3)
	for _, v := range values {
		idx := 1 + int(v/peak*float64(len(levels)-2))
		if idx >= len(levels) {
			idx = len(levels) - 1
		}
		buf.WriteRune(levels[idx])
	}
	return lipgloss.NewStyle().Foreground(color).Background(t.Surface).Render(buf.String())
}

// BarChart renders vertical bars, one column group per value, with a
// y-axis scaled to a round ceiling and optional x labels under the axis.
// Values that do not fit the width are sampled down.
func BarChart(values []float64, labels []string, color lipgloss.Color, width, height int) string {
	if len(values) == 0 {
		return ""
	}
	if width < 15 || height < 3 {
		return Sparkline(values, color)
	}
	t := theme.Active

	ceiling := niceCeiling(maxOf(values))
	mid := (height + 1) / 2
	top := formatChartLabel(ceiling)
	midLabel := formatChartLabel(ceiling * float64(mid) / float64(height))
	yW := max(len(top), len(midLabel)) + 1

	plotW := width - yW - 1
	barW := 2
	if n := len(values); n*(barW+1) > plotW {
		values, labels = sample(values, labels, (plotW+1)/(barW+1))
	} else if n > 0 {
		barW = min(6, max(2, (plotW+1)/n-1))
	}
	n := len(values)
	axisLen := n*(barW+1) - 1

	axis := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	bars := lipgloss.NewStyle().Foreground(color).Background(t.Surface)
	blank := lipgloss.NewStyle().Background(t.Surface)

	var b strings.Builder
	for row := height; row >= 1; row-- {
		label := ""
		switch row {
		case height:
			label = top
		case mid:
			label = midLabel
		}
		b.WriteString(axis.Render(fmt.Sprintf("%*s│", yW, label)))

		lo := ceiling * float64(row-1) / float64(height)
		hi := ceiling * float64(row) / float64(height)
		for i, v := range values {
			if i > 0 {
				b.WriteString(blank.Render(" "))
			}
			cell := levels[0]
			switch {
			case v >= hi:
				cell = levels[len(levels)-1]
			case v > lo:
				idx := int((v - lo) / (hi - lo) * float64(len(levels)-1))
				cell = levels[max(1, idx)]
			}
			b.WriteString(bars.Render(strings.Repeat(string(cell), barW)))
		}
		b.WriteString("\n")
	}
	b.WriteString(axis.Render(fmt.Sprintf("%*s└", yW, "0") + strings.Repeat("─", axisLen)))

	if len(labels) == n {
		line := []rune(strings.Repeat(" ", axisLen))
		next := 0
		for i, lbl := range labels {
			pos := i * (barW + 1)
			if pos < next || pos+len(lbl) > axisLen {
				continue
			}
			copy(line[pos:], []rune(lbl))
			next = pos + len(lbl) + 1
		}
		b.WriteString("\n")
		b.WriteString(blank.Render(strings.Repeat(" ", yW+1)))
		b.WriteString(axis.Render(strings.TrimRight(string(line), " ")))
	}
	return b.String()
}

// HBar renders one horizontal bar row: a label padded to labelW, a bar
// scaled against peak, and the value text.
func HBar(label string, value, peak float64, valueText string, labelW, barW int, color lipgloss.Color) string {
	t := theme.Active
	if peak <= 0 {
		peak = 1
	}
	filled := int(math.Round(value / peak * float64(barW)))
	if filled > barW {
		filled = barW
	}
	if value > 0 && filled == 0 {
		filled = 1
	}

	labelStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	barStyle := lipgloss.NewStyle().Foreground(color).Background(t.Surface)
	emptyStyle := lipgloss.NewStyle().Foreground(t.SurfaceBright).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)

	name := runewidth.FillRight(runewidth.Truncate(label, labelW, "…"), labelW)
	return labelStyle.Render(name+" ") +
		barStyle.Render(strings.Repeat("█", filled)) +
		emptyStyle.Render(strings.Repeat("░", barW-filled)) +
		valueStyle.Render(" "+valueText)
}

func maxOf(values []float64) float64 {
	peak := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		return 1
	}
	return peak
}

// niceCeiling rounds v up to 1, 2 or 5 times a power of ten.
func niceCeiling(v float64) float64 {
	if v <= 1 {
		return 1
	}
	base := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 5, 10} {
		if v <= m*base {
			return m * base
		}
	}
	return 10 * base
}

// sample keeps n evenly spaced values, and their labels when present.
func sample(values []float64, labels []string, n int) ([]float64, []string) {
	if n < 2 {
		n = 2
	}
	if n >= len(values) {
		return values, labels
	}
	outV := make([]float64, n)
	var outL []string
	if len(labels) == len(values) {
		outL = make([]string, n)
	}
	for i := range outV {
		src := i * (len(values) - 1) / (n - 1)
		outV[i] = values[src]
		if outL != nil {
			outL[i] = labels[src]
		}
	}
	return outV, outL
}

func formatChartLabel(v float64) string {
	switch {
	case v >= 1e6:
		return fmt.Sprintf("%.0fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.0fk", v/1e3)
	case v >= 1 || v == 0:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.1f", v)
	}
}
