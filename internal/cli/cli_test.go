package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumber(tt.in))
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "10 MiB", FormatBytes(10<<20))
	assert.Equal(t, "0 B", FormatBytes(0))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "850ms", FormatElapsed(850*time.Millisecond))
	assert.Equal(t, "3.2s", FormatElapsed(3200*time.Millisecond))
	assert.Equal(t, "2m5s", FormatElapsed(125*time.Second))
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "-", FormatAge(time.Time{}))
	assert.Contains(t, FormatAge(time.Now().Add(-3*time.Hour)), "hours ago")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello world", Truncate("hello\n  world", 20))
	assert.Equal(t, "hell…", Truncate("hello world", 5))
	// Wide runes take two cells.
	assert.Equal(t, "日本…", Truncate("日本語テキスト", 5))
	assert.Equal(t, "", Truncate("x", 0))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0199a1b2", ShortID("0199a1b2-0000-7000"))
	assert.Equal(t, "abc", ShortID("abc"))
}

func TestHighlight(t *testing.T) {
	text := "find the needle in the needle stack"
	out := Highlight(text, []model.Span{{Start: 9, End: 15}, {Start: 23, End: 29}})
	assert.True(t, strings.HasPrefix(out, "find the "))
	assert.True(t, strings.HasSuffix(out, " stack"))
	assert.Equal(t, 2, strings.Count(out, "needle"))

	assert.Equal(t, text, Highlight(text, nil))
	// Clipped span does not panic.
	assert.NotPanics(t, func() { Highlight("abc", []model.Span{{Start: 2, End: 10}}) })
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Repo", "Sessions"},
		Rows: [][]string{
			{"alpha", "12"},
			{"---"},
			{"日本", "3"},
		},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 7)
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "日本")
	assert.Empty(t, RenderTable(Table{}))
}

func TestRenderProgressBar(t *testing.T) {
	assert.Empty(t, RenderProgressBar(1, 0, 10))
	assert.Contains(t, RenderProgressBar(1500, 3000, 10), "1,500/3,000")
}

func TestRenderSparkline(t *testing.T) {
	assert.Equal(t, "▁█", RenderSparkline([]float64{0, 4}))
	assert.Empty(t, RenderSparkline(nil))
}

func TestRoleLabels(t *testing.T) {
	for _, r := range model.AllRoles {
		assert.NotEmpty(t, RoleLabel(r))
		assert.NotEmpty(t, RenderRole(r))
	}
}

func TestHighlightTerms(t *testing.T) {
	plain := "Deploy the staging cluster, then deploy prod"
	// Styling aside, the text is unchanged.
	assert.Equal(t, plain, stripped(HighlightTerms(plain, []string{"deploy", "the staging"})))
	assert.Equal(t, plain, HighlightTerms(plain, nil))
}

// stripped removes SGR escape sequences.
func stripped(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b {
			for i < len(s) && s[i] != 'm' {
				i++
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
