package lineindex

import (
	"strings"
	"testing"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeLines(texts ...string) []model.Line {
	lines := make([]model.Line, len(texts))
	for i, t := range texts {
		lines[i] = model.Line{ID: i + 1, Text: t, BlockIndex: -1}
	}
	return lines
}

func TestLookup_EveryOffsetResolvesToContainingLine(t *testing.T) {
	lines := makeLines("hi", "hello", "", "ls", "a.txt\nb.txt", "thanks")
	idx := Build(lines)
	text := Render(lines)

	require.Equal(t, len(text), idx.TotalLength())

	// Walk the rendered text and track which line each byte belongs to.
	lineNo := 0
	for off := 0; off < len(text); off++ {
		for lineNo < len(lines) {
			sp, ok := idx.Span(lines[lineNo].ID)
			if ok && sp.Contains(off) {
				break
			}
			lineNo++
		}
		got, ok := idx.Lookup(off)
		require.True(t, ok, "offset %d", off)
		assert.Equal(t, lines[lineNo].ID, got, "offset %d", off)
	}
}

func TestLookup_SpansTileWithoutGaps(t *testing.T) {
	idx := Build(makeLines("one", "two", "three"))
	entries := idx.Entries()
	require.Len(t, entries, 3)

	prevEnd := 0
	for _, e := range entries {
		assert.Equal(t, prevEnd, e.Span.Start)
		assert.Greater(t, e.Span.End, e.Span.Start)
		prevEnd = e.Span.End
	}
	assert.Equal(t, idx.TotalLength(), prevEnd)
}

func TestLookup_OutOfRange(t *testing.T) {
	idx := Build(makeLines("abc", "def"))

	_, ok := idx.Lookup(-1)
	assert.False(t, ok)
	_, ok = idx.Lookup(idx.TotalLength())
	assert.False(t, ok)
	_, ok = idx.Lookup(1 << 20)
	assert.False(t, ok)
}

func TestLookup_EmptyDocument(t *testing.T) {
	idx := Build(nil)
	assert.Equal(t, 0, idx.Len())
	for _, off := range []int{-1, 0, 1, 100} {
		_, ok := idx.Lookup(off)
		assert.False(t, ok)
	}

	var nilIdx *Index
	_, ok := nilIdx.Lookup(0)
	assert.False(t, ok)
}

func TestLookup_SeparatorBelongsToPrecedingLine(t *testing.T) {
	idx := Build(makeLines("ab", "cd"))
	// "ab\ncd": offset 2 is the separator.
	id, ok := idx.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, 1, id)

	id, ok = idx.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestBuild_LargeDocument(t *testing.T) {
	texts := make([]string, 5000)
	for i := range texts {
		texts[i] = strings.Repeat("x", i%17)
	}
	lines := makeLines(texts...)
	idx := Build(lines)
	text := Render(lines)
	require.Equal(t, len(text), idx.TotalLength())

	last, ok := idx.Lookup(len(text) - 1)
	require.True(t, ok)
	assert.Equal(t, lines[len(lines)-1].ID, last)
}
