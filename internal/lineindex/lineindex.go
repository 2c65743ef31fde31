// Package lineindex maps absolute offsets in a rendered transcript to line ids.
package lineindex

import (
	"sort"
	"strings"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

// Separator joins rendered lines.
const Separator = "\n"

// Index is a sorted-by-offset table of line spans. Spans tile
// [0, TotalLength()) with no gaps or overlaps; Build guarantees this, Lookup
// relies on it.
type Index struct {
	entries []model.LineIndexEntry
	byID    map[int]int
	total   int
}

// Build computes spans for lines in one pass. Each span covers the line
// text plus its trailing separator; the last line has no separator.
// Zero-width spans (an empty final line) are omitted since no offset can
// fall inside them.
func Build(lines []model.Line) *Index {
	idx := &Index{
		entries: make([]model.LineIndexEntry, 0, len(lines)),
		byID:    make(map[int]int, len(lines)),
	}

	offset := 0
	for i, ln := range lines {
		width := len(ln.Text)
		if i < len(lines)-1 {
			width += len(Separator)
		}
		if width == 0 {
			continue
		}
		idx.byID[ln.ID] = len(idx.entries)
		idx.entries = append(idx.entries, model.LineIndexEntry{
			LineID: ln.ID,
			Span:   model.Span{Start: offset, End: offset + width},
		})
		offset += width
	}
	idx.total = offset
	return idx
}

// Render joins line texts the same way Build measures them.
func Render(lines []model.Line) string {
	var b strings.Builder
	for i, ln := range lines {
		if i > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(ln.Text)
	}
	return b.String()
}

// Lookup returns the id of the line whose span contains offset.
func (idx *Index) Lookup(offset int) (int, bool) {
	if idx == nil || offset < 0 || offset >= idx.total {
		return 0, false
	}
	// First entry whose end is past offset.
	i := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Span.End > offset
	})
	if i == len(idx.entries) {
		return 0, false
	}
	return idx.entries[i].LineID, true
}

// Span returns the span of a line, including its trailing separator.
func (idx *Index) Span(lineID int) (model.Span, bool) {
	if idx == nil {
		return model.Span{}, false
	}
	i, ok := idx.byID[lineID]
	if !ok {
		return model.Span{}, false
	}
	return idx.entries[i].Span, true
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// TotalLength returns the length of the rendered text the index covers.
func (idx *Index) TotalLength() int {
	if idx == nil {
		return 0
	}
	return idx.total
}

// Entries returns a copy of the offset table.
func (idx *Index) Entries() []model.LineIndexEntry {
	if idx == nil {
		return nil
	}
	return append([]model.LineIndexEntry(nil), idx.entries...)
}
