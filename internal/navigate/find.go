// Package navigate locates query matches in a rendered transcript and steps
// through matches and role-filtered lines with wraparound cursors.
package navigate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jazzyalex/agent-sessions/internal/lineindex"
	"github.com/jazzyalex/agent-sessions/internal/model"
)

// Find returns the spans of every case-insensitive occurrence of query in
// text, left to right and non-overlapping. The query is an exact phrase;
// whitespace is not tokenized. Spans are byte offsets into text.
func Find(text, query string) []model.Span {
	if query == "" || text == "" {
		return nil
	}
	if isASCII(text) && isASCII(query) {
		return findASCII(text, query)
	}
	return findFold(text, []rune(query))
}

// findASCII lowercases both sides; byte offsets are preserved since ASCII
// lowercasing never changes length.
func findASCII(text, query string) []model.Span {
	lower := strings.ToLower(text)
	q := strings.ToLower(query)

	var spans []model.Span
	pos := 0
	for {
		i := strings.Index(lower[pos:], q)
		if i < 0 {
			return spans
		}
		start := pos + i
		spans = append(spans, model.Span{Start: start, End: start + len(q)})
		pos = start + len(q)
	}
}

func findFold(text string, query []rune) []model.Span {
	var spans []model.Span
	for i := 0; i < len(text); {
		if end, ok := matchAt(text, i, query); ok {
			spans = append(spans, model.Span{Start: i, End: end})
			i = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return spans
}

func matchAt(text string, i int, query []rune) (int, bool) {
	j := i
	for _, qr := range query {
		if j >= len(text) {
			return 0, false
		}
		r, size := utf8.DecodeRuneInString(text[j:])
		if !foldEqual(r, qr) {
			return 0, false
		}
		j += size
	}
	return j, true
}

func foldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	for f := unicode.SimpleFold(a); f != a; f = unicode.SimpleFold(f) {
		if f == b {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Resolve maps each span's start offset to the line containing it. Spans
// outside the index are dropped.
func Resolve(spans []model.Span, idx *lineindex.Index) []model.MatchOccurrence {
	if len(spans) == 0 {
		return nil
	}
	out := make([]model.MatchOccurrence, 0, len(spans))
	for _, sp := range spans {
		id, ok := idx.Lookup(sp.Start)
		if !ok {
			continue
		}
		out = append(out, model.MatchOccurrence{Span: sp, LineID: id})
	}
	return out
}
