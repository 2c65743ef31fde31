package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/navigate"
)

type textMatch struct {
	count       int
	occurrences []model.Span
	snippet     string
}

// matchText reports whether every term occurs in text. Occurrences of all
// terms are returned in text order, capped at maxOcc (0 means no cap).
func matchText(text string, terms []string, maxOcc, radius int) (textMatch, bool) {
	if len(terms) == 0 || text == "" {
		return textMatch{}, false
	}
	var all []model.Span
	for _, term := range terms {
		spans := navigate.Find(text, term)
		if len(spans) == 0 {
			return textMatch{}, false
		}
		all = append(all, spans...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Start < all[j].Start })

	m := textMatch{count: len(all), snippet: snippetAround(text, all[0], radius)}
	if maxOcc > 0 && len(all) > maxOcc {
		all = all[:maxOcc]
	}
	m.occurrences = all
	return m, true
}

// snippetAround cuts a window of roughly radius runes either side of span,
// widened to word boundaries, with newlines flattened.
func snippetAround(text string, span model.Span, radius int) string {
	if radius <= 0 {
		radius = 60
	}
	start := span.Start
	for n := 0; start > 0 && n < radius; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	end := span.End
	for n := 0; end < len(text) && n < radius; n++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	for start > 0 && !isBreak(text[start-1]) {
		start--
	}
	for end < len(text) && !isBreak(text[end]) {
		end++
	}

	snippet := strings.Join(strings.Fields(text[start:end]), " ")
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet
}

func isBreak(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}
