package search

import (
	"errors"
	"strings"
	"unicode"
)

// ErrQueryMalformed is returned for an unterminated quote or a dangling
// escape. A malformed query never starts a scan.
var ErrQueryMalformed = errors.New("malformed query")

// Query is a parsed search string.
type Query struct {
	// Terms must all appear in a document's text. Quoted phrases are one term.
	Terms []string
	Repo  string
	Path  string
}

// Empty reports whether the query has neither terms nor field filters.
func (q Query) Empty() bool {
	return len(q.Terms) == 0 && q.Repo == "" && q.Path == ""
}

// ParseQuery splits s into free terms and field filters. Whitespace
// separates tokens outside quotes. Inside quotes \" and \\ are escapes.
// A field prefix may be followed by a quoted value, as in repo:"my repo".
func ParseQuery(s string) (Query, error) {
	var q Query
	toks, err := tokenize(s)
	if err != nil {
		return Query{}, err
	}
	for _, t := range toks {
		if !t.quoted {
			if name, val, ok := strings.Cut(t.text, ":"); ok && val != "" {
				switch strings.ToLower(name) {
				case "repo":
					q.Repo = val
					continue
				case "path":
					q.Path = val
					continue
				}
			}
		}
		if t.text != "" {
			q.Terms = append(q.Terms, t.text)
		}
	}
	return q, nil
}

type token struct {
	text   string
	quoted bool
}

func tokenize(s string) ([]token, error) {
	var (
		toks    []token
		cur     strings.Builder
		started bool
		quoted  bool // token contains a bare quoted phrase
		inQuote bool
	)
	flush := func() {
		if started {
			toks = append(toks, token{text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		started, quoted = false, false
	}

	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case inQuote && r == '\\':
			if i+1 >= len(rs) {
				return nil, ErrQueryMalformed
			}
			next := rs[i+1]
			if next == '"' || next == '\\' {
				cur.WriteRune(next)
				i++
			} else {
				cur.WriteRune(r)
			}
		case r == '"':
			if !inQuote && !started {
				quoted = true
			}
			inQuote = !inQuote
			started = true
		case !inQuote && unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, ErrQueryMalformed
	}
	flush()
	return toks, nil
}
