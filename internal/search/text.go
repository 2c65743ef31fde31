package search

import (
	"strings"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

// Cached text is a sequence of role-tagged records so the kinds filter can
// be applied without reparsing: <role> US <text> RS.
const (
	fieldSep  = '\x1f'
	recordSep = '\x1e'
)

// EncodeText flattens a session's conversation events into cacheable text.
// Tool outputs are left out; they are searched only in the deep phases.
func EncodeText(s *model.Session) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	for _, ev := range s.Events {
		if ev.Kind == model.RoleToolOutput {
			continue
		}
		writeRecord(&b, ev.Kind, eventText(ev))
	}
	return b.String()
}

// ToolOutputText returns the text of a session's tool outputs, one per line.
func ToolOutputText(s *model.Session) string {
	if s == nil {
		return ""
	}
	var parts []string
	for _, ev := range s.Events {
		if ev.Kind == model.RoleToolOutput {
			if t := eventText(ev); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func eventText(ev model.Event) string {
	if ev.Text != "" {
		return ev.Text
	}
	return ev.Raw
}

func writeRecord(b *strings.Builder, role model.Role, text string) {
	if text == "" {
		return
	}
	b.WriteString(string(role))
	b.WriteByte(fieldSep)
	b.WriteString(text)
	b.WriteByte(recordSep)
}

// DecodeText returns the searchable text of the records whose role is in
// kinds, joined by newlines. Input that is not record-encoded is returned
// as is.
func DecodeText(encoded string, kinds model.RoleSet) string {
	if encoded == "" {
		return ""
	}
	if strings.IndexByte(encoded, recordSep) < 0 {
		return encoded
	}
	var parts []string
	for _, rec := range strings.Split(encoded, string(recordSep)) {
		if rec == "" {
			continue
		}
		role, text, ok := strings.Cut(rec, string(fieldSep))
		if !ok {
			parts = append(parts, rec)
			continue
		}
		if kinds.Has(model.Role(role)) {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
