package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		in   string
		want Query
	}{
		{"foo bar", Query{Terms: []string{"foo", "bar"}}},
		{"  spaced   out ", Query{Terms: []string{"spaced", "out"}}},
		{"repo:demo hello", Query{Terms: []string{"hello"}, Repo: "demo"}},
		{"PATH:src/ foo", Query{Terms: []string{"foo"}, Path: "src/"}},
		{`"exact phrase" x`, Query{Terms: []string{"exact phrase", "x"}}},
		{`"say \"hi\""`, Query{Terms: []string{`say "hi"`}}},
		{`"back\\slash"`, Query{Terms: []string{`back\slash`}}},
		{`"keep \n as is"`, Query{Terms: []string{`keep \n as is`}}},
		{`repo:"my repo" x`, Query{Terms: []string{"x"}, Repo: "my repo"}},
		{`"repo:literal"`, Query{Terms: []string{"repo:literal"}}},
		{"repo: x", Query{Terms: []string{"repo:", "x"}}},
		{`""`, Query{}},
		{"", Query{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuery(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQuery_Malformed(t *testing.T) {
	for _, in := range []string{`"open`, `foo "bar`, `"dangling\`, `repo:"x`} {
		_, err := ParseQuery(in)
		assert.ErrorIs(t, err, ErrQueryMalformed, in)
	}
}

func TestEncodeDecodeText(t *testing.T) {
	s := &model.Session{Events: []model.Event{
		{Kind: model.RoleUser, Text: "fix the build"},
		{Kind: model.RoleToolCall, Text: "go build ./..."},
		{Kind: model.RoleToolOutput, Text: "undefined: foo"},
		{Kind: model.RoleAssistant, Text: "done"},
		{Kind: model.RoleMeta, Raw: `{"type":"x"}`},
	}}
	enc := EncodeText(s)
	assert.NotContains(t, enc, "undefined: foo")

	assert.Equal(t, "fix the build\ngo build ./...\ndone\n{\"type\":\"x\"}", DecodeText(enc, nil))
	assert.Equal(t, "fix the build\ndone", DecodeText(enc, model.NewRoleSet(model.RoleUser, model.RoleAssistant)))
	assert.Equal(t, "plain text", DecodeText("plain text", model.NewRoleSet(model.RoleUser)))
	assert.Equal(t, "undefined: foo", ToolOutputText(s))
	assert.Empty(t, EncodeText(nil))
}

func TestMatchText(t *testing.T) {
	text := "alpha beta\ngamma ALPHA delta"

	m, ok := matchText(text, []string{"alpha", "gamma"}, 0, 5)
	require.True(t, ok)
	assert.Equal(t, 3, m.count)
	assert.Equal(t, []model.Span{{Start: 0, End: 5}, {Start: 11, End: 16}, {Start: 17, End: 22}}, m.occurrences)
	assert.Equal(t, "alpha beta...", m.snippet)

	_, ok = matchText(text, []string{"alpha", "omega"}, 0, 5)
	assert.False(t, ok)

	m, ok = matchText(text, []string{"alpha"}, 1, 5)
	require.True(t, ok)
	assert.Equal(t, 2, m.count)
	assert.Len(t, m.occurrences, 1)

	_, ok = matchText("", []string{"a"}, 0, 5)
	assert.False(t, ok)
}

func TestSnippetAround(t *testing.T) {
	text := "one two three four five six seven"
	// "four" is at 14..18.
	assert.Equal(t, "...three four five...", snippetAround(text, model.Span{Start: 14, End: 18}, 3))
	assert.Equal(t, text, snippetAround(text, model.Span{Start: 14, End: 18}, 100))
}
