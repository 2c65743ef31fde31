package navigate

import (
	"strings"
	"testing"

	"github.com/jazzyalex/agent-sessions/internal/lineindex"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session() *model.Session {
	return &model.Session{
		ID: "nav",
		Events: []model.Event{
			{Kind: model.RoleUser, Text: "Fix the Parser"},
			{Kind: model.RoleAssistant, Text: "Looking at parser.go"},
			{Kind: model.RoleToolCall, ToolName: "Read", Text: "read parser.go"},
			{Kind: model.RoleToolOutput, Text: "package parser\nfunc Parse()"},
			{Kind: model.RoleError, Text: "permission denied"},
			{Kind: model.RoleAssistant, Text: "retrying"},
			{Kind: model.RoleError, Text: "timeout"},
			{Kind: model.RoleUser, Text: "thanks"},
		},
	}
}

func TestFind_CaseInsensitiveNonOverlapping(t *testing.T) {
	spans := Find("aaaa", "AA")
	assert.Equal(t, []model.Span{{Start: 0, End: 2}, {Start: 2, End: 4}}, spans)

	spans = Find("Hello hello HELLO", "hello")
	require.Len(t, spans, 3)
	assert.Equal(t, 12, spans[2].Start)

	assert.Nil(t, Find("abc", ""))
	assert.Nil(t, Find("", "abc"))
	assert.Nil(t, Find("abc", "abcd"))
}

func TestFind_PhraseNotTokenized(t *testing.T) {
	assert.Len(t, Find("read the file", "the file"), 1)
	assert.Empty(t, Find("read the  file", "the file"))
}

func TestFind_UnicodeOffsetsIntoOriginal(t *testing.T) {
	text := "Straße ÉCOLE école"
	spans := Find(text, "école")
	require.Len(t, spans, 2)
	for _, sp := range spans {
		assert.True(t, strings.EqualFold(text[sp.Start:sp.End], "école"))
	}
}

func TestResolve_RoundTrip(t *testing.T) {
	doc := transcript.BuildLines(session(), nil, model.DefaultOptions())

	for _, q := range []string{"parser", "PARSE", "e", "thanks", "go\npack"} {
		occ := Resolve(Find(doc.Text, q), doc.Index)
		require.NotEmpty(t, occ, q)
		for _, o := range occ {
			ln, ok := doc.Line(o.LineID)
			require.True(t, ok)
			sp, _ := doc.Index.Span(o.LineID)
			local := o.Span.Start - sp.Start
			require.GreaterOrEqual(t, local, 0)
			// The match starts inside the line; it may run past the
			// line's text only when the query spans a separator.
			rest := (ln.Text + lineindex.Separator)[local:]
			if !strings.Contains(q, "\n") {
				assert.True(t, strings.HasPrefix(strings.ToLower(rest), strings.ToLower(q)), q)
			}
		}
	}
}

func TestResolve_DropsOutOfRange(t *testing.T) {
	idx := lineindex.Build([]model.Line{{ID: 1, Text: "abc"}})
	occ := Resolve([]model.Span{{Start: 0, End: 1}, {Start: 10, End: 12}}, idx)
	require.Len(t, occ, 1)
	assert.Equal(t, 1, occ[0].LineID)
}

func TestCursor_WraparoundClosure(t *testing.T) {
	for _, ids := range [][]int{{7}, {1, 2}, {3, 5, 8, 13, 21}} {
		for _, dir := range []int{1, -1} {
			c := NewCursor(ids)
			start, ok := c.Advance(dir)
			require.True(t, ok)
			var got int
			for i := 0; i < len(ids); i++ {
				got, _ = c.Advance(dir)
			}
			assert.Equal(t, start, got, "ids=%v dir=%d", ids, dir)
		}
	}
}

func TestCursor_UnsetDefaults(t *testing.T) {
	c := NewCursor([]int{4, 5, 6})
	id, _ := c.Advance(-1)
	assert.Equal(t, 6, id)

	c.Reset()
	id, _ = c.Advance(1)
	assert.Equal(t, 4, id)

	id, _ = c.Advance(-1)
	assert.Equal(t, 6, id, "backward past the start wraps to the end")

	_, ok := NewCursor(nil).Advance(1)
	assert.False(t, ok)
}

func TestCursor_SetIDs(t *testing.T) {
	c := NewCursor([]int{1, 3, 5})
	c.Advance(1)
	c.Advance(1)

	c.SetIDs([]int{0, 3, 9})
	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, 3, cur)
	assert.Equal(t, 1, c.Position())

	c.SetIDs([]int{2, 4})
	_, ok = c.Current()
	assert.False(t, ok)
	assert.Equal(t, -1, c.Position())
}

func TestNavigator_RoleCursorsIndependent(t *testing.T) {
	doc := transcript.BuildLines(session(), nil, model.DefaultOptions())
	nav := New(doc)

	errScope := Scope{Context: ContextRole, Role: model.RoleError}
	callScope := Scope{Context: ContextRole, Role: model.RoleToolCall}

	first, ok := nav.Advance(errScope, 1)
	require.True(t, ok)
	assert.Equal(t, 5, first)

	call, ok := nav.Advance(callScope, 1)
	require.True(t, ok)
	assert.Equal(t, 3, call)

	second, ok := nav.Advance(errScope, 1)
	require.True(t, ok)
	assert.Equal(t, 7, second, "tool-call navigation must not move the error cursor")
}

func TestNavigator_FilteredRoleNeverTargeted(t *testing.T) {
	doc := transcript.BuildLines(session(), model.NewRoleSet(model.RoleUser, model.RoleAssistant), model.DefaultOptions())
	nav := New(doc)

	_, ok := nav.Advance(Scope{Context: ContextRole, Role: model.RoleError}, 1)
	assert.False(t, ok)

	// Matches in hidden lines are not reported either.
	occ := nav.Find(ContextLocal, "permission")
	assert.Empty(t, occ)
	occ = nav.Find(ContextLocal, "parser")
	require.NotEmpty(t, occ)
	for _, o := range occ {
		ln, _ := doc.Line(o.LineID)
		assert.True(t, ln.Role == model.RoleUser || ln.Role == model.RoleAssistant)
	}
}

func TestNavigator_GlobalAndLocalFindersIndependent(t *testing.T) {
	doc := transcript.BuildLines(session(), nil, model.DefaultOptions())
	nav := New(doc)

	nav.Find(ContextGlobal, "parser")
	nav.Find(ContextLocal, "thanks")

	g1, ok := nav.Advance(Scope{Context: ContextGlobal}, 1)
	require.True(t, ok)
	l1, ok := nav.Advance(Scope{Context: ContextLocal}, 1)
	require.True(t, ok)
	g2, _ := nav.Advance(Scope{Context: ContextGlobal}, 1)

	assert.Equal(t, 1, g1)
	assert.Equal(t, 8, l1)
	assert.Equal(t, 2, g2)
	assert.Equal(t, 2, nav.Global.Position())
	assert.Equal(t, 1, nav.Local.Position())

	// Same query is a no-op; a new query resets.
	assert.False(t, nav.Global.SetQuery(doc, "parser"))
	assert.True(t, nav.Global.SetQuery(doc, "Fix"))
	assert.Equal(t, 0, nav.Global.Position())
}

func TestNavigator_RebuildResetsRefreshKeeps(t *testing.T) {
	s := session()
	opts := model.DefaultOptions()
	nav := New(transcript.BuildLines(s, nil, opts))

	scope := Scope{Context: ContextRole, Role: model.RoleError}
	nav.Advance(scope, 1)
	nav.Advance(scope, 1)

	grown := *s
	grown.Events = append(append([]model.Event(nil), s.Events...), model.Event{Kind: model.RoleError, Text: "late"})
	nav.Refresh(transcript.BuildLines(&grown, nil, opts))
	id, _ := nav.Advance(scope, 1)
	assert.Equal(t, 9, id, "refresh keeps the position on line 7")

	nav.Rebuild(transcript.BuildLines(&grown, nil, opts))
	id, _ = nav.Advance(scope, 1)
	assert.Equal(t, 5, id)
}

func TestNavigator_Sync(t *testing.T) {
	nav := New(transcript.BuildLines(session(), nil, model.DefaultOptions()))
	require.True(t, nav.Sync(model.RoleUser, 8))
	id, _ := nav.Advance(Scope{Context: ContextRole, Role: model.RoleUser}, 1)
	assert.Equal(t, 1, id)
	assert.False(t, nav.Sync(model.RoleUser, 2))
}
