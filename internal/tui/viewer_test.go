package tui

import (
	"context"
	"regexp"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/navigate"
	"github.com/jazzyalex/agent-sessions/internal/search"
)

func testSession() *model.Session {
	return &model.Session{
		ID:     "0199a1b2-0000-7000-8000-0000000000aa",
		Source: "codex",
		Path:   "/logs/rollout.jsonl",
		Repo:   "alpha",
		Events: []model.Event{
			{Kind: model.RoleUser, Text: "hello foo"},
			{Kind: model.RoleAssistant, Text: "reply"},
			{Kind: model.RoleToolCall, ToolName: "ls", ToolCallID: "c1"},
			{Kind: model.RoleToolOutput, Text: "foo output", ToolCallID: "c1"},
			{Kind: model.RoleUser, Text: "again foo"},
		},
	}
}

func testViewer(t *testing.T, globalQuery string) *viewerState {
	t.Helper()
	s := testSession()
	d := model.Document{ID: s.ID, Source: s.Source, Path: s.Path, Repo: s.Repo, Indexed: true, Session: s}
	v := newViewer(d, globalQuery, model.Options{}, 100, 20)
	require.False(t, v.loading)
	require.NotNil(t, v.tdoc)
	return v
}

func TestViewer_OpensOnFirstSearchMatch(t *testing.T) {
	v := testViewer(t, "foo")
	assert.Len(t, v.tdoc.Lines, 5)
	assert.Equal(t, 1, v.current)

	global := navigate.Scope{Context: navigate.ContextGlobal}
	v.step(global, 1)
	assert.Equal(t, 4, v.current)
	v.step(global, 1)
	assert.Equal(t, 5, v.current)
	v.step(global, 1)
	assert.Equal(t, 1, v.current, "matches wrap")
	v.step(global, -1)
	assert.Equal(t, 5, v.current)
}

func TestViewer_NoQueryStartsAtFirstPrompt(t *testing.T) {
	v := testViewer(t, "")
	assert.Equal(t, 1, v.current)
	assert.Empty(t, v.nav.Global.Matches())
}

func TestViewer_RoleStepContinuesFromMatchJump(t *testing.T) {
	v := testViewer(t, "foo")
	v.step(navigate.Scope{Context: navigate.ContextGlobal}, 1) // line 4, tool output
	v.step(navigate.Scope{Context: navigate.ContextRole, Role: model.RoleToolOutput}, 1)
	assert.Equal(t, 4, v.current, "only one output line, cursor synced to it")

	v.jump(1)
	v.step(navigate.Scope{Context: navigate.ContextRole, Role: model.RoleUser}, 1)
	assert.Equal(t, 5, v.current)
}

func TestViewer_ToggleRoleRebuilds(t *testing.T) {
	v := testViewer(t, "foo")
	v.toggleRole(model.RoleToolOutput)

	assert.False(t, v.roles.Has(model.RoleToolOutput))
	assert.Len(t, v.tdoc.Lines, 4)
	assert.Len(t, v.nav.Global.Matches(), 2, "query re-runs over the rebuilt text")

	v.step(navigate.Scope{Context: navigate.ContextRole, Role: model.RoleToolOutput}, 1)
	assert.Contains(t, v.note, "no ")

	v.toggleRole(model.RoleToolOutput)
	assert.Nil(t, v.roles, "every role on again means no filter")
	assert.Len(t, v.tdoc.Lines, 5)
}

func TestViewer_CannotHideEveryRole(t *testing.T) {
	v := testViewer(t, "")
	v.setRoles(model.NewRoleSet(model.RoleUser))
	v.toggleRole(model.RoleUser)
	assert.True(t, v.roles.Has(model.RoleUser))
	assert.Len(t, v.tdoc.Lines, 2)
}

func TestViewer_RefreshKeepsNavigation(t *testing.T) {
	v := testViewer(t, "foo")
	grown := testSession()
	grown.Events = append(grown.Events, model.Event{Kind: model.RoleAssistant, Text: "more foo"})

	v.loaded(sessionParsedMsg{docID: grown.ID, session: grown, refresh: true}, model.Options{})
	assert.Len(t, v.tdoc.Lines, 6)
	assert.Len(t, v.nav.Global.Matches(), 4)
	assert.Equal(t, 1, v.current)
}

func TestViewer_LineSpansAreLineLocal(t *testing.T) {
	v := testViewer(t, "foo")
	spans := v.lineSpans()
	require.Len(t, spans[4], 1)
	assert.Equal(t, model.Span{Start: 0, End: 3}, spans[4][0].Span)
	require.Len(t, spans[5], 1)
	assert.Equal(t, model.Span{Start: 6, End: 9}, spans[5][0].Span)
	assert.True(t, spans[1][0].current)
}

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func TestHighlightLineKeepsText(t *testing.T) {
	got := highlightLine("again foo", []lineSpan{{Span: model.Span{Start: 6, End: 9}}, {Span: model.Span{Start: 7, End: 20}}})
	assert.Equal(t, "again foo", ansi.ReplaceAllString(got, ""))
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestUpdateViewer_FindAndClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := App{viewer: testViewer(t, "foo"), res: &resources{ctx: ctx, cancel: cancel}}

	press := func(k string) {
		m, _ := a.updateViewer(key(k))
		a = m.(App)
	}

	press("/")
	require.True(t, a.viewer.finding)
	for _, r := range "again" {
		press(string(r))
	}
	press("enter")
	assert.False(t, a.viewer.finding)
	assert.Equal(t, "again", a.viewer.nav.Local.Query())
	assert.Equal(t, 5, a.viewer.current)

	press("N")
	assert.Equal(t, 5, a.viewer.current, "single find match")
	press(">")
	assert.Equal(t, 4, a.viewer.current, "search matches continue from their own cursor")

	press("esc")
	require.NotNil(t, a.viewer, "first esc clears the find")
	assert.Empty(t, a.viewer.nav.Local.Query())

	press("q")
	assert.Nil(t, a.viewer)
}

func TestSearchState_DropsStaleSnapshots(t *testing.T) {
	s := newSearchState(false)
	s.token = 2

	assert.False(t, s.accept(search.Snapshot{Token: 1, Results: []search.Result{{DocumentID: "old"}}}))
	assert.Empty(t, s.snap.Results)

	assert.True(t, s.accept(search.Snapshot{Token: 2, Query: "foo", Results: []search.Result{{DocumentID: "a"}, {DocumentID: "b"}}}))
	assert.Len(t, s.snap.Results, 2)

	s.move(5)
	assert.Equal(t, 1, s.cursor)
	s.accept(search.Snapshot{Token: 2, Query: "foo", Results: []search.Result{{DocumentID: "a"}}})
	assert.Equal(t, 0, s.cursor, "cursor clamps when results shrink")
}
