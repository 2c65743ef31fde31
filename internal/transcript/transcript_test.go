package transcript

import (
	"strings"
	"testing"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(kind model.Role, text string) model.Event {
	return model.Event{Kind: kind, Text: text}
}

func call(name, id, text string) model.Event {
	return model.Event{Kind: model.RoleToolCall, ToolName: name, ToolCallID: id, Text: text}
}

func output(id, text string) model.Event {
	return model.Event{Kind: model.RoleToolOutput, ToolCallID: id, Text: text}
}

func sampleSession() *model.Session {
	return &model.Session{
		ID: "s1",
		Events: []model.Event{
			ev(model.RoleUser, "hi"),
			ev(model.RoleAssistant, "hello"),
			call("Bash", "", "ls"),
			output("", "a.txt\nb.txt"),
			ev(model.RoleUser, "thanks"),
		},
	}
}

func kinds(blocks []model.Block) []model.Role {
	out := make([]model.Role, len(blocks))
	for i, b := range blocks {
		out[i] = b.Kind
	}
	return out
}

func TestCoalesce_Scenario(t *testing.T) {
	s := sampleSession()
	blocks := Coalesce(s.Events, model.DefaultOptions())

	require.Len(t, blocks, 4)
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant, model.RoleToolCall, model.RoleUser}, kinds(blocks))
	assert.Equal(t, 2, blocks[2].StartEvent)
	assert.Equal(t, 3, blocks[2].EndEvent)
	assert.Equal(t, "bash", blocks[2].GroupKey)
}

func TestBuildLines_ScenarioResolvesLastLine(t *testing.T) {
	doc := BuildLines(sampleSession(), nil, model.DefaultOptions())

	require.Len(t, doc.Lines, 5)
	off := strings.Index(doc.Text, "thanks")
	require.GreaterOrEqual(t, off, 0)

	id, ok := doc.Index.Lookup(off)
	require.True(t, ok)
	assert.Equal(t, doc.Lines[len(doc.Lines)-1].ID, id)
}

func TestCoalesce_PartitionsContiguously(t *testing.T) {
	events := []model.Event{
		ev(model.RoleMeta, "session start"),
		ev(model.RoleUser, "do it"),
		ev(model.RoleUser, "please"),
		call("Read", "c1", "read a"),
		output("c1", "contents"),
		call("Read", "c2", "read b"),
		ev(model.RoleError, "boom"),
		ev(model.RoleAssistant, "done"),
	}
	blocks := Coalesce(events, model.DefaultOptions())

	next := 0
	for _, b := range blocks {
		assert.Equal(t, next, b.StartEvent)
		assert.GreaterOrEqual(t, b.EndEvent, b.StartEvent)
		next = b.EndEvent + 1
	}
	assert.Equal(t, len(events), next)
	assert.Len(t, blocks, 6)
}

func TestCoalesce_Deterministic(t *testing.T) {
	events := []model.Event{
		ev(model.RoleUser, "<environment_context>cwd</environment_context>"),
		ev(model.RoleUser, "fix the bug"),
		call("shell", "", "rg foo"),
		ev(model.RoleMeta, "token_count"),
		output("", "foo.go:1"),
		output("", "more"),
		call("", "", ""),
		output("", "orphan"),
	}
	opts := model.DefaultOptions()
	first := Coalesce(events, opts)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Coalesce(events, opts))
	}
}

func TestCoalesce_MetaBetweenCallAndOutputIsAbsorbed(t *testing.T) {
	events := []model.Event{
		call("shell", "call_1", "make"),
		ev(model.RoleMeta, "token_count"),
		ev(model.RoleMeta, "rate_limits"),
		output("call_1", "ok"),
		ev(model.RoleMeta, "trailing"),
	}
	blocks := Coalesce(events, model.DefaultOptions())

	require.Len(t, blocks, 2)
	assert.Equal(t, 0, blocks[0].StartEvent)
	assert.Equal(t, 3, blocks[0].EndEvent)
	assert.Equal(t, model.RoleMeta, blocks[1].Kind)
}

func TestCoalesce_KeylessOutputInheritsPrecedingToolKey(t *testing.T) {
	events := []model.Event{
		call("Grep", "", "pattern"),
		ev(model.RoleAssistant, "looking"),
		output("", "results"),
	}
	blocks := Coalesce(events, model.DefaultOptions())

	require.Len(t, blocks, 3)
	assert.Equal(t, "grep", blocks[0].GroupKey)
	assert.Equal(t, "grep", blocks[2].GroupKey)
	assert.Equal(t, model.RoleToolOutput, blocks[2].Kind)
}

func TestCoalesce_SyntheticKeyWhenNothingInferable(t *testing.T) {
	blocks := Coalesce([]model.Event{output("", "stray")}, model.DefaultOptions())
	require.Len(t, blocks, 1)
	assert.Equal(t, "synthetic-0", blocks[0].GroupKey)
}

func TestCoalesce_DistinctCallIDsSplit(t *testing.T) {
	events := []model.Event{
		call("Read", "a", "x"),
		output("a", "1"),
		call("Read", "b", "y"),
		output("b", "2"),
	}
	blocks := Coalesce(events, model.DefaultOptions())
	require.Len(t, blocks, 2)
	assert.Equal(t, "a", blocks[0].GroupKey)
	assert.Equal(t, "b", blocks[1].GroupKey)
}

func TestCoalesce_DedupeToolGroupsMergesSameTool(t *testing.T) {
	events := []model.Event{
		call("Read", "", "x"),
		output("", "1"),
		call("read", "", "y"),
		output("", "2"),
	}

	opts := model.DefaultOptions()
	assert.Len(t, Coalesce(events, opts), 2)

	opts.DedupeToolGroups = true
	assert.Len(t, Coalesce(events, opts), 1)
}

func TestNormalizeToolName(t *testing.T) {
	for in, want := range map[string]string{
		"ReadFile":     "read_file",
		"read-file":    "read_file",
		"read.file":    "read_file",
		" shell ":      "shell",
		"mcp/search!!": "mcp_search",
		"":             "",
	} {
		assert.Equal(t, want, NormalizeToolName(in), in)
	}
}

func TestPreamble_FlaggedAndSkippedByFirstPrompt(t *testing.T) {
	s := &model.Session{
		ID: "s2",
		Events: []model.Event{
			ev(model.RoleMeta, "session_meta"),
			ev(model.RoleUser, "<environment_context>\n  <cwd>/repo</cwd>\n</environment_context>"),
			ev(model.RoleUser, "add a test"),
			ev(model.RoleAssistant, "sure"),
		},
	}
	doc := BuildLines(s, nil, model.DefaultOptions())

	require.Len(t, doc.Blocks, 4)
	assert.True(t, doc.Blocks[1].IsPreamble)
	assert.False(t, doc.Blocks[2].IsPreamble)

	first, ok := doc.FirstPrompt()
	require.True(t, ok)
	ln, _ := doc.Line(first)
	assert.Equal(t, "add a test", ln.Text)

	// Preamble stays visible and searchable.
	assert.Contains(t, doc.Text, "<environment_context>")

	opts := model.DefaultOptions()
	opts.SkipPreamble = false
	doc = BuildLines(s, nil, opts)
	first, ok = doc.FirstPrompt()
	require.True(t, ok)
	ln, _ = doc.Line(first)
	assert.True(t, IsPreambleText(ln.Text))
}

func TestPreamble_OnlyLeadingBlockQualifies(t *testing.T) {
	events := []model.Event{
		ev(model.RoleUser, "real prompt"),
		ev(model.RoleAssistant, "ok"),
		ev(model.RoleUser, "<system-reminder>later</system-reminder>"),
	}
	blocks := Coalesce(events, model.DefaultOptions())
	markPreamble(blocks, events)
	for _, b := range blocks {
		assert.False(t, b.IsPreamble)
	}
}

func TestBuildLines_RoleFilter(t *testing.T) {
	doc := BuildLines(sampleSession(), model.NewRoleSet(model.RoleUser, model.RoleToolOutput), model.DefaultOptions())

	require.Len(t, doc.Lines, 3)
	for i, ln := range doc.Lines {
		assert.Equal(t, i+1, ln.ID)
	}
	assert.Empty(t, doc.RoleLines(model.RoleAssistant))
	assert.Len(t, doc.RoleLines(model.RoleUser), 2)
	// Blocks still cover hidden events.
	assert.Len(t, doc.Blocks, 4)
	assert.NotContains(t, doc.Text, "hello")
}

func TestBuildLines_EmptySession(t *testing.T) {
	doc := BuildLines(&model.Session{ID: "empty"}, nil, model.DefaultOptions())
	assert.Empty(t, doc.Lines)
	_, ok := doc.Index.Lookup(0)
	assert.False(t, ok)
	_, ok = doc.FirstPrompt()
	assert.False(t, ok)

	doc = BuildLines(nil, nil, model.DefaultOptions())
	assert.Equal(t, 0, doc.Index.Len())
}

func TestNeedsRebuild(t *testing.T) {
	s := sampleSession()
	doc := BuildLines(s, nil, model.DefaultOptions())

	assert.False(t, doc.NeedsRebuild(s, nil))
	assert.True(t, doc.NeedsRebuild(s, model.NewRoleSet(model.RoleUser)))

	grown := *s
	grown.Events = append(append([]model.Event(nil), s.Events...), ev(model.RoleAssistant, "bye"))
	assert.True(t, doc.NeedsRebuild(&grown, nil))
}

func TestAttachAssets_MapsOrdinalToUserBlock(t *testing.T) {
	doc := BuildLines(sampleSession(), nil, model.DefaultOptions())
	doc.AttachAssets([]model.InlineAsset{
		{SessionID: "s1", PromptOrdinal: 1, Sequence: 0},
		{SessionID: "other", PromptOrdinal: 0},
		{SessionID: "s1", PromptOrdinal: 7},
	})

	assert.Equal(t, 1, doc.AssetCount())
	last := doc.Lines[len(doc.Lines)-1].ID
	require.Len(t, doc.AssetsForLine(last), 1)
	assert.Empty(t, doc.AssetsForLine(1))
}
