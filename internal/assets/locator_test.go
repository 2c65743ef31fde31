package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngPayload(n int) string {
	raw := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, n)...)
	return base64.StdEncoding.EncodeToString(raw)
}

func claudeImageLine(b64 string) string {
	return `{"type":"user","message":{"role":"user","content":[{"type":"text","text":"look"},{"type":"image","source":{"type":"base64","media_type":"image/png","data":"` + b64 + `"}}]}}`
}

func codexImageLine(b64 string) string {
	return `{"timestamp":"2025-09-01T12:00:00Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_image","image_url":"data:image/png;base64,` + b64 + `"}]}}`
}

const (
	claudePrompt    = `{"type":"user","message":{"role":"user","content":"first prompt"}}`
	claudeAssistant = `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"ok"}]}}`
)

func defaultOpts() Options {
	return OptionsFrom(model.DefaultOptions())
}

func TestScan_ClaudeImageAssociatesWithItsPrompt(t *testing.T) {
	b64 := pngPayload(300)
	data := []byte(strings.Join([]string{claudePrompt, claudeAssistant, claudeImageLine(b64)}, "\n") + "\n")

	res, err := Scan(context.Background(), data, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Assets, 1)

	a := res.Assets[0]
	assert.Equal(t, b64, string(data[a.Span.Start:a.Span.End]))
	assert.Equal(t, "image/png", a.MediaType)
	assert.Equal(t, 1, a.PromptOrdinal)
	assert.Equal(t, 0, a.Sequence)
	assert.Equal(t, 308, a.ApproxBytes)
	assert.False(t, res.Truncated)
}

func TestScan_CodexDataURL(t *testing.T) {
	data := []byte(codexImageLine(pngPayload(200)) + "\n")
	res, err := Scan(context.Background(), data, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Assets, 1)
	assert.Equal(t, "image/png", res.Assets[0].MediaType)
	assert.Equal(t, 0, res.Assets[0].PromptOrdinal)
}

func TestScan_PrefersPrecedingUserEvent(t *testing.T) {
	data := []byte(strings.Repeat(" ", 6000) + "\n" + codexImageLine(pngPayload(200)) + "\n")
	res, err := Scan(context.Background(), data, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Assets, 1)
	x := int64(res.Assets[0].Span.Start)

	for _, tc := range []struct {
		offsets []int64
		want    int
	}{
		{[]int64{x - 100, x + 5000}, 0},
		{[]int64{x - 5000, x - 100, x + 10}, 1},
		{[]int64{x + 5000, x + 6000}, 0},
		{[]int64{}, -1},
	} {
		assert.Equal(t, tc.want, promptOrdinal(tc.offsets, x), "offsets %v", tc.offsets)
	}

	opts := defaultOpts()
	opts.UserOffsets = []int64{x - 100, x + 5000}
	res, err = Scan(context.Background(), data, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Assets[0].PromptOrdinal)
}

func TestScan_FallsBackToFollowingPrompt(t *testing.T) {
	data := []byte(strings.Join([]string{
		`{"type":"system","content":"x","url":"data:image/png;base64,` + pngPayload(200) + `"}`,
		claudePrompt,
	}, "\n"))
	res, err := Scan(context.Background(), data, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Assets, 1)
	assert.Equal(t, 0, res.Assets[0].PromptOrdinal)
}

func TestScan_NoUserEvents(t *testing.T) {
	data := []byte(`{"type":"assistant","url":"data:image/png;base64,` + pngPayload(200) + `"}`)
	res, err := Scan(context.Background(), data, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Assets, 1)
	assert.Equal(t, -1, res.Assets[0].PromptOrdinal)
}

func TestScan_RejectsImplausibleCandidates(t *testing.T) {
	notImage := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("plain text ", 40)))
	lines := []string{
		// Tool output screenshot.
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","content":[{"type":"image","source":{"type":"base64","media_type":"image/png","data":"` + pngPayload(300) + `"}}]}]}}`,
		// Too short.
		codexImageLine(pngPayload(8)),
		// Decodes, but not an image.
		codexImageLine(notImage),
		// Quoted inside prose.
		`{"type":"assistant","message":{"content":"use <img src=\"data:image/png;base64,` + pngPayload(300) + `\">"}}`,
		// Invalid base64 body.
		codexImageLine("iVBORw0K" + strings.Repeat("A", 150) + "=A=="),
	}
	res, err := Scan(context.Background(), []byte(strings.Join(lines, "\n")), defaultOpts())
	require.NoError(t, err)
	assert.Empty(t, res.Assets)
	assert.Equal(t, 5, res.Candidates)
	assert.Equal(t, 5, res.Rejected)
}

func TestScan_MatchBudgetTruncates(t *testing.T) {
	var lines []string
	for i := 0; i < 5; i++ {
		lines = append(lines, codexImageLine(pngPayload(200)))
	}
	opts := defaultOpts()
	opts.MatchBudget = 2

	res, err := Scan(context.Background(), []byte(strings.Join(lines, "\n")), opts)
	require.NoError(t, err)
	assert.Len(t, res.Assets, 2)
	assert.True(t, res.Truncated)
	assert.Equal(t, []int{0, 1}, []int{res.Assets[0].PromptOrdinal, res.Assets[1].PromptOrdinal})
}

func TestScan_SmallByteBudgetStillSniffs(t *testing.T) {
	opts := defaultOpts()
	opts.ByteBudget = 1
	res, err := Scan(context.Background(), []byte(codexImageLine(pngPayload(5000))), opts)
	require.NoError(t, err)
	assert.Len(t, res.Assets, 1)
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, []byte(codexImageLine(pngPayload(200))), defaultOpts())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestScanFile_UnreadableIsZeroMatches(t *testing.T) {
	res, err := ScanFile(context.Background(), filepath.Join(t.TempDir(), "gone.jsonl"), "s", defaultOpts())
	require.NoError(t, err)
	assert.Empty(t, res.Assets)
}

func TestScanFile_SetsDocumentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(codexImageLine(pngPayload(200))+"\n"), 0o600))

	res, err := ScanFile(context.Background(), path, "sess-1", defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Assets, 1)
	assert.Equal(t, "sess-1", res.Assets[0].SessionID)
	assert.Equal(t, path, res.Assets[0].DocumentPath)
}

func TestDetectedOffsetsMatchParser(t *testing.T) {
	lines := []string{
		claudePrompt,
		claudeAssistant,
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t","content":"x"}]}}`,
		claudeImageLine(pngPayload(100)),
	}
	path := filepath.Join(t.TempDir(), "s.jsonl")
	data := []byte(strings.Join(lines, "\n") + "\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	pr := source.ParseFile(source.DiscoveredFile{Path: path, Format: source.FormatClaude})
	require.NoError(t, pr.Err)
	assert.Equal(t, UserOffsets(pr.Session), detectUserOffsets(data))
}

func TestBackgroundScanner(t *testing.T) {
	dir := t.TempDir()
	var jobs []Job
	for _, name := range []string{"a", "b", "c"} {
		path := filepath.Join(dir, name+".jsonl")
		require.NoError(t, os.WriteFile(path, []byte(codexImageLine(pngPayload(200))), 0o600))
		jobs = append(jobs, Job{SessionID: name, Path: path})
	}

	s := NewBackgroundScanner(0, defaultOpts())
	var seen []string
	err := s.Run(context.Background(), jobs, func(j Job, r Result) {
		seen = append(seen, j.SessionID)
		assert.Len(t, r.Assets, 1)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	ctx, cancel := context.WithCancel(context.Background())
	seen = nil
	err = s.Run(ctx, jobs, func(j Job, _ Result) {
		seen = append(seen, j.SessionID)
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, seen)
}

func TestJobFor(t *testing.T) {
	d := model.Document{ID: "x", Path: "/p", Session: &model.Session{Events: []model.Event{
		{Kind: model.RoleMeta, RawOffset: 0},
		{Kind: model.RoleUser, RawOffset: 10},
	}}}
	j := JobFor(d)
	assert.Equal(t, []int64{10}, j.UserOffsets)
	assert.Nil(t, JobFor(model.Document{ID: "y"}).UserOffsets)
}
