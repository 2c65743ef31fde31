package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/store"
)

func rollout(cwd, prompt string) string {
	return strings.Join([]string{
		`{"timestamp":"2025-09-01T12:00:00Z","type":"session_meta","payload":{"cwd":"` + cwd + `"}}`,
		`{"timestamp":"2025-09-01T12:00:01Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"` + prompt + `"}]}}`,
	}, "\n") + "\n"
}

func writeRollout(t *testing.T, dir, id, body string) string {
	t.Helper()
	day := filepath.Join(dir, "2025", "09", "01")
	require.NoError(t, os.MkdirAll(day, 0o750))
	path := filepath.Join(day, "rollout-2025-09-01T12-00-00-"+id+".jsonl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const (
	idA = "0199a1b2-0000-7000-8000-00000000000a"
	idB = "0199a1b2-0000-7000-8000-00000000000b"
)

func codexRoot(t *testing.T) (source.Root, string, string) {
	dir := t.TempDir()
	a := writeRollout(t, dir, idA, rollout("/work/alpha", "small prompt"))
	b := writeRollout(t, dir, idB, rollout("/work/beta", strings.Repeat("x", 4096)))
	return source.Root{Name: "codex", Dir: dir, Format: source.FormatCodex}, a, b
}

func byID(docs []model.Document) map[string]model.Document {
	m := make(map[string]model.Document, len(docs))
	for _, d := range docs {
		m[d.ID] = d
	}
	return m
}

func TestLoad_EagerAndDeferred(t *testing.T) {
	root, _, _ := codexRoot(t)
	var last [2]int
	res, err := Load(context.Background(), []source.Root{root}, LoadOptions{EagerParseBytes: 1024}, func(cur, total int) {
		last = [2]int{cur, total}
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalFiles)
	assert.Equal(t, 1, res.ParsedFiles)
	assert.Equal(t, [2]int{2, 2}, last)

	docs := byID(res.Documents)
	require.Len(t, docs, 2)

	small := docs[idA]
	assert.True(t, small.Indexed)
	require.NotNil(t, small.Session)
	assert.Equal(t, "alpha", small.Repo)
	assert.Equal(t, 1, small.Prompts)
	assert.Equal(t, "codex", small.Source)

	large := docs[idB]
	assert.False(t, large.Indexed)
	assert.Nil(t, large.Session)
	assert.Equal(t, "beta", large.Repo, "repo comes from the head scan")
	assert.True(t, large.StartTime.Equal(time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)))
}

func TestLoad_Cancelled(t *testing.T) {
	root, _, _ := codexRoot(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, []source.Root{root}, LoadOptions{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadWithCache_DiffsAgainstTracker(t *testing.T) {
	root, pathA, pathB := codexRoot(t)
	cache, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	roots := []source.Root{root}
	opts := LoadOptions{EagerParseBytes: 1024}

	first, err := LoadWithCache(context.Background(), roots, opts, cache, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, first.CacheHits)
	assert.Equal(t, 1, first.Reparsed)
	assert.Equal(t, 1, first.Deferred)
	require.NoError(t, cache.PutText("codex", idA, "extracted"))

	second, err := LoadWithCache(context.Background(), roots, opts, cache, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.CacheHits)
	assert.Equal(t, 0, second.Reparsed)
	a := byID(second.Documents)[idA]
	assert.True(t, a.Indexed)
	assert.Nil(t, a.Session, "cached documents are lightweight")
	assert.Equal(t, 1, a.Prompts)

	// Touch A: it is reparsed and its stale text dropped.
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(pathA, later, later))
	third, err := LoadWithCache(context.Background(), roots, opts, cache, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Reparsed)
	_, ok, err := cache.GetText("codex", idA)
	require.NoError(t, err)
	assert.False(t, ok)

	// Remove A: its rows are pruned.
	require.NoError(t, os.Remove(pathA))
	fourth, err := LoadWithCache(context.Background(), roots, opts, cache, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fourth.Pruned)
	n, err := cache.DocumentCount()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, fourth.Documents, 1)
	assert.Equal(t, pathB, fourth.Documents[0].Path)
}

func day(d int) time.Time {
	return time.Date(2025, 9, d, 12, 0, 0, 0, time.Local)
}

func catalog() []model.Document {
	return []model.Document{
		{ID: "1", Source: "claude", Repo: "alpha", StartTime: day(1), Prompts: 2, SizeBytes: 100},
		{ID: "2", Source: "codex", Repo: "alpha", StartTime: day(3), Prompts: 1, SizeBytes: 50, Model: "gpt-5-codex"},
		{ID: "3", Source: "codex", Repo: "beta", StartTime: day(2), Prompts: 4, SizeBytes: 10, Model: "gpt-5"},
		{ID: "4", Source: "claude", Repo: "alphabet", StartTime: day(9), Prompts: 1},
	}
}

func TestAggregate(t *testing.T) {
	stats := Aggregate(catalog(), day(1), day(4))
	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 7, stats.TotalPrompts)
	assert.Equal(t, int64(160), stats.TotalBytes)
	assert.Equal(t, 3, stats.ActiveDays)
	assert.Equal(t, 2, stats.Repos)
	assert.Equal(t, 2, stats.Sources)
	assert.InDelta(t, 1.0, stats.SessionsPerDay, 1e-9)
}

func TestAggregateDays_FillsGaps(t *testing.T) {
	days := AggregateDays(catalog(), day(1), day(5))
	require.Len(t, days, 5)
	assert.True(t, days[0].Date.After(days[4].Date))
	assert.Equal(t, 0, days[0].Sessions) // Sep 5
	assert.Equal(t, 1, days[2].Sessions) // Sep 3
}

func TestAggregateRepos(t *testing.T) {
	repos := AggregateRepos(catalog(), time.Time{}, time.Time{})
	require.Len(t, repos, 3)
	assert.Equal(t, "alphabet", repos[0].Repo)
	assert.Equal(t, "alpha", repos[1].Repo)
	assert.Equal(t, 2, repos[1].Sessions)
	assert.Equal(t, []string{"claude", "codex"}, repos[1].Sources)
	assert.True(t, repos[1].LastActive.Equal(day(3)))
}

func TestFilters(t *testing.T) {
	docs := catalog()
	assert.Len(t, FilterByRepo(docs, "ALPHA"), 3)
	assert.Len(t, FilterByModel(docs, "codex"), 1)
	assert.Len(t, FilterBySource(docs, "claude"), 2)
	assert.Len(t, FilterByTime(docs, day(2), day(3)), 1)
	assert.Len(t, FilterByRepo(docs, ""), 4)
}

func TestSortAndFind(t *testing.T) {
	docs := catalog()
	SortByRecent(docs)
	assert.Equal(t, "4", docs[0].ID)

	docs = []model.Document{{ID: "abc123"}, {ID: "abd456"}}
	d, ok := FindDocument(docs, "abc")
	assert.True(t, ok)
	assert.Equal(t, "abc123", d.ID)
	_, ok = FindDocument(docs, "ab")
	assert.False(t, ok, "ambiguous prefix")
}

func TestSuggestRepos(t *testing.T) {
	got := SuggestRepos(catalog(), "alp", 0)
	assert.ElementsMatch(t, []string{"alpha", "alphabet"}, got)
	assert.Len(t, SuggestRepos(catalog(), "a", 1), 1)
	assert.Empty(t, SuggestRepos(catalog(), "zzz", 0))
}

func TestSources_OnePerName(t *testing.T) {
	roots := []source.Root{{Name: "claude"}, {Name: "codex"}, {Name: "claude", Dir: "/elsewhere"}}
	srcs := Sources(roots, nil)
	require.Len(t, srcs, 2)
	assert.Equal(t, "claude", srcs[0].Name())
	assert.Equal(t, "codex", srcs[1].Name())

	_, ok := srcs[0].CachedText("any")
	assert.False(t, ok, "no cache means every lookup misses")
	assert.NoError(t, srcs[1].StoreText("any", "text"))
	assert.Equal(t, []string{"", "", "/elsewhere"}, RootDirs(roots))
}
