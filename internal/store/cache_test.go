package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func doc(id, path string) model.Document {
	return model.Document{
		ID:         id,
		Source:     "codex",
		Path:       path,
		Repo:       "demo",
		Model:      "gpt-5",
		StartTime:  time.Date(2025, 9, 1, 12, 0, 0, 500, time.UTC),
		ModifiedAt: time.Unix(0, 1_700_000_000_123_456_789),
		SizeBytes:  4096,
	}
}

func TestSaveAndLoadDocuments(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.SaveDocument(doc("d1", "/logs/a.jsonl"), DocumentStats{UserEvents: 3, EventCount: 10}))

	docs, err := c.LoadDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 1)

	got := docs[0]
	assert.Equal(t, "d1", got.ID)
	assert.Equal(t, "codex", got.Source)
	assert.Equal(t, "demo", got.Repo)
	assert.True(t, got.Indexed)
	assert.Equal(t, 3, got.Prompts)
	assert.Nil(t, got.Session)
	assert.True(t, got.StartTime.Equal(doc("", "").StartTime))
	assert.Equal(t, int64(1_700_000_000_123_456_789), got.ModifiedAt.UnixNano())

	tracked, err := c.GetTrackedFiles()
	require.NoError(t, err)
	assert.Equal(t, FileInfo{MtimeNs: 1_700_000_000_123_456_789, SizeBytes: 4096}, tracked["/logs/a.jsonl"])
}

func TestTextRoundTripAndIdempotentWrite(t *testing.T) {
	c := openTemp(t)

	_, ok, err := c.GetText("codex", "d1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutText("codex", "d1", "hello"))
	require.NoError(t, c.PutText("codex", "d1", "hello"))

	text, ok, err := c.GetText("codex", "d1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", text)

	n, err := c.TextCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same id under another source is a separate entry.
	_, ok, _ = c.GetText("claude", "d1")
	assert.False(t, ok)
}

func TestSaveDocumentDropsStaleText(t *testing.T) {
	c := openTemp(t)
	d := doc("d1", "/logs/a.jsonl")
	require.NoError(t, c.SaveDocument(d, DocumentStats{}))
	require.NoError(t, c.PutText(d.Source, d.ID, "old"))

	require.NoError(t, c.SaveDocument(d, DocumentStats{}))
	_, ok, err := c.GetText(d.Source, d.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateAndDeletePath(t *testing.T) {
	c := openTemp(t)
	a, b := doc("a", "/logs/a.jsonl"), doc("b", "/logs/b.jsonl")
	require.NoError(t, c.SaveDocument(a, DocumentStats{}))
	require.NoError(t, c.SaveDocument(b, DocumentStats{}))
	require.NoError(t, c.PutText(a.Source, a.ID, "a text"))
	require.NoError(t, c.PutText(b.Source, b.ID, "b text"))

	require.NoError(t, c.InvalidatePath(a.Path))
	_, ok, _ := c.GetText(a.Source, a.ID)
	assert.False(t, ok)
	_, ok, _ = c.GetText(b.Source, b.ID)
	assert.True(t, ok)

	tracked, err := c.GetTrackedFiles()
	require.NoError(t, err)
	assert.NotContains(t, tracked, a.Path)
	n, _ := c.DocumentCount()
	assert.Equal(t, 2, n)

	require.NoError(t, c.DeletePath(a.Path))
	n, _ = c.DocumentCount()
	assert.Equal(t, 1, n)
}

func TestConcurrentWrites(t *testing.T) {
	c := openTemp(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, c.PutText("claude", "shared", "same text"))
			}
		}()
	}
	wg.Wait()

	text, ok, err := c.GetText("claude", "shared")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "same text", text)
}

func TestSaveDocumentReplacesRowForSamePath(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.SaveDocument(doc("old-id", "/logs/a.jsonl"), DocumentStats{}))
	require.NoError(t, c.PutText("codex", "old-id", "stale"))
	require.NoError(t, c.SaveDocument(doc("new-id", "/logs/a.jsonl"), DocumentStats{}))

	docs, err := c.LoadDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "new-id", docs[0].ID)
	n, _ := c.TextCount()
	assert.Zero(t, n)
}
