package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/search"
	"github.com/jazzyalex/agent-sessions/internal/source"
)

func session(id, repo string, texts ...string) model.Document {
	s := &model.Session{ID: id, Source: "codex", Path: "/logs/" + id + ".jsonl", Repo: repo}
	for _, t := range texts {
		s.Events = append(s.Events, model.Event{Kind: model.RoleUser, Text: t})
	}
	return model.Document{
		ID: id, Source: "codex", Path: s.Path, Repo: repo,
		StartTime: time.Now(), SizeBytes: 100, Prompts: len(texts),
		Indexed: true, Session: s,
	}
}

func testService(t *testing.T, docs ...model.Document) *Service {
	t.Helper()
	s := New(Config{
		Roots:        []source.Root{{Name: "codex"}},
		Search:       search.DefaultOptions(),
		EventsBuffer: 10,
	}, nil)
	s.load = func(context.Context) ([]model.Document, error) { return docs, nil }
	s.reload(context.Background(), nil)
	return s
}

func TestDiffSnapshots(t *testing.T) {
	prev := Snapshot{Documents: 10, Indexed: 8, Prompts: 100, Bytes: 1_000}
	curr := Snapshot{Documents: 12, Indexed: 8, Prompts: 112, Bytes: 1_500}

	delta := diffSnapshots(prev, curr)
	assert.Equal(t, Delta{Documents: 2, Prompts: 12, Bytes: 500}, delta)
	assert.False(t, delta.isZero())
	assert.True(t, diffSnapshots(curr, curr).isZero())
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{EventsBuffer: 2}, nil)

	s.publishEvent(Event{Type: "a"})
	s.publishEvent(Event{Type: "b"})
	s.publishEvent(Event{Type: "c"})

	s.mu.RLock()
	defer s.mu.RUnlock()
	require.Len(t, s.events, 2)
	assert.Equal(t, int64(2), s.events[0].ID)
	assert.Equal(t, int64(3), s.events[1].ID)
}

func TestReloadPublishesOnChange(t *testing.T) {
	s := testService(t, session("a", "alpha", "one"))
	require.Len(t, s.events, 1)
	assert.Equal(t, "snapshot", s.events[0].Type)
	assert.Equal(t, 1, s.snapshot.Documents)

	// Same catalog, no file changes: nothing new.
	s.reload(context.Background(), nil)
	assert.Len(t, s.events, 1)

	s.reload(context.Background(), []string{"/logs/a.jsonl"})
	require.Len(t, s.events, 2)
	assert.Equal(t, "changed", s.events[1].Type)
	assert.Equal(t, []string{"/logs/a.jsonl"}, s.events[1].Paths)
	assert.Equal(t, int64(3), s.loadCount)
}

func TestHandleSearch(t *testing.T) {
	s := testService(t,
		session("a", "alpha", "deploy the staging cluster"),
		session("b", "beta", "write unit tests"),
	)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	get := func(q string) (*http.Response, SearchResponse) {
		resp, err := http.Get(srv.URL + "/v1/search?q=" + url.QueryEscape(q))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		var body SearchResponse
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		}
		return resp, body
	}

	resp, body := get("staging")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "a", body.Results[0].ID)
	assert.Equal(t, "alpha", body.Results[0].Repo)
	assert.Contains(t, body.Results[0].Snippet, "staging")

	_, body = get("repo:beta")
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "b", body.Results[0].ID)

	resp, _ = get(`"unterminated`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStatus(t *testing.T) {
	s := testService(t, session("a", "alpha", "x"), session("b", "alpha", "y", "z"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, 2, st.Summary.Documents)
	assert.Equal(t, 3, st.Summary.Prompts)
	assert.Equal(t, 1, st.Summary.Repos)
	assert.Equal(t, 1, st.EventCount)
}
