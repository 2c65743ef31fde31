// Package daemon provides the long-running index service: it keeps the
// catalog and text cache fresh and serves search over HTTP.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jazzyalex/agent-sessions/internal/logging"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
	"github.com/jazzyalex/agent-sessions/internal/search"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/store"
	"github.com/jazzyalex/agent-sessions/internal/watch"
)

var log = logging.ForComponent(logging.CompDaemon)

// Config controls the daemon runtime behavior.
type Config struct {
	Roots        []source.Root
	Load         pipeline.LoadOptions
	Search       search.Options
	Days         int
	Interval     time.Duration
	Addr         string
	EventsBuffer int
	Watch        bool
	Debounce     time.Duration
}

// Snapshot is a compact catalog state for status/event payloads.
type Snapshot struct {
	At        time.Time `json:"at"`
	Documents int       `json:"documents"`
	Indexed   int       `json:"indexed"`
	Prompts   int       `json:"prompts"`
	Bytes     int64     `json:"bytes"`
	Repos     int       `json:"repos"`
	Sources   int       `json:"sources"`
}

// Delta captures snapshot deltas between loads.
type Delta struct {
	Documents int   `json:"documents"`
	Indexed   int   `json:"indexed"`
	Prompts   int   `json:"prompts"`
	Bytes     int64 `json:"bytes"`
}

func (d Delta) isZero() bool {
	return d.Documents == 0 && d.Indexed == 0 && d.Prompts == 0 && d.Bytes == 0
}

// Event is emitted whenever the catalog changes.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
	Paths     []string  `json:"paths,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastLoadAt      time.Time `json:"last_load_at"`
	IntervalSec     int       `json:"interval_sec"`
	LoadCount       int64     `json:"load_count"`
	Days            int       `json:"days"`
	Watching        bool      `json:"watching"`
	Summary         Snapshot  `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Hit is one search result as served by /v1/search.
type Hit struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Path       string    `json:"path"`
	Repo       string    `json:"repo,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
	SizeBytes  int64     `json:"size_bytes"`
	Phase      string    `json:"phase"`
	Matches    int       `json:"matches"`
	Snippet    string    `json:"snippet"`
}

// SearchResponse is the body of /v1/search.
type SearchResponse struct {
	Query        string `json:"query"`
	Phase        string `json:"phase"`
	StoppedEarly bool   `json:"stopped_early"`
	Skipped      int    `json:"skipped"`
	Total        int    `json:"total"`
	Results      []Hit  `json:"results"`
}

// LoadFunc builds the catalog.
type LoadFunc func(ctx context.Context) ([]model.Document, error)

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg     Config
	cache   *store.Cache
	load    LoadFunc
	sources []search.Source

	mu          sync.RWMutex
	startedAt   time.Time
	lastLoadAt  time.Time
	loadCount   int64
	lastError   string
	watching    bool
	hasSnapshot bool
	snapshot    Snapshot
	docs        []model.Document
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a service over cfg.Roots. A nil cache loads without one.
func New(cfg Config, cache *store.Cache) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = watch.DefaultDebounce
	}

	s := &Service{
		cfg:       cfg,
		cache:     cache,
		sources:   pipeline.Sources(cfg.Roots, cache),
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
	s.load = s.loadCatalog
	return s
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)
	mux.HandleFunc("/v1/search", s.handleSearch)
	return mux
}

// Run serves the HTTP API and keeps the catalog fresh until ctx is
// canceled. File changes reported by the watcher trigger an incremental
// reload; the interval forces a full rescan.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Seed the catalog so status and search are useful immediately.
	s.reload(ctx, nil)

	var changes <-chan string
	if s.cfg.Watch {
		if w, err := s.startWatcher(ctx); err != nil {
			log.Warn("watch_unavailable", "err", err)
		} else {
			defer func() { _ = w.Close() }()
			changes = w.Changes()
		}
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	flush := time.NewTicker(time.Second)
	defer flush.Stop()

	var pending []string
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.reload(ctx, nil)
			pending = nil
		case p := <-changes:
			pending = append(pending, p)
		case <-flush.C:
			if len(pending) > 0 {
				s.reload(ctx, pending)
				pending = nil
			}
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

func (s *Service) startWatcher(ctx context.Context) (*watch.Watcher, error) {
	var inv watch.Invalidator
	if s.cache != nil {
		inv = s.cache
	}
	w, err := watch.New(pipeline.RootDirs(s.cfg.Roots), inv, s.cfg.Debounce)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("watch_stopped", "err", err)
		}
	}()
	s.mu.Lock()
	s.watching = true
	s.mu.Unlock()
	return w, nil
}

func (s *Service) loadCatalog(ctx context.Context) ([]model.Document, error) {
	if s.cache != nil {
		cr, err := pipeline.LoadWithCache(ctx, s.cfg.Roots, s.cfg.Load, s.cache, nil)
		if err == nil {
			return cr.Documents, nil
		}
		log.Warn("cached_load_failed", "err", err)
	}
	res, err := pipeline.Load(ctx, s.cfg.Roots, s.cfg.Load, nil)
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}

// reload rebuilds the catalog and publishes an event when it changed.
// paths lists the files that prompted the reload, if any.
func (s *Service) reload(ctx context.Context, paths []string) {
	docs, err := s.load(ctx)
	now := time.Now()
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastLoadAt = now
		s.loadCount++
		s.mu.Unlock()
		log.Error("load_failed", "err", err)
		return
	}

	if s.cfg.Days > 0 {
		docs = pipeline.FilterByTime(docs, now.AddDate(0, 0, -s.cfg.Days), time.Time{})
	}
	snap := snapshotOf(docs, now)

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot

	s.docs = docs
	s.hasSnapshot = true
	s.snapshot = snap
	s.lastLoadAt = now
	s.loadCount++
	s.lastError = ""

	switch delta := diffSnapshots(prev, snap); {
	case !prevExists:
		ev = Event{Type: "snapshot", Snapshot: snap}
		publish = true
	case len(paths) > 0:
		ev = Event{Type: "changed", Snapshot: snap, Delta: delta, Paths: paths}
		publish = true
	case !delta.isZero():
		ev = Event{Type: "catalog_delta", Snapshot: snap, Delta: delta}
		publish = true
	}
	s.mu.Unlock()

	if publish {
		ev.Timestamp = now
		s.publishEvent(ev)
	}
	log.Info("catalog_reloaded", "documents", snap.Documents, "changed", len(paths))
}

func snapshotOf(docs []model.Document, at time.Time) Snapshot {
	stats := pipeline.Aggregate(docs, time.Time{}, time.Time{})
	indexed := 0
	for _, d := range docs {
		if d.Indexed {
			indexed++
		}
	}
	return Snapshot{
		At:        at,
		Documents: len(docs),
		Indexed:   indexed,
		Prompts:   stats.TotalPrompts,
		Bytes:     stats.TotalBytes,
		Repos:     stats.Repos,
		Sources:   stats.Sources,
	}
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		Documents: curr.Documents - prev.Documents,
		Indexed:   curr.Indexed - prev.Indexed,
		Prompts:   curr.Prompts - prev.Prompts,
		Bytes:     curr.Bytes - prev.Bytes,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.nextEventID++
	ev.ID = s.nextEventID
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastLoadAt:      s.lastLoadAt,
		IntervalSec:     int(s.cfg.Interval.Seconds()),
		LoadCount:       s.loadCount,
		Days:            s.cfg.Days,
		Watching:        s.watching,
		Summary:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

// handleSearch runs one search to completion over the current catalog.
// Parameters: q (required), deep, repo, source, limit.
func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	req := search.Request{
		Filters:  model.Filters{Query: params.Get("q"), Repo: params.Get("repo")},
		DeepScan: params.Get("deep") == "1" || params.Get("deep") == "true",
	}
	if src := params.Get("source"); src != "" {
		req.Include = map[string]bool{src: true}
	}
	limit := 50
	if v, err := strconv.Atoi(params.Get("limit")); err == nil && v > 0 {
		limit = v
	}

	s.mu.RLock()
	req.Documents = s.docs
	s.mu.RUnlock()

	coord := search.NewCoordinator(s.cfg.Search, s.sources...)
	if _, err := coord.Start(r.Context(), req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	snap := coord.Wait()
	if r.Context().Err() != nil {
		return
	}

	resp := SearchResponse{
		Query:        snap.Query,
		Phase:        snap.Phase().String(),
		StoppedEarly: snap.StoppedEarly,
		Skipped:      snap.Skipped,
		Total:        len(snap.Results),
		Results:      make([]Hit, 0, min(limit, len(snap.Results))),
	}
	for i, res := range snap.Results {
		if i >= limit {
			break
		}
		resp.Results = append(resp.Results, Hit{
			ID:         res.DocumentID,
			Source:     res.Source,
			Path:       res.Path,
			Repo:       res.Repo,
			ModifiedAt: res.ModifiedAt,
			SizeBytes:  res.SizeBytes,
			Phase:      res.Phase.String(),
			Matches:    res.MatchCount,
			Snippet:    res.Snippet,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	current := Event{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Snapshot:  s.snapshotStatus().Summary,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
