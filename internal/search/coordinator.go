// Package search runs phased, cancellable text searches across a catalog of
// agent session logs, publishing results as they are found.
package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jazzyalex/agent-sessions/internal/logging"
	"github.com/jazzyalex/agent-sessions/internal/model"
)

var log = logging.ForComponent(logging.CompSearch)

// Source supplies text for one agent's documents.
type Source interface {
	Name() string
	// CachedText returns previously extracted text without touching the
	// log file.
	CachedText(docID string) (string, bool)
	// ReparseFull reads and parses the log at path. forcedID is used as the
	// session id when the log carries none.
	ReparseFull(ctx context.Context, path, forcedID string) (*model.Session, error)
	// StoreText caches extracted text. Writes are last-writer-wins.
	StoreText(docID, text string) error
}

// Options tunes a coordinator.
type Options struct {
	Workers        int
	LargeFileBytes int64

	// MaxResults and TimeBudget let a run that is not a deep scan stop
	// after the cheap phases. Zero disables the check.
	MaxResults int
	TimeBudget time.Duration

	// MaxOccurrences caps the spans kept per result.
	MaxOccurrences int
	SnippetRadius  int
}

// DefaultOptions returns the options used when no config file exists.
func DefaultOptions() Options {
	return Options{
		Workers:        8,
		LargeFileBytes: 10 << 20,
		MaxResults:     200,
		TimeBudget:     2 * time.Second,
		MaxOccurrences: 50,
		SnippetRadius:  60,
	}
}

// Request describes one search run. Filters.Query holds the query string.
type Request struct {
	Filters model.Filters
	// Include limits the run to the named sources. Nil includes all.
	Include map[string]bool
	// DeepScan ignores MaxResults and TimeBudget.
	DeepScan  bool
	Documents []model.Document
}

// Result is one matching document.
type Result struct {
	DocumentID string
	Source     string
	Path       string
	Repo       string
	ModifiedAt time.Time
	SizeBytes  int64

	// Phase is the phase whose scan method found the match.
	Phase    model.Phase
	Promoted bool

	MatchCount int
	// Occurrences are spans into the searched text, in order.
	Occurrences []model.Span
	// Truncated is set when Occurrences was capped.
	Truncated bool
	Snippet   string
}

// Snapshot is an immutable view of a run. Each delivery replaces the
// previous one; Results only ever grows within a token.
type Snapshot struct {
	Token        uint64
	Query        string
	Progress     model.SearchProgress
	Results      []Result
	Running      bool
	Skipped      int
	StoppedEarly bool
	Err          error
}

// Phase returns the run's current phase.
func (s Snapshot) Phase() model.Phase { return s.Progress.Phase }

// Coordinator owns at most one active run. Starting a new run cancels the
// previous one; snapshots from older tokens are discarded.
type Coordinator struct {
	sources map[string]Source
	opts    Options
	updates chan Snapshot

	mu      sync.Mutex
	token   uint64
	cur     *run
	latest  Snapshot
	lastSeq uint64
}

// NewCoordinator returns a coordinator over the given sources.
func NewCoordinator(opts Options, sources ...Source) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	c := &Coordinator{
		sources: make(map[string]Source, len(sources)),
		opts:    opts,
		updates: make(chan Snapshot, 1),
	}
	for _, s := range sources {
		c.sources[s.Name()] = s
	}
	return c
}

// Updates delivers snapshots to a single consumer. Only the newest pending
// snapshot is kept, so a slow reader never blocks a run.
func (c *Coordinator) Updates() <-chan Snapshot {
	return c.updates
}

// Latest returns the most recent snapshot.
func (c *Coordinator) Latest() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Running reports whether the current run is still scanning.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest.Running
}

// Start cancels any active run and begins a new one. A malformed query
// returns ErrQueryMalformed with an empty final snapshot and no I/O.
func (c *Coordinator) Start(ctx context.Context, req Request) (uint64, error) {
	q, err := ParseQuery(req.Filters.Query)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		c.cur.cancel()
		c.cur = nil
	}
	c.token++
	tok := c.token
	c.lastSeq = 0

	if err != nil || (len(q.Terms) == 0 && q.Repo == "" && q.Path == "") {
		c.sendLocked(Snapshot{
			Token:    tok,
			Query:    req.Filters.Query,
			Progress: model.SearchProgress{Phase: model.PhaseDone},
			Err:      err,
		})
		return tok, err
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &run{
		c:       c,
		token:   tok,
		ctx:     rctx,
		cancel:  cancel,
		query:   q,
		req:     req,
		kinds:   req.Filters.Kinds,
		started: time.Now(),
		done:    make(chan struct{}),
		byID:    make(map[string][]*item),
	}
	// Structural filtering does no I/O; running it here makes every
	// candidate promotable as soon as Start returns.
	r.collect()
	c.cur = r
	c.sendLocked(Snapshot{Token: tok, Query: req.Filters.Query, Running: true})
	log.Debug("search_start", "token", tok, "query", req.Filters.Query, "documents", len(req.Documents), "deep", req.DeepScan)
	go r.execute()
	return tok, nil
}

// Promote moves an unstarted document to the front of the work queue so it
// is scanned next, whatever phase it belongs to. It reports whether
// anything was queued.
func (c *Coordinator) Promote(docID string) bool {
	c.mu.Lock()
	r := c.cur
	c.mu.Unlock()
	if r == nil {
		return false
	}
	return r.promote(docID)
}

// Cancel stops the active run at the next document boundary. Nothing more
// is published for its token.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return
	}
	c.cur.cancel()
	if c.latest.Token == c.cur.token {
		c.latest.Running = false
	}
	log.Debug("search_cancel", "token", c.cur.token)
}

// Wait blocks until the active run has stopped and returns the latest
// snapshot.
func (c *Coordinator) Wait() Snapshot {
	c.mu.Lock()
	r := c.cur
	c.mu.Unlock()
	if r != nil {
		<-r.done
	}
	return c.Latest()
}

func (c *Coordinator) deliver(r *run, seq uint64, snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != r || r.ctx.Err() != nil || seq <= c.lastSeq {
		return
	}
	c.lastSeq = seq
	c.sendLocked(snap)
}

func (c *Coordinator) sendLocked(snap Snapshot) {
	c.latest = snap
	select {
	case c.updates <- snap:
	default:
		select {
		case <-c.updates:
		default:
		}
		select {
		case c.updates <- snap:
		default:
		}
	}
}

type stage uint8

const (
	stageNew          stage = iota // not yet checked against the cache
	stageUncached                  // cache miss, waiting for a raw scan
	stageConversation              // conversation scanned without a match
	stageFinal                     // matched, failed, or exhausted
)

// tiers group a small phase with its large counterpart for progress.
const (
	tierIndexed = iota
	tierLegacy
	tierUnindexed
	tierTools
	numTiers
)

func tierOf(p model.Phase) int {
	switch p {
	case model.PhaseLegacySmall, model.PhaseLegacyLarge:
		return tierLegacy
	case model.PhaseUnindexedSmall, model.PhaseUnindexedLarge:
		return tierUnindexed
	case model.PhaseToolOutputsSmall, model.PhaseToolOutputsLarge:
		return tierTools
	}
	return tierIndexed
}

type item struct {
	doc   model.Document
	src   Source
	large bool

	stage    stage
	busy     bool
	promoted bool
}

func (it *item) convPhase() model.Phase {
	switch {
	case it.doc.Indexed && it.large:
		return model.PhaseLegacyLarge
	case it.doc.Indexed:
		return model.PhaseLegacySmall
	case it.large:
		return model.PhaseUnindexedLarge
	}
	return model.PhaseUnindexedSmall
}

func (it *item) toolPhase() model.Phase {
	if it.large {
		return model.PhaseToolOutputsLarge
	}
	return model.PhaseToolOutputsSmall
}

// inPhase reports whether the item's pending work belongs to phase.
func (it *item) inPhase(p model.Phase) bool {
	switch tierOf(p) {
	case tierIndexed:
		return it.stage == stageNew
	case tierTools:
		return it.stage == stageConversation && it.toolPhase() == p
	}
	return it.stage == stageUncached && it.convPhase() == p
}

type run struct {
	c       *Coordinator
	token   uint64
	ctx     context.Context
	cancel  context.CancelFunc
	query   Query
	req     Request
	kinds   model.RoleSet
	started time.Time
	done    chan struct{}

	mu       sync.Mutex
	items    []*item
	byID     map[string][]*item
	promoted []*item
	queue    []*item
	qpos     int
	phase    model.Phase
	total    [numTiers][2]int
	scanned  [numTiers][2]int
	results  []Result
	skipped  int
	early    bool
	finished bool
	seq      uint64
}

func (r *run) execute() {
	defer close(r.done)
	defer r.finish()

	if len(r.query.Terms) == 0 {
		r.listStructural()
		return
	}

	for _, p := range model.ScanPhases {
		if r.ctx.Err() != nil {
			return
		}
		if tierOf(p) == tierTools && !r.toolsAllowed() {
			continue
		}
		if r.shouldStopEarly(p) {
			r.mu.Lock()
			r.early = true
			r.mu.Unlock()
			log.Debug("search_stopped_early", "token", r.token, "before", p.String())
			return
		}
		r.runPhase(p)
	}
}

func (r *run) toolsAllowed() bool {
	return r.kinds.Has(model.RoleToolOutput)
}

func (r *run) shouldStopEarly(p model.Phase) bool {
	if r.req.DeepScan || p <= model.PhaseLegacySmall {
		return false
	}
	opts := r.c.opts
	r.mu.Lock()
	n := len(r.results)
	r.mu.Unlock()
	if opts.MaxResults > 0 && n >= opts.MaxResults {
		return true
	}
	return opts.TimeBudget > 0 && time.Since(r.started) >= opts.TimeBudget
}

// collect applies the structural filters. Documents without a registered
// source, or from an excluded one, are dropped.
func (r *run) collect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.req.Documents {
		src := r.c.sources[d.Source]
		if src == nil || (r.req.Include != nil && !r.req.Include[d.Source]) {
			continue
		}
		if !r.structuralMatch(d) {
			continue
		}
		it := &item{doc: d, src: src, large: d.SizeBytes >= r.c.opts.LargeFileBytes && r.c.opts.LargeFileBytes > 0}
		r.items = append(r.items, it)
		r.byID[d.ID] = append(r.byID[d.ID], it)
		r.total[tierIndexed][sizeIdx(it)]++
	}
}

func sizeIdx(it *item) int {
	if it.large {
		return 1
	}
	return 0
}

func (r *run) structuralMatch(d model.Document) bool {
	f := r.req.Filters
	t := d.Time()
	if !f.Since.IsZero() && t.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && t.After(f.Until) {
		return false
	}
	if f.Model != "" && !containsFold(d.Model, f.Model) {
		return false
	}
	for _, repo := range []string{f.Repo, r.query.Repo} {
		if repo != "" && !strings.EqualFold(d.Repo, repo) {
			return false
		}
	}
	for _, path := range []string{f.Path, r.query.Path} {
		if path != "" && !containsFold(d.Path, path) {
			return false
		}
	}
	if d.Session != nil && !d.Session.HasKind(f.Kinds) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// listStructural handles a query made only of field filters: every
// document that passes them is a result.
func (r *run) listStructural() {
	r.mu.Lock()
	r.phase = model.PhaseIndexed
	for _, it := range r.items {
		it.stage = stageFinal
		r.results = append(r.results, resultFor(it, model.PhaseIndexed, textMatch{}))
		r.scanned[tierIndexed][sizeIdx(it)]++
	}
	r.mu.Unlock()
}

func (r *run) runPhase(p model.Phase) {
	r.mu.Lock()
	r.phase = p
	r.queue = r.queue[:0]
	r.qpos = 0
	for _, it := range r.items {
		if it.inPhase(p) {
			r.queue = append(r.queue, it)
		}
	}
	n := len(r.queue) + len(r.promoted)
	r.mu.Unlock()
	r.publish()
	if n == 0 {
		return
	}

	workers := r.c.opts.Workers
	if workers > n {
		workers = n
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for r.ctx.Err() == nil {
				it, promoted, ok := r.next(p)
				if !ok {
					return nil
				}
				if promoted {
					r.scanPromoted(it)
				} else {
					r.step(it)
				}
				r.release(it)
				r.publish()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// next hands out promoted items first, then the phase queue.
func (r *run) next(p model.Phase) (*item, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.promoted) > 0 {
		it := r.promoted[0]
		r.promoted = r.promoted[1:]
		if it.busy || it.stage == stageFinal {
			continue
		}
		it.busy = true
		return it, true, true
	}
	for r.qpos < len(r.queue) {
		it := r.queue[r.qpos]
		r.qpos++
		if it.busy || !it.inPhase(p) {
			continue
		}
		it.busy = true
		return it, false, true
	}
	return nil, false, false
}

func (r *run) release(it *item) {
	r.mu.Lock()
	it.busy = false
	r.mu.Unlock()
}

func (r *run) promote(docID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return false
	}
	queued := false
	for _, it := range r.byID[docID] {
		if it.stage == stageFinal || it.busy {
			continue
		}
		it.promoted = true
		r.promoted = append([]*item{it}, r.promoted...)
		queued = true
	}
	if queued {
		log.Debug("search_promote", "token", r.token, "doc", docID)
	}
	return queued
}

// scanPromoted runs every remaining step for one document.
func (r *run) scanPromoted(it *item) {
	for r.ctx.Err() == nil {
		before := r.stageOf(it)
		if before == stageFinal {
			return
		}
		r.step(it)
		if r.stageOf(it) == before {
			return
		}
	}
}

func (r *run) stageOf(it *item) stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return it.stage
}

// step performs the item's next pending scan.
func (r *run) step(it *item) {
	switch r.stageOf(it) {
	case stageNew:
		r.scanCached(it)
	case stageUncached:
		r.scanConversation(it)
	case stageConversation:
		r.scanTools(it)
	}
}

func (r *run) missStage() stage {
	if r.toolsAllowed() {
		return stageConversation
	}
	return stageFinal
}

func (r *run) scanCached(it *item) {
	text, ok := it.src.CachedText(it.doc.ID)
	var m textMatch
	matched := false
	if ok {
		m, matched = r.match(DecodeText(text, r.kinds))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanned[tierIndexed][sizeIdx(it)]++
	switch {
	case !ok:
		it.stage = stageUncached
		r.total[tierOf(it.convPhase())][sizeIdx(it)]++
	case matched:
		it.stage = stageFinal
		r.addLocked(it, model.PhaseIndexed, m)
	default:
		r.missLocked(it)
	}
}

func (r *run) scanConversation(it *item) {
	s, err := r.session(it)
	if err != nil && r.ctx.Err() != nil {
		return
	}
	var m textMatch
	matched := false
	if err == nil {
		text := EncodeText(s)
		if serr := it.src.StoreText(it.doc.ID, text); serr != nil {
			log.Warn("store_text_failed", "source", it.src.Name(), "doc", it.doc.ID, "err", serr)
		}
		m, matched = r.match(DecodeText(text, r.kinds))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanned[tierOf(it.convPhase())][sizeIdx(it)]++
	switch {
	case err != nil:
		r.skipLocked(it, err)
	case matched:
		it.stage = stageFinal
		r.addLocked(it, it.convPhase(), m)
	default:
		r.missLocked(it)
	}
}

func (r *run) scanTools(it *item) {
	s, err := r.session(it)
	if err != nil && r.ctx.Err() != nil {
		return
	}
	var m textMatch
	matched := false
	if err == nil {
		text := DecodeText(EncodeText(s), r.kinds)
		if tools := ToolOutputText(s); tools != "" {
			text += "\n" + tools
		}
		m, matched = r.match(text)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanned[tierTools][sizeIdx(it)]++
	switch {
	case err != nil:
		r.skipLocked(it, err)
	case matched:
		it.stage = stageFinal
		r.addLocked(it, it.toolPhase(), m)
	default:
		it.stage = stageFinal
	}
}

func (r *run) session(it *item) (*model.Session, error) {
	if it.doc.Session != nil {
		return it.doc.Session, nil
	}
	return it.src.ReparseFull(r.ctx, it.doc.Path, it.doc.ID)
}

func (r *run) match(text string) (textMatch, bool) {
	return matchText(text, r.query.Terms, r.c.opts.MaxOccurrences, r.c.opts.SnippetRadius)
}

func (r *run) missLocked(it *item) {
	it.stage = r.missStage()
	if it.stage == stageConversation {
		r.total[tierTools][sizeIdx(it)]++
	}
}

func (r *run) skipLocked(it *item, err error) {
	it.stage = stageFinal
	r.skipped++
	log.Debug("search_skip", "path", it.doc.Path, "err", err)
}

func (r *run) addLocked(it *item, p model.Phase, m textMatch) {
	r.results = append(r.results, resultFor(it, p, m))
}

func resultFor(it *item, p model.Phase, m textMatch) Result {
	d := it.doc
	return Result{
		DocumentID:  d.ID,
		Source:      d.Source,
		Path:        d.Path,
		Repo:        d.Repo,
		ModifiedAt:  d.ModifiedAt,
		SizeBytes:   d.SizeBytes,
		Phase:       p,
		Promoted:    it.promoted,
		MatchCount:  m.count,
		Occurrences: m.occurrences,
		Truncated:   m.count > len(m.occurrences),
		Snippet:     m.snippet,
	}
}

func (r *run) snapshotLocked() Snapshot {
	tier := tierOf(r.phase)
	prog := model.SearchProgress{Phase: r.phase}
	if r.phase != model.PhaseIdle && r.phase != model.PhaseDone {
		prog.ScannedSmall = r.scanned[tier][0]
		prog.TotalSmall = r.total[tier][0]
		prog.ScannedLarge = r.scanned[tier][1]
		prog.TotalLarge = r.total[tier][1]
	}
	return Snapshot{
		Token:        r.token,
		Query:        r.req.Filters.Query,
		Progress:     prog,
		Results:      r.results[:len(r.results):len(r.results)],
		Running:      !r.finished,
		Skipped:      r.skipped,
		StoppedEarly: r.early,
	}
}

func (r *run) publish() {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.c.deliver(r, seq, snap)
}

func (r *run) finish() {
	r.mu.Lock()
	r.finished = true
	r.phase = model.PhaseDone
	r.promoted = nil
	n, skipped := len(r.results), r.skipped
	r.mu.Unlock()
	r.publish()

	if r.ctx.Err() != nil {
		c := r.c
		c.mu.Lock()
		if c.cur == r && c.latest.Token == r.token {
			c.latest.Running = false
		}
		c.mu.Unlock()
		return
	}
	log.Debug("search_done", "token", r.token, "results", n, "skipped", skipped, "elapsed", time.Since(r.started))
	r.cancel()
}
