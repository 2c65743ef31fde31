package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/jazzyalex/agent-sessions/internal/logging"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/source"
)

var log = logging.ForComponent(logging.CompLoad)

// DefaultEagerParseBytes is the largest file parsed while loading. Bigger
// files are catalogued from their directory entry and left to the search
// coordinator's unindexed phases.
const DefaultEagerParseBytes = 8 << 20

// LoadOptions controls catalog loading.
type LoadOptions struct {
	IncludeSubagents bool
	// EagerParseBytes caps the size of files parsed during load. Zero uses
	// DefaultEagerParseBytes; a negative value parses nothing.
	EagerParseBytes int64
}

func (o LoadOptions) eagerLimit() int64 {
	if o.EagerParseBytes == 0 {
		return DefaultEagerParseBytes
	}
	return o.EagerParseBytes
}

// LoadResult holds the output of the catalog loading pipeline.
type LoadResult struct {
	Documents   []model.Document
	TotalFiles  int
	ParsedFiles int
	ParseErrors int
	FileErrors  int
	RepoCount   int
}

// ProgressFunc is called during loading to report progress.
// current is the number of files processed so far, total is the total count.
type ProgressFunc func(current, total int)

// Load discovers every log under roots and builds the catalog without a
// cache. Files up to the eager limit are parsed with a bounded worker pool
// and keep their session in memory.
func Load(ctx context.Context, roots []source.Root, opts LoadOptions, progressFn ProgressFunc) (*LoadResult, error) {
	files, err := discover(roots, opts)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{
		TotalFiles: len(files),
		RepoCount:  source.CountRepos(files),
	}
	if len(files) == 0 {
		return result, nil
	}

	eager, deferred := splitBySize(files, opts.eagerLimit())
	parsed := parseAll(ctx, eager, func(n int) {
		if progressFn != nil {
			progressFn(n, len(files))
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, pr := range parsed {
		if pr.Err != nil {
			result.FileErrors++
			log.Debug("parse_failed", "path", eager[i].Path, "err", pr.Err)
			continue
		}
		result.ParsedFiles++
		result.ParseErrors += pr.ParseErrors
		result.Documents = append(result.Documents, documentFromSession(pr.Session))
	}
	for _, f := range deferred {
		result.Documents = append(result.Documents, documentFromFile(f))
	}
	if progressFn != nil {
		progressFn(len(files), len(files))
	}
	return result, nil
}

// discover scans roots, dropping subagent logs unless requested.
func discover(roots []source.Root, opts LoadOptions) ([]source.DiscoveredFile, error) {
	files, err := source.ScanRoots(roots)
	if err != nil && len(files) == 0 {
		return nil, fmt.Errorf("discovering sessions: %w", err)
	}
	if err != nil {
		log.Warn("scan_partial", "err", err)
	}
	if opts.IncludeSubagents {
		return files, nil
	}
	kept := files[:0]
	for _, f := range files {
		if !f.IsSubagent {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

func splitBySize(files []source.DiscoveredFile, limit int64) (eager, deferred []source.DiscoveredFile) {
	for _, f := range files {
		if limit >= 0 && f.SizeBytes <= limit {
			eager = append(eager, f)
		} else {
			deferred = append(deferred, f)
		}
	}
	return eager, deferred
}

// parseAll parses files with a bounded worker pool. Results are indexed
// like files. Workers stop picking up files once ctx is done.
func parseAll(ctx context.Context, files []source.DiscoveredFile, progress func(int)) []source.ParseResult {
	results := make([]source.ParseResult, len(files))
	if len(files) == 0 {
		return results
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	for i := range files {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	var processed atomic.Int64
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				if err := ctx.Err(); err != nil {
					results[idx] = source.ParseResult{Err: err}
					continue
				}
				results[idx] = source.ParseFile(files[idx])
				progress(int(processed.Add(1)))
			}
		}()
	}
	wg.Wait()
	return results
}

// documentFromSession builds a catalog entry that carries its parsed
// session, so the coordinator never rereads the file.
func documentFromSession(s *model.Session) model.Document {
	return model.Document{
		ID:         s.ID,
		Source:     s.Source,
		Path:       s.Path,
		Repo:       s.Repo,
		Model:      s.Model,
		StartTime:  s.StartTime,
		ModifiedAt: s.ModifiedAt,
		SizeBytes:  s.SizeBytes,
		Prompts:    s.UserEventCount(),
		Indexed:    true,
		Session:    s,
	}
}

// documentFromFile builds a lightweight entry from discovery metadata and
// a byte scan of the file's first lines.
func documentFromFile(f source.DiscoveredFile) model.Document {
	id := f.SessionID
	if id == "" {
		id = source.ForcedID(f.Path)
	}
	d := model.Document{
		ID:         id,
		Source:     f.Source,
		Path:       f.Path,
		Repo:       f.Repo,
		StartTime:  f.ModTime,
		ModifiedAt: f.ModTime,
		SizeBytes:  f.SizeBytes,
	}
	if h, err := source.PeekHead(f.Path); err == nil {
		if !h.StartTime.IsZero() {
			d.StartTime = h.StartTime
		}
		if d.Repo == "" {
			d.Repo = h.Repo
		}
	}
	return d
}
