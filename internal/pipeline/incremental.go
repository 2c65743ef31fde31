package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/store"
)

// CachedLoadResult extends LoadResult with cache metadata.
type CachedLoadResult struct {
	LoadResult
	CacheHits int
	Reparsed  int
	Deferred  int
	Pruned    int
}

// LoadWithCache discovers, diffs against cache, parses only changed files,
// and returns the combined catalog. Unchanged files come back from the
// cache without their session; their extracted text is expected to be
// cached too. Changed files over the eager limit are catalogued unindexed.
func LoadWithCache(ctx context.Context, roots []source.Root, opts LoadOptions, cache *store.Cache, progressFn ProgressFunc) (*CachedLoadResult, error) {
	files, err := discover(roots, opts)
	if err != nil {
		return nil, err
	}

	result := &CachedLoadResult{
		LoadResult: LoadResult{
			TotalFiles: len(files),
			RepoCount:  source.CountRepos(files),
		},
	}

	// Get tracked files from cache
	tracked, err := cache.GetTrackedFiles()
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	// Diff: partition into changed and unchanged
	var toReparse []source.DiscoveredFile
	unchanged := make(map[string]struct{})
	present := make(map[string]struct{}, len(files))

	for _, f := range files {
		present[f.Path] = struct{}{}
		cached, ok := tracked[f.Path]
		if ok && cached.MtimeNs == f.ModTime.UnixNano() && cached.SizeBytes == f.SizeBytes {
			unchanged[f.Path] = struct{}{}
		} else {
			toReparse = append(toReparse, f)
		}
	}

	// Forget files that disappeared since the last load.
	for path := range tracked {
		if _, ok := present[path]; ok {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := cache.DeletePath(path); err != nil {
				log.Warn("cache_prune_failed", "path", path, "err", err)
				continue
			}
			result.Pruned++
		}
	}

	// Load cached documents
	if len(unchanged) > 0 {
		cached, err := cache.LoadDocuments()
		if err != nil {
			return nil, fmt.Errorf("loading cached documents: %w", err)
		}
		for _, d := range cached {
			if _, ok := unchanged[d.Path]; ok {
				result.Documents = append(result.Documents, d)
				result.ParsedFiles++
			}
		}
	}
	result.CacheHits = len(unchanged)

	// Parse changed files
	eager, deferred := splitBySize(toReparse, opts.eagerLimit())
	result.Reparsed = len(eager)
	result.Deferred = len(deferred)

	parsed := parseAll(ctx, eager, func(n int) {
		if progressFn != nil {
			progressFn(n+result.CacheHits, result.TotalFiles)
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Collect and cache results
	for i, pr := range parsed {
		if pr.Err != nil {
			result.FileErrors++
			log.Debug("parse_failed", "path", eager[i].Path, "err", pr.Err)
			continue
		}
		result.ParsedFiles++
		result.ParseErrors += pr.ParseErrors

		d := documentFromSession(pr.Session)
		st := store.DocumentStats{UserEvents: d.Prompts, EventCount: len(pr.Session.Events)}
		if err := cache.SaveDocument(d, st); err != nil {
			log.Warn("cache_save_failed", "path", d.Path, "err", err)
		}
		result.Documents = append(result.Documents, d)
	}

	// Large changed files keep only what a directory entry and a head scan
	// tell us; stale cache rows for them must not serve old text.
	for _, f := range deferred {
		if _, ok := tracked[f.Path]; ok {
			if err := cache.InvalidatePath(f.Path); err != nil {
				log.Warn("cache_invalidate_failed", "path", f.Path, "err", err)
			}
		}
		result.Documents = append(result.Documents, documentFromFile(f))
	}

	if progressFn != nil {
		progressFn(result.TotalFiles, result.TotalFiles)
	}
	log.Info("catalog_loaded",
		"files", result.TotalFiles,
		"cache_hits", result.CacheHits,
		"reparsed", result.Reparsed,
		"deferred", result.Deferred,
		"pruned", result.Pruned,
	)
	return result, nil
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "agent-sessions")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "agent-sessions")
}

// CachePath returns the full path to the cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "sessions.db")
}
