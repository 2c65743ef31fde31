package pipeline

import (
	"github.com/jazzyalex/agent-sessions/internal/search"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/store"
)

// Sources returns one search source per distinct root name, reading and
// writing extracted text through cache. A nil cache disables text caching.
func Sources(roots []source.Root, cache *store.Cache) []search.Source {
	var tc source.TextCache
	if cache != nil {
		tc = cache
	}
	seen := make(map[string]struct{}, len(roots))
	out := make([]search.Source, 0, len(roots))
	for _, r := range roots {
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		out = append(out, source.NewAdapter(r.Name, tc))
	}
	return out
}

// RootDirs returns the directories of roots, in order.
func RootDirs(roots []source.Root) []string {
	dirs := make([]string, len(roots))
	for i, r := range roots {
		dirs[i] = r.Dir
	}
	return dirs
}
