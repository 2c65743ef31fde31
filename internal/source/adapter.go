package source

import (
	"context"

	"github.com/jazzyalex/agent-sessions/internal/logging"
	"github.com/jazzyalex/agent-sessions/internal/model"
)

var log = logging.ForComponent(logging.CompSource)

// TextCache is the per-source extracted-text store an Adapter reads and
// writes. *store.Cache satisfies it.
type TextCache interface {
	GetText(source, docID string) (string, bool, error)
	PutText(source, docID, text string) error
}

// Adapter exposes one configured source to the search coordinator: cached
// text lookups that never touch the log file, and full reparses that do.
type Adapter struct {
	name  string
	cache TextCache
}

// NewAdapter returns an adapter for the named source. A nil cache makes
// every lookup a miss and every store a no-op.
func NewAdapter(name string, cache TextCache) *Adapter {
	return &Adapter{name: name, cache: cache}
}

// Name returns the source name.
func (a *Adapter) Name() string { return a.name }

// CachedText returns previously extracted text for docID. Cache errors are
// logged and reported as a miss.
func (a *Adapter) CachedText(docID string) (string, bool) {
	if a.cache == nil {
		return "", false
	}
	text, ok, err := a.cache.GetText(a.name, docID)
	if err != nil {
		log.Warn("cache_read_failed", "source", a.name, "doc", docID, "err", err)
		return "", false
	}
	return text, ok
}

// ReparseFull parses the log at path from scratch.
func (a *Adapter) ReparseFull(ctx context.Context, path, forcedID string) (*model.Session, error) {
	s, err := ParsePath(ctx, path, forcedID)
	if err != nil {
		return nil, err
	}
	s.Source = a.name
	return s, nil
}

// StoreText records extracted text for docID. Writes are last-writer-wins.
func (a *Adapter) StoreText(docID, text string) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.PutText(a.name, docID, text)
}
