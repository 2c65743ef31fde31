// Package watch keeps the text cache honest while agents append to their
// logs: changed files have their cached text dropped, removed files are
// forgotten.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jazzyalex/agent-sessions/internal/logging"
)

var log = logging.ForComponent(logging.CompWatch)

// DefaultDebounce is how long a file must be quiet before it is handled.
const DefaultDebounce = 300 * time.Millisecond

// Invalidator drops cached state for a path. *store.Cache satisfies it.
type Invalidator interface {
	InvalidatePath(path string) error
	DeletePath(path string) error
}

// Watcher monitors log directories recursively.
type Watcher struct {
	fs       *fsnotify.Watcher
	inv      Invalidator
	debounce time.Duration
	changes  chan string

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New watches every directory under roots. Missing roots are skipped. inv
// may be nil when only change notifications are wanted.
func New(roots []string, inv Invalidator, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		fs:       fw,
		inv:      inv,
		debounce: debounce,
		changes:  make(chan string, 64),
		pending:  make(map[string]*time.Timer),
	}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addTree adds root and every directory below it; fsnotify is not
// recursive.
func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return nil //nolint:nilerr // unreadable subtrees are skipped
		}
		if d.IsDir() {
			if err := w.fs.Add(path); err != nil {
				log.Debug("watch_add_failed", "path", path, "err", err)
			}
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Changes delivers paths after their cache rows were updated. Deliveries
// are dropped when nobody keeps up.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Run handles file system events until ctx is done or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher_error", "err", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addTree(ev.Name)
			return
		}
	}
	if !strings.HasSuffix(ev.Name, ".jsonl") {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	path := ev.Name
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.apply(path)
	})
}

func (w *Watcher) apply(path string) {
	_, statErr := os.Stat(path)
	gone := errors.Is(statErr, fs.ErrNotExist)
	if w.inv != nil {
		var err error
		if gone {
			err = w.inv.DeletePath(path)
		} else {
			err = w.inv.InvalidatePath(path)
		}
		if err != nil {
			log.Warn("invalidate_failed", "path", path, "err", err)
		}
	}
	log.Debug("file_changed", "path", path, "removed", gone)

	select {
	case w.changes <- path:
	default:
		log.Debug("watch_changes_full", "path", path)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
