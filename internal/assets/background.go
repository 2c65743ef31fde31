package assets

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

// Job names one document for a background scan.
type Job struct {
	SessionID   string
	Path        string
	UserOffsets []int64
}

// JobFor builds a job from a catalog document, using the parsed session's
// user offsets when it is loaded.
func JobFor(d model.Document) Job {
	j := Job{SessionID: d.ID, Path: d.Path}
	if d.Session != nil {
		j.UserOffsets = UserOffsets(d.Session)
	}
	return j
}

// BackgroundScanner scans many documents at a bounded file rate so a bulk
// scan does not compete with interactive work.
type BackgroundScanner struct {
	limiter *rate.Limiter
	opts    Options
}

// NewBackgroundScanner returns a scanner that opens at most filesPerSecond
// files per second. A non-positive rate means unlimited.
func NewBackgroundScanner(filesPerSecond float64, opts Options) *BackgroundScanner {
	limit := rate.Inf
	if filesPerSecond > 0 {
		limit = rate.Limit(filesPerSecond)
	}
	return &BackgroundScanner{
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
	}
}

// Run scans jobs in order and hands each result to fn. Unreadable files
// are logged and skipped. Cancellation is checked before every file; on
// cancel Run returns ctx's error and fn is not called again.
func (b *BackgroundScanner) Run(ctx context.Context, jobs []Job, fn func(Job, Result)) error {
	for _, j := range jobs {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		opts := b.opts
		opts.UserOffsets = j.UserOffsets
		res, err := ScanFile(ctx, j.Path, j.SessionID, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Warn("asset_scan_failed", "path", j.Path, "err", err)
			continue
		}
		if len(res.Assets) > 0 || res.Truncated {
			log.Debug("assets_found", "path", j.Path, "count", len(res.Assets), "truncated", res.Truncated)
		}
		fn(j, res)
	}
	return nil
}
