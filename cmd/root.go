// Package cmd implements the agent-sessions CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/config"
	"github.com/jazzyalex/agent-sessions/internal/logging"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/store"
)

var (
	flagDays      int
	flagRepo      string
	flagModel     string
	flagSource    string
	flagNoCache   bool
	flagQuiet     bool
	flagDeep      bool
	flagSubagents bool
	flagDebug     bool
	flagConfig    string
)

// cfg is loaded once per invocation before any command runs.
var cfg = config.DefaultConfig()

var rootCmd = &cobra.Command{
	Use:   "agent-sessions",
	Short: "Search and browse coding-agent session logs",
	Long: "Search, read and navigate the JSONL session logs written by Claude Code,\n" +
		"Codex and other coding agents.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { logging.Shutdown() },
	RunE:              runDefault,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.IntVarP(&flagDays, "days", "n", 0, "Time window in days (0 uses the configured default, -1 for all)")
	pf.StringVarP(&flagRepo, "repo", "r", "", "Filter to repo (substring match)")
	pf.StringVarP(&flagModel, "model", "m", "", "Filter to model (substring match)")
	pf.StringVarP(&flagSource, "source", "s", "", "Filter to one source (claude, codex, ...)")
	pf.BoolVar(&flagNoCache, "no-cache", false, "Skip the SQLite cache, reparse everything")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	pf.BoolVar(&flagDeep, "deep", false, "Scan every phase instead of stopping early")
	pf.BoolVar(&flagSubagents, "subagents", false, "Include subagent sessions")
	pf.BoolVar(&flagDebug, "debug", false, "Write debug logs")
	pf.StringVar(&flagConfig, "config", "", "Config file (default "+config.ConfigPath()+")")
}

// setup loads the config file and configures logging.
func setup(cmd *cobra.Command, _ []string) error {
	path := flagConfig
	if path == "" {
		path = config.ConfigPath()
	}
	loaded, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	cfg = loaded

	if flagDays == 0 {
		flagDays = cfg.General.DefaultDays
	}
	if cmd.Flags().Changed("subagents") {
		cfg.General.IncludeSubagents = flagSubagents
	}
	if cfg.Search.DeepByDefault {
		flagDeep = true
	}

	lc := cfg.LogConfig()
	if flagDebug {
		lc.Debug = true
		lc.Level = "debug"
	}
	logging.Init(lc)
	return nil
}

// runDefault opens the TUI on a terminal and lists sessions otherwise.
func runDefault(cmd *cobra.Command, args []string) error {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return runTUI(cmd, args)
	}
	return runSessions(cmd, args)
}

// showProgress reports whether progress lines belong on stderr.
func showProgress() bool {
	return !flagQuiet && isatty.IsTerminal(os.Stderr.Fd())
}

// catalog is a loaded set of documents plus the cache that backs their
// extracted text. Cache is nil when caching is off or unavailable.
type catalog struct {
	Roots     []source.Root
	Documents []model.Document
	Cache     *store.Cache
}

// Close releases the cache.
func (c *catalog) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}

// loadData is the shared data loading path used by all commands.
// Uses SQLite cache when available for fast subsequent runs.
func loadData(ctx context.Context) (*catalog, error) {
	roots := cfg.Roots()
	opts := cfg.LoadOptions()
	progress := showProgress()

	if progress {
		fmt.Fprintf(os.Stderr, "  Scanning sessions...\n")
	}

	progressFn := func(current, total int) {
		if !progress {
			return
		}
		if current%100 == 0 || current == total {
			fmt.Fprintf(os.Stderr, "\r  Parsing %s", cli.RenderProgressBar(current, total, 20))
		}
	}

	// Try cached load unless --no-cache
	if !flagNoCache {
		cache, err := store.Open(pipeline.CachePath())
		if err != nil {
			// Cache open failed, fall back to uncached
			if progress {
				fmt.Fprintf(os.Stderr, "  Cache unavailable, doing full parse\n")
			}
		} else {
			cr, err := pipeline.LoadWithCache(ctx, roots, opts, cache, progressFn)
			if err == nil {
				if progress && cr.TotalFiles > 0 {
					fmt.Fprintf(os.Stderr, "\r  %s cached + %d parsed + %d deferred (%d repos)    \n",
						cli.FormatNumber(int64(cr.CacheHits)),
						cr.Reparsed,
						cr.Deferred,
						cr.RepoCount,
					)
				}
				return &catalog{Roots: roots, Documents: cr.Documents, Cache: cache}, nil
			}
			_ = cache.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if progress {
				fmt.Fprintf(os.Stderr, "\n  Cache error, falling back to full parse\n")
			}
		}
	}

	// Uncached path
	result, err := pipeline.Load(ctx, roots, opts, progressFn)
	if err != nil {
		return nil, err
	}

	if progress && result.TotalFiles > 0 {
		fmt.Fprintf(os.Stderr, "\r  Parsed %s sessions across %d repos    \n",
			cli.FormatNumber(int64(result.ParsedFiles)),
			result.RepoCount,
		)
	}
	return &catalog{Roots: roots, Documents: result.Documents}, nil
}

// timeRange returns the [since, until) window selected by --days. Both are
// zero when the window is unbounded.
func timeRange() (time.Time, time.Time) {
	if flagDays < 0 {
		return time.Time{}, time.Time{}
	}
	now := time.Now()
	return now.AddDate(0, 0, -flagDays), now.Add(time.Minute)
}

// applyFilters returns the documents selected by the persistent flags and
// the computed time range.
func applyFilters(docs []model.Document) ([]model.Document, time.Time, time.Time) {
	since, until := timeRange()

	filtered := pipeline.FilterBySource(docs, flagSource)
	filtered = pipeline.FilterByRepo(filtered, flagRepo)
	filtered = pipeline.FilterByModel(filtered, flagModel)
	return filtered, since, until
}

// windowLabel describes the --days window for titles.
func windowLabel() string {
	if flagDays < 0 {
		return "All time"
	}
	return fmt.Sprintf("Last %dd", flagDays)
}
