package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/daemon"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
	"github.com/jazzyalex/agent-sessions/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search session text across every agent",
	Long: `Search session text across every agent.

Terms are ANDed and matched case-insensitively. Quote a phrase to match it
as one term. Field filters narrow the documents searched:

  repo:NAME   documents whose repo is NAME
  path:TEXT   documents whose log path contains TEXT

A query made only of field filters lists the matching sessions.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var (
	searchLimit int
	searchJSON  bool
	searchRoles []string
)

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 20, "Number of results to show")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print results as JSON")
	searchCmd.Flags().StringSliceVar(&searchRoles, "roles", nil, "Only sessions containing these roles (user, assistant, tool, output, error)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(_ *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	q, err := search.ParseQuery(query)
	if err != nil {
		return fmt.Errorf("query %q: %w", query, err)
	}
	kinds, err := parseRoles(searchRoles)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cat, err := loadData(ctx)
	if err != nil {
		return err
	}
	defer cat.Close()

	docs, since, until := applyFilters(cat.Documents)
	coord := search.NewCoordinator(cfg.SearchOptions(), pipeline.Sources(cat.Roots, cat.Cache)...)
	req := search.Request{
		Filters: model.Filters{
			Query: query,
			Since: since,
			Until: until,
			Kinds: kinds,
		},
		DeepScan:  flagDeep,
		Documents: docs,
	}

	start := time.Now()
	if _, err := coord.Start(ctx, req); err != nil {
		return err
	}
	snap, err := followSearch(ctx, coord)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if searchJSON {
		return printSearchJSON(snap)
	}
	printSearchResults(snap, q, elapsed, err != nil)
	return nil
}

// followSearch drains coordinator updates until the run ends, drawing a
// progress line on stderr. On interrupt the run is canceled and the last
// snapshot returned with ctx's error.
func followSearch(ctx context.Context, coord *search.Coordinator) (search.Snapshot, error) {
	progress := showProgress()
	done := make(chan search.Snapshot, 1)
	go func() { done <- coord.Wait() }()

	clear := func() {
		if progress {
			fmt.Fprintf(os.Stderr, "\r%s\r", strings.Repeat(" ", 72))
		}
	}

	for {
		select {
		case snap := <-coord.Updates():
			if progress && snap.Running {
				p := snap.Progress
				fmt.Fprintf(os.Stderr, "\r  %-18s %s  %d found ",
					p.Phase,
					cli.RenderProgressBar(p.ScannedSmall+p.ScannedLarge, p.TotalSmall+p.TotalLarge, 16),
					len(snap.Results),
				)
			}
		case snap := <-done:
			clear()
			return snap, nil
		case <-ctx.Done():
			coord.Cancel()
			<-done
			clear()
			return coord.Latest(), ctx.Err()
		}
	}
}

func printSearchResults(snap search.Snapshot, q search.Query, elapsed time.Duration, interrupted bool) {
	results := snap.Results
	fmt.Println()
	if len(results) == 0 {
		fmt.Println("  No matches.")
	} else {
		shown := results
		if searchLimit > 0 && len(shown) > searchLimit {
			shown = shown[:searchLimit]
		}
		for _, r := range shown {
			printHit(r, q)
		}
	}

	fmt.Println()
	summary := fmt.Sprintf("  %s results in %s", cli.FormatNumber(int64(len(results))), cli.FormatElapsed(elapsed))
	if len(results) > searchLimit && searchLimit > 0 {
		summary += fmt.Sprintf(" (showing %d)", searchLimit)
	}
	fmt.Println(cli.RenderMuted(summary))

	switch {
	case interrupted:
		fmt.Println(cli.RenderWarning("Interrupted; results are partial."))
	case snap.StoppedEarly:
		fmt.Println(cli.RenderWarning("Stopped early after the fast phases; use --deep to scan everything."))
	}
	if snap.Skipped > 0 {
		fmt.Println(cli.RenderWarning(fmt.Sprintf("%d sessions could not be read.", snap.Skipped)))
	}
}

func printHit(r search.Result, q search.Query) {
	repo := r.Repo
	if repo == "" {
		repo = "-"
	}
	header := fmt.Sprintf("  %s  %-7s %-20s %s",
		cli.ShortID(r.DocumentID),
		r.Source,
		cli.Truncate(repo, 20),
		cli.FormatAge(r.ModifiedAt),
	)
	meta := ""
	if r.MatchCount > 0 {
		meta = fmt.Sprintf("  %d matches", r.MatchCount)
	}
	if r.Phase.IsLarge() || r.Phase >= model.PhaseToolOutputsSmall {
		meta += fmt.Sprintf("  [%s]", r.Phase)
	}
	fmt.Println(header + cli.RenderMuted(meta))
	if r.Snippet != "" {
		fmt.Println("    " + cli.HighlightTerms(r.Snippet, q.Terms))
	}
}

func printSearchJSON(snap search.Snapshot) error {
	hits := make([]daemon.Hit, 0, len(snap.Results))
	for i, r := range snap.Results {
		if searchLimit > 0 && i >= searchLimit {
			break
		}
		hits = append(hits, daemon.Hit{
			ID:         r.DocumentID,
			Source:     r.Source,
			Path:       r.Path,
			Repo:       r.Repo,
			ModifiedAt: r.ModifiedAt,
			SizeBytes:  r.SizeBytes,
			Phase:      r.Phase.String(),
			Matches:    r.MatchCount,
			Snippet:    r.Snippet,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(daemon.SearchResponse{
		Query:        snap.Query,
		Phase:        snap.Phase().String(),
		StoppedEarly: snap.StoppedEarly,
		Skipped:      snap.Skipped,
		Total:        len(snap.Results),
		Results:      hits,
	})
}

// parseRoles maps role names from flags onto a set. No names means every
// role.
func parseRoles(names []string) (model.RoleSet, error) {
	if len(names) == 0 {
		return nil, nil
	}
	set := make(model.RoleSet, len(names))
	for _, n := range names {
		r, ok := model.ParseRole(strings.ToLower(strings.TrimSpace(n)))
		if !ok {
			return nil, fmt.Errorf("unknown role %q", n)
		}
		set[r] = true
	}
	return set, nil
}
