package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session list with details",
	RunE:  runSessions,
}

var sessionsLimit int

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "l", 20, "Number of sessions to show")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	cat, err := loadData(contextOf(cmd))
	if err != nil {
		return err
	}
	defer cat.Close()
	if len(cat.Documents) == 0 {
		fmt.Println("\n  No sessions found.")
		return nil
	}

	filtered, since, until := applyFilters(cat.Documents)
	docs := pipeline.FilterByTime(filtered, since, until)
	if len(docs) == 0 {
		fmt.Println("\n  No sessions in the selected time range.")
		return nil
	}

	pipeline.SortByRecent(docs)
	total := len(docs)
	if sessionsLimit > 0 && len(docs) > sessionsLimit {
		docs = docs[:sessionsLimit]
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("SESSIONS  %s (showing %d of %d)", windowLabel(), len(docs), total)))
	fmt.Println()

	rows := make([][]string, 0, len(docs))
	for _, d := range docs {
		start := ""
		if t := d.Time(); !t.IsZero() {
			start = t.Local().Format("Jan 02 15:04")
		}
		prompts := "-"
		if d.Indexed {
			prompts = cli.FormatNumber(int64(d.Prompts))
		}
		rows = append(rows, []string{
			cli.ShortID(d.ID),
			start,
			d.Source,
			cli.Truncate(d.Repo, 18),
			prompts,
			cli.FormatBytes(d.SizeBytes),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"ID", "Start", "Source", "Repo", "Prompts", "Size"},
		Rows:    rows,
	}))
	return nil
}

// contextOf returns the command's context, or Background for commands
// invoked without one.
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
