package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Catalog summary across every agent",
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, _ []string) error {
	cat, err := loadData(contextOf(cmd))
	if err != nil {
		return err
	}
	defer cat.Close()

	if len(cat.Documents) == 0 {
		fmt.Println("\n  No agent sessions found.")
		fmt.Println("  Searched: " + strings.Join(pipeline.RootDirs(cat.Roots), ", "))
		return nil
	}

	filtered, since, until := applyFilters(cat.Documents)
	stats := pipeline.Aggregate(filtered, since, until)
	if stats.TotalSessions == 0 {
		fmt.Println("\n  No sessions found in the selected time range.")
		return nil
	}

	indexed := 0
	perSource := make(map[string]int)
	for _, d := range pipeline.FilterByTime(filtered, since, until) {
		if d.Indexed {
			indexed++
		}
		perSource[d.Source]++
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("AGENT SESSIONS  " + windowLabel()))
	fmt.Println()

	rows := [][]string{
		{"Sessions", cli.FormatNumber(int64(stats.TotalSessions))},
		{"Indexed", fmt.Sprintf("%s (%s)",
			cli.FormatNumber(int64(indexed)),
			cli.FormatPercent(float64(indexed)/float64(stats.TotalSessions)))},
		{"Prompts", cli.FormatNumber(int64(stats.TotalPrompts))},
		{"Log size", cli.FormatBytes(stats.TotalBytes)},
		{"---"},
		{"Repos", cli.FormatNumber(int64(stats.Repos))},
		{"Active days", cli.FormatNumber(int64(stats.ActiveDays))},
		{"Sessions/day", fmt.Sprintf("%.1f", stats.SessionsPerDay)},
		{"Prompts/day", fmt.Sprintf("%.1f", stats.PromptsPerDay)},
		{"---"},
	}
	for _, r := range cat.Roots {
		if n, ok := perSource[r.Name]; ok {
			rows = append(rows, []string{r.Name, cli.FormatNumber(int64(n))})
			delete(perSource, r.Name)
		}
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Metric", "Value"},
		Rows:    rows,
	}))
	return nil
}
