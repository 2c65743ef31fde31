package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Sessions per day",
	RunE:  runDaily,
}

func init() {
	rootCmd.AddCommand(dailyCmd)
}

func runDaily(cmd *cobra.Command, _ []string) error {
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
	days := pipeline.AggregateDays(filtered, since, until)
	if len(days) == 0 {
		fmt.Println("\n  No data for the selected period.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("DAILY ACTIVITY  " + windowLabel()))
	fmt.Println()

	rows := make([][]string, 0, len(days))
	trend := make([]float64, len(days))
	for i, d := range days {
		rows = append(rows, []string{
			d.Date.Format("2006-01-02"),
			d.Date.Format("Mon"),
			cli.FormatNumber(int64(d.Sessions)),
			cli.FormatNumber(int64(d.Prompts)),
			cli.FormatBytes(d.Bytes),
		})
		// days are newest first; the sparkline reads left to right
		trend[len(days)-1-i] = float64(d.Sessions)
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Date", "Day", "Sessions", "Prompts", "Size"},
		Rows:    rows,
	}))
	fmt.Println()
	fmt.Println("  " + cli.RenderSparkline(trend))
	return nil
}
