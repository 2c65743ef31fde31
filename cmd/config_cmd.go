package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	path := flagConfig
	if path == "" {
		path = config.ConfigPath()
	}
	fmt.Printf("  Config file: %s\n", path)
	if config.Exists() || flagConfig != "" {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Default days:      %d\n", cfg.General.DefaultDays)
	fmt.Printf("    Include subagents: %v\n", cfg.General.IncludeSubagents)
	fmt.Printf("    Eager parse limit: %d MB\n", cfg.General.EagerParseMB)
	fmt.Printf("    Watch logs:        %v\n", cfg.General.Watch)
	fmt.Println()

	fmt.Println("  [Sources]")
	for _, r := range cfg.Roots() {
		format := string(r.Format)
		if format == "" {
			format = "auto"
		}
		fmt.Printf("    %-8s %-6s %s\n", r.Name, format, r.Dir)
	}
	fmt.Println()

	fmt.Println("  [Search]")
	fmt.Printf("    Large file:      %d MB\n", cfg.Search.LargeFileMB)
	fmt.Printf("    Workers:         %d\n", cfg.Search.Workers)
	fmt.Printf("    Max results:     %d\n", cfg.Search.MaxResults)
	fmt.Printf("    Time budget:     %d ms\n", cfg.Search.TimeBudgetMS)
	fmt.Printf("    Max occurrences: %d\n", cfg.Search.MaxOccurrences)
	fmt.Printf("    Deep by default: %v\n", cfg.Search.DeepByDefault)
	fmt.Println()

	fmt.Println("  [Transcript]")
	fmt.Printf("    Skip preamble:      %v\n", cfg.Transcript.SkipPreamble)
	fmt.Printf("    Dedupe tool groups: %v\n", cfg.Transcript.DedupeToolGroups)
	fmt.Println()

	fmt.Println("  [Assets]")
	fmt.Printf("    Byte budget:       %d\n", cfg.Assets.ByteBudget)
	fmt.Printf("    Match budget:      %d\n", cfg.Assets.MatchBudget)
	fmt.Printf("    Min payload chars: %d\n", cfg.Assets.MinPayloadChars)
	fmt.Printf("    Files per second:  %.0f\n", cfg.Assets.FilesPerSecond)
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  Run `agent-sessions setup` to reconfigure.")
	return nil
}
