package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
)

var reposCmd = &cobra.Command{
	Use:   "repos [PATTERN]",
	Short: "Repositories ranked by recent activity",
	Long: `Repositories ranked by recent activity.

With a PATTERN, only repos whose names fuzzy-match it are listed, best
match first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepos,
}

func init() {
	rootCmd.AddCommand(reposCmd)
}

func runRepos(cmd *cobra.Command, args []string) error {
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
	repos := pipeline.AggregateRepos(filtered, since, until)
	if len(args) == 1 {
		repos = rankRepos(repos, pipeline.SuggestRepos(pipeline.FilterByTime(filtered, since, until), args[0], 0))
	}
	if len(repos) == 0 {
		fmt.Println("\n  No repo data in the selected time range.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("REPOS  " + windowLabel()))
	fmt.Println()

	rows := make([][]string, 0, len(repos))
	for _, rs := range repos {
		name := rs.Repo
		if name == "" {
			name = "(none)"
		}
		rows = append(rows, []string{
			cli.Truncate(name, 24),
			cli.FormatNumber(int64(rs.Sessions)),
			cli.FormatNumber(int64(rs.Prompts)),
			cli.FormatBytes(rs.Bytes),
			cli.FormatAge(rs.LastActive),
			strings.Join(rs.Sources, ","),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Repo", "Sessions", "Prompts", "Size", "Last active", "Agents"},
		Rows:    rows,
	}))
	return nil
}

// rankRepos keeps the stats named in order, in that order.
func rankRepos(repos []model.RepoStats, order []string) []model.RepoStats {
	byName := make(map[string]model.RepoStats, len(repos))
	for _, rs := range repos {
		byName[rs.Repo] = rs
	}
	out := make([]model.RepoStats, 0, len(order))
	for _, name := range order {
		if rs, ok := byName[name]; ok {
			out = append(out, rs)
		}
	}
	return out
}
