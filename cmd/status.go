package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/logging"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show log roots and cache state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	fmt.Println()
	fmt.Println(cli.RenderTitle("STATUS"))
	fmt.Println()

	roots := cfg.Roots()
	rows := make([][]string, 0, len(roots))
	for _, r := range roots {
		state := "missing"
		files := "-"
		if fi, err := os.Stat(r.Dir); err == nil && fi.IsDir() {
			state = "ok"
			if found, err := source.ScanRoot(r); err == nil {
				files = cli.FormatNumber(int64(len(found)))
			} else {
				state = "unreadable"
			}
		}
		rows = append(rows, []string{r.Name, cli.Truncate(r.Dir, 48), state, files})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Log roots",
		Headers: []string{"Source", "Directory", "State", "Logs"},
		Rows:    rows,
	}))

	cachePath := pipeline.CachePath()
	cacheRows := [][]string{{"Path", cachePath}}
	if fi, err := os.Stat(cachePath); err != nil {
		cacheRows = append(cacheRows, []string{"State", "not created"})
	} else {
		cacheRows = append(cacheRows, []string{"Size", cli.FormatBytes(fi.Size())})
		cacheRows = append(cacheRows, []string{"Updated", cli.FormatAge(fi.ModTime())})
		cache, err := store.Open(cachePath)
		if err != nil {
			cacheRows = append(cacheRows, []string{"State", "unreadable: " + err.Error()})
		} else {
			docs, derr := cache.DocumentCount()
			texts, terr := cache.TextCount()
			_ = cache.Close()
			if derr == nil && terr == nil {
				cacheRows = append(cacheRows,
					[]string{"Documents", cli.FormatNumber(int64(docs))},
					[]string{"Extracted texts", cli.FormatNumber(int64(texts))},
				)
			}
		}
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Cache",
		Headers: []string{"Field", "Value"},
		Rows:    cacheRows,
	}))

	logDir := cfg.Logging.Dir
	if logDir == "" {
		logDir = logging.DefaultDir()
	}
	fmt.Println(cli.RenderMuted("  Logs: " + logDir))
	return nil
}
