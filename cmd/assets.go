package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/assets"
	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Find inline images embedded in session logs",
	Long: `Scan the selected sessions' raw logs for inline base64 images without
parsing them. Files are opened at a bounded rate so a long scan stays in
the background.`,
	RunE: runAssets,
}

var assetsAll bool

func init() {
	assetsCmd.Flags().BoolVarP(&assetsAll, "all", "a", false, "List sessions without images too")
	rootCmd.AddCommand(assetsCmd)
}

func runAssets(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt)
	defer stop()

	cat, err := loadData(ctx)
	if err != nil {
		return err
	}
	defer cat.Close()

	docs, since, until := applyFilters(cat.Documents)
	docs = pipeline.FilterByTime(docs, since, until)
	pipeline.SortByRecent(docs)
	if len(docs) == 0 {
		fmt.Println("\n  No sessions found.")
		return nil
	}

	jobs := make([]assets.Job, len(docs))
	byID := make(map[string]int, len(docs))
	for i, d := range docs {
		jobs[i] = assets.JobFor(d)
		byID[d.ID] = i
	}

	var (
		rows     [][]string
		scanned  int
		images   int
		withImgs int
		bytes    int64
	)
	progress := showProgress()
	scanner := assets.NewBackgroundScanner(cfg.Assets.FilesPerSecond, cfg.AssetOptions())
	runErr := scanner.Run(ctx, jobs, func(j assets.Job, res assets.Result) {
		scanned++
		if progress {
			fmt.Fprintf(os.Stderr, "\r  Scanning %s", cli.RenderProgressBar(scanned, len(jobs), 20))
		}
		if len(res.Assets) > 0 {
			withImgs++
		}
		images += len(res.Assets)
		var approx int64
		for _, a := range res.Assets {
			approx += int64(a.ApproxBytes)
		}
		bytes += approx
		if len(res.Assets) == 0 && !assetsAll {
			return
		}

		d := docs[byID[j.SessionID]]
		count := cli.FormatNumber(int64(len(res.Assets)))
		if res.Truncated {
			count += "+"
		}
		rows = append(rows, []string{
			cli.ShortID(d.ID),
			d.Time().Local().Format("Jan 02 15:04"),
			d.Source,
			cli.Truncate(d.Repo, 24),
			count,
			cli.FormatBytes(approx),
		})
	})
	if progress {
		fmt.Fprintln(os.Stderr)
	}
	interrupted := errors.Is(runErr, context.Canceled)
	if runErr != nil && !interrupted {
		return runErr
	}

	if len(rows) > 0 {
		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   fmt.Sprintf("Inline Images  %s", windowLabel()),
			Headers: []string{"ID", "Start", "Source", "Repo", "Images", "Approx"},
			Rows:    rows,
		}))
	}
	fmt.Printf("\n  %s images in %d of %d sessions (~%s)\n",
		cli.FormatNumber(int64(images)), withImgs, scanned, cli.FormatBytes(bytes))
	if interrupted {
		fmt.Println(cli.RenderWarning(fmt.Sprintf("  Interrupted after %d of %d sessions", scanned, len(jobs))))
	}
	fmt.Println()
	return nil
}
