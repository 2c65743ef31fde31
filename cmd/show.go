package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/assets"
	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/navigate"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/transcript"
)

var showCmd = &cobra.Command{
	Use:   "show ID|PATH",
	Short: "Print one session's transcript",
	Long: `Print one session's transcript.

The session is named by an id prefix from the catalog or by the path of a
log file. With --find only the lines that match are printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var (
	showRoles  []string
	showFind   string
	showAssets bool
	showWidth  int
)

func init() {
	showCmd.Flags().StringSliceVar(&showRoles, "roles", nil, "Roles to show (user, assistant, tool, output, error, meta)")
	showCmd.Flags().StringVarP(&showFind, "find", "f", "", "Only print lines matching this text")
	showCmd.Flags().BoolVar(&showAssets, "assets", false, "Scan the raw log for inline images")
	showCmd.Flags().IntVarP(&showWidth, "width", "w", 100, "Wrap width")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := contextOf(cmd)
	roles, err := parseRoles(showRoles)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}

	opts := cfg.Options()
	doc := transcript.BuildLines(s, roles, opts)
	if showAssets {
		ao := cfg.AssetOptions()
		ao.UserOffsets = assets.UserOffsets(s)
		res, err := assets.ScanFile(ctx, s.Path, s.ID, ao)
		if err != nil {
			return fmt.Errorf("scanning assets: %w", err)
		}
		doc.AttachAssets(res.Assets)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("%s  %s  %s", cli.ShortID(s.ID), s.Source, s.Repo)))
	fmt.Println(cli.RenderMuted("  " + s.Path))
	fmt.Println()

	if showFind == "" {
		for _, ln := range doc.Lines {
			printLine(doc, ln, nil)
		}
		printAssetFooter(doc)
		return nil
	}

	nav := navigate.New(doc)
	matches := nav.Find(navigate.ContextLocal, showFind)
	if len(matches) == 0 {
		fmt.Printf("  No lines match %q.\n", showFind)
		return nil
	}
	byLine := make(map[int][]model.Span)
	var order []int
	for _, m := range matches {
		if _, ok := byLine[m.LineID]; !ok {
			order = append(order, m.LineID)
		}
		byLine[m.LineID] = append(byLine[m.LineID], m.Span)
	}
	for _, id := range order {
		ln, ok := doc.Line(id)
		if !ok {
			continue
		}
		printLine(doc, ln, byLine[id])
	}
	fmt.Println(cli.RenderMuted(fmt.Sprintf("  %d matches on %d lines", len(matches), len(order))))
	printAssetFooter(doc)
	return nil
}

// openSession resolves ref as a log path or a catalog id prefix and
// returns the fully parsed session.
func openSession(ctx context.Context, ref string) (*model.Session, error) {
	if fi, err := os.Stat(ref); err == nil && !fi.IsDir() {
		return source.ParsePath(ctx, ref, "")
	}

	cat, err := loadData(ctx)
	if err != nil {
		return nil, err
	}
	defer cat.Close()

	d, ok := pipeline.FindDocument(cat.Documents, ref)
	if !ok {
		return nil, fmt.Errorf("no single session matches %q", ref)
	}
	if d.Session != nil {
		return d.Session, nil
	}
	return source.ParsePath(ctx, d.Path, d.ID)
}

// printLine prints one transcript line with its role gutter. spans are
// offsets into the document text.
func printLine(doc *transcript.Document, ln model.Line, spans []model.Span) {
	text := ln.Text
	if len(spans) > 0 {
		if at, ok := doc.Index.Span(ln.ID); ok {
			local := make([]model.Span, 0, len(spans))
			for _, sp := range spans {
				local = append(local, model.Span{Start: sp.Start - at.Start, End: sp.End - at.Start})
			}
			text = cli.Highlight(text, local)
		}
	}

	width := showWidth - 12
	if width < 20 {
		width = 20
	}
	body := indent.String(wordwrap.String(text, width), 12)
	gutter := fmt.Sprintf("  %4d %s ", ln.ID, cli.RenderRole(ln.Role))
	if len(body) >= 12 {
		fmt.Println(gutter + body[12:])
	} else {
		fmt.Println(gutter)
	}

	for _, a := range doc.AssetsForLine(ln.ID) {
		fmt.Println(cli.RenderMuted(fmt.Sprintf("            [image #%d %s ~%s]",
			a.Sequence+1, a.MediaType, cli.FormatBytes(int64(a.ApproxBytes)))))
	}
}

func printAssetFooter(doc *transcript.Document) {
	if !showAssets {
		return
	}
	n := doc.AssetCount()
	label := "images"
	if n == 1 {
		label = "image"
	}
	fmt.Println(cli.RenderMuted(strings.TrimSpace(fmt.Sprintf("  %d inline %s", n, label))))
}
