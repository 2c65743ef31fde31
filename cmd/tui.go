package cmd

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive session browser",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	// Force TrueColor so background styling produces ANSI codes; lipgloss
	// may otherwise pick the Ascii profile under some terminals.
	if isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("NO_COLOR") == "" {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}

	days := flagDays
	if days == cfg.General.DefaultDays {
		days = 0
	}
	app := tui.NewApp(cfg, tui.Options{
		ConfigPath: flagConfig,
		Days:       days,
		Repo:       flagRepo,
		Model:      flagModel,
		Source:     flagSource,
		Deep:       flagDeep,
		NoCache:    flagNoCache,
	})
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
