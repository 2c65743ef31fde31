package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/config"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	roots := cfg.Roots()
	files, _ := source.ScanRoots(roots)

	vals := tui.SetupDefaults(cfg)
	form := tui.NewSetupForm(len(files), roots, &vals)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup cancelled, nothing saved.")
			return nil
		}
		return fmt.Errorf("setup form: %w", err)
	}
	vals.Apply(&cfg)

	path := flagConfig
	if path == "" {
		path = config.ConfigPath()
	}
	if err := config.SaveTo(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", path)
	fmt.Println("  Run `agent-sessions setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}
