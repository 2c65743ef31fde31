package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/jazzyalex/agent-sessions/internal/config"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
)

// SetupValues are the answers collected by the first-run form.
type SetupValues struct {
	Days      int
	Theme     string
	Subagents bool
	Deep      bool
	Watch     bool
}

// SetupDefaults seeds the form from an existing config.
func SetupDefaults(cfg config.Config) SetupValues {
	return SetupValues{
		Days:      cfg.General.DefaultDays,
		Theme:     cfg.Appearance.Theme,
		Subagents: cfg.General.IncludeSubagents,
		Deep:      cfg.Search.DeepByDefault,
		Watch:     cfg.General.Watch,
	}
}

// Apply copies the answers into cfg.
func (v SetupValues) Apply(cfg *config.Config) {
	if v.Days > 0 {
		cfg.General.DefaultDays = v.Days
	}
	if v.Theme != "" {
		cfg.Appearance.Theme = v.Theme
	}
	cfg.General.IncludeSubagents = v.Subagents
	cfg.Search.DeepByDefault = v.Deep
	cfg.General.Watch = v.Watch
}

// NewSetupForm builds the first-run form. count is the number of logs
// found under roots.
func NewSetupForm(count int, roots []source.Root, vals *SetupValues) *huh.Form {
	var found strings.Builder
	fmt.Fprintf(&found, "Found %d sessions.\n", count)
	for _, r := range roots {
		fmt.Fprintf(&found, "  %s: %s\n", r.Name, r.Dir)
	}

	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themeOpts = append(themeOpts, huh.NewOption(t.Name, t.Name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to agent-sessions").
				Description(found.String()),
			huh.NewSelect[int]().
				Title("Default time range").
				Options(
					huh.NewOption("7 days", 7),
					huh.NewOption("30 days", 30),
					huh.NewOption("90 days", 90),
					huh.NewOption("1 year", 365),
				).
				Value(&vals.Days),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&vals.Theme),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Include subagent logs?").
				Value(&vals.Subagents),
			huh.NewConfirm().
				Title("Deep search by default?").
				Description("Deep searches scan every file instead of stopping at the first batch of results.").
				Value(&vals.Deep),
			huh.NewConfirm().
				Title("Watch log folders for changes?").
				Value(&vals.Watch),
		),
	).WithTheme(huh.ThemeDracula()).WithShowHelp(true)
}

// applySetup saves the form answers and makes them live.
func (a *App) applySetup() {
	if a.setupVals == nil {
		return
	}
	a.setupVals.Apply(&a.cfg)
	theme.SetActive(a.cfg.Appearance.Theme)
	a.search.deep = a.cfg.Search.DeepByDefault
	a.opts.Days = 0
	if err := config.SaveTo(a.opts.ConfigPath, a.cfg); err != nil {
		log.Warn("setup_save_failed", "err", err)
		a.settings.saveErr = err
	}
}
