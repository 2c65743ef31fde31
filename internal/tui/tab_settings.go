package tui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/config"
	"github.com/jazzyalex/agent-sessions/internal/tui/components"
	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
)

const (
	settingsFieldTheme = iota
	settingsFieldDays
	settingsFieldLargeFile
	settingsFieldDeep
	settingsFieldSubagents
	settingsFieldPreamble
	settingsFieldDedupe
	settingsFieldWatch
	settingsFieldCount // sentinel
)

// settingsState tracks the settings tab state.
type settingsState struct {
	cursor  int
	editing bool
	input   textinput.Model
	saved   bool  // flash "saved" message briefly
	saveErr error // non-nil if last save failed
}

func (s *settingsState) move(dir int) {
	s.cursor += dir
	if s.cursor < 0 {
		s.cursor = 0
	}
	if s.cursor >= settingsFieldCount {
		s.cursor = settingsFieldCount - 1
	}
}

func isToggleField(f int) bool {
	switch f {
	case settingsFieldDeep, settingsFieldSubagents, settingsFieldPreamble, settingsFieldDedupe, settingsFieldWatch:
		return true
	}
	return false
}

func (a App) settingsKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case "j", "down":
		a.settings.move(1)
	case "k", "up":
		a.settings.move(-1)
	case "enter", " ":
		if isToggleField(a.settings.cursor) {
			a.settingsToggle()
			return a, nil, true
		}
		m, cmd := a.settingsStartEdit()
		return m, cmd, true
	default:
		return a, nil, false
	}
	return a, nil, true
}

func (a App) settingsStartEdit() (tea.Model, tea.Cmd) {
	a.settings.editing = true
	a.settings.saved = false

	ti := textinput.New()
	ti.CharLimit = 64
	ti.Width = 40

	switch a.settings.cursor {
	case settingsFieldTheme:
		ti.Placeholder = strings.Join(theme.Names(), ", ")
		ti.SetValue(a.cfg.Appearance.Theme)
	case settingsFieldDays:
		ti.Placeholder = "30"
		ti.SetValue(strconv.Itoa(a.cfg.General.DefaultDays))
	case settingsFieldLargeFile:
		ti.Placeholder = "10 (MB)"
		ti.SetValue(strconv.Itoa(a.cfg.Search.LargeFileMB))
	}

	ti.Focus()
	a.settings.input = ti
	return a, ti.Cursor.BlinkCmd()
}

func (a App) updateSettingsInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		a.settingsSave()
		a.settings.editing = false
		a.settings.saved = a.settings.saveErr == nil
		return a, nil
	case "esc":
		a.settings.editing = false
		return a, nil
	}

	var cmd tea.Cmd
	a.settings.input, cmd = a.settings.input.Update(msg)
	return a, cmd
}

// settingsSave applies the edited text field to the live config and
// writes it out. Invalid values are ignored.
func (a *App) settingsSave() {
	val := strings.TrimSpace(a.settings.input.Value())

	switch a.settings.cursor {
	case settingsFieldTheme:
		if slices.Contains(theme.Names(), val) {
			a.cfg.Appearance.Theme = val
			theme.SetActive(val)
		}
	case settingsFieldDays:
		if d, err := strconv.Atoi(val); err == nil && d > 0 {
			a.cfg.General.DefaultDays = d
			a.opts.Days = 0
			a.recompute()
		}
	case settingsFieldLargeFile:
		if mb, err := strconv.Atoi(val); err == nil && mb > 0 {
			a.cfg.Search.LargeFileMB = mb
		}
	}
	a.settings.saveErr = config.SaveTo(a.opts.ConfigPath, a.cfg)
}

// settingsToggle flips a boolean field and saves.
func (a *App) settingsToggle() {
	c := &a.cfg
	switch a.settings.cursor {
	case settingsFieldDeep:
		c.Search.DeepByDefault = !c.Search.DeepByDefault
		a.search.deep = c.Search.DeepByDefault
	case settingsFieldSubagents:
		c.General.IncludeSubagents = !c.General.IncludeSubagents
	case settingsFieldPreamble:
		c.Transcript.SkipPreamble = !c.Transcript.SkipPreamble
	case settingsFieldDedupe:
		c.Transcript.DedupeToolGroups = !c.Transcript.DedupeToolGroups
	case settingsFieldWatch:
		c.General.Watch = !c.General.Watch
	}
	a.settings.saveErr = config.SaveTo(a.opts.ConfigPath, a.cfg)
	a.settings.saved = a.settings.saveErr == nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (a App) renderSettingsTab(cw int) string {
	t := theme.Active
	cfg := a.cfg

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	selectedStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceBright).Bold(true)
	selectedLabelStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.SurfaceBright).Bold(true)
	accentStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface)
	greenStyle := lipgloss.NewStyle().Foreground(t.GreenBright).Background(t.Surface)
	markerStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.SurfaceBright)

	type field struct {
		label string
		value string
	}
	fields := []field{
		{"Theme", cfg.Appearance.Theme},
		{"Default Days", strconv.Itoa(cfg.General.DefaultDays)},
		{"Large File", fmt.Sprintf("%d MB", cfg.Search.LargeFileMB)},
		{"Deep Search", onOff(cfg.Search.DeepByDefault)},
		{"Subagent Logs", onOff(cfg.General.IncludeSubagents)},
		{"Skip Preamble", onOff(cfg.Transcript.SkipPreamble)},
		{"Dedupe Tools", onOff(cfg.Transcript.DedupeToolGroups)},
		{"Watch Roots", onOff(cfg.General.Watch)},
	}

	innerW := components.CardInnerWidth(cw)
	var formBody strings.Builder
	for i, f := range fields {
		if a.settings.editing && i == a.settings.cursor {
			formBody.WriteString(markerStyle.Render("▸ "))
			formBody.WriteString(accentStyle.Render(fmt.Sprintf("%-18s ", f.label)))
			formBody.WriteString(a.settings.input.View())
			formBody.WriteString("\n")
			continue
		}

		if i == a.settings.cursor {
			marker := markerStyle.Render("▸ ")
			label := selectedLabelStyle.Render(fmt.Sprintf("%-18s ", f.label+":"))
			value := selectedStyle.Render(f.value)
			formBody.WriteString(marker + label + value)
			usedWidth := lipgloss.Width(marker) + lipgloss.Width(label) + lipgloss.Width(value)
			if padLen := innerW - usedWidth; padLen > 0 {
				formBody.WriteString(lipgloss.NewStyle().Background(t.SurfaceBright).Render(strings.Repeat(" ", padLen)))
			}
		} else {
			formBody.WriteString(lipgloss.NewStyle().Background(t.Surface).Render("  "))
			formBody.WriteString(labelStyle.Render(fmt.Sprintf("%-18s ", f.label+":")))
			formBody.WriteString(valueStyle.Render(f.value))
		}
		formBody.WriteString("\n")
	}

	if a.settings.saveErr != nil {
		warnStyle := lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface)
		formBody.WriteString("\n")
		formBody.WriteString(warnStyle.Render(fmt.Sprintf("Save failed: %s", a.settings.saveErr)))
	} else if a.settings.saved {
		formBody.WriteString("\n")
		formBody.WriteString(greenStyle.Render("Saved. Loader and watcher changes apply on next start."))
	}

	formBody.WriteString("\n")
	formBody.WriteString(labelStyle.Render("[j/k] navigate  [Enter] edit or toggle  [Esc] cancel"))

	var infoBody strings.Builder
	for _, r := range a.roots {
		infoBody.WriteString(labelStyle.Render(fmt.Sprintf("%-17s", r.Name+":")) + valueStyle.Render(r.Dir) + "\n")
	}
	infoBody.WriteString(labelStyle.Render("Sessions loaded: ") + valueStyle.Render(cli.FormatNumber(int64(len(a.documents)))) + "\n")
	infoBody.WriteString(labelStyle.Render("Load time:       ") + valueStyle.Render(cli.FormatElapsed(a.loadTime)) + "\n")
	infoBody.WriteString(labelStyle.Render("Config file:     ") + valueStyle.Render(a.opts.ConfigPath))

	var b strings.Builder
	b.WriteString(components.ContentCard("Settings", formBody.String(), cw))
	b.WriteString("\n")
	b.WriteString(components.ContentCard("Sources", infoBody.String(), cw))
	return b.String()
}
