package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/sahilm/fuzzy"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/transcript"
	"github.com/jazzyalex/agent-sessions/internal/tui/components"
	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
)

// Browse view modes. Split is the zero value so it's the default.
const (
	sessViewSplit  = iota // List + detail side by side
	sessViewDetail        // Full-width detail
)

// sessionsState holds the browse tab state.
type sessionsState struct {
	cursor   int
	viewMode int
	offset   int

	filter    string
	filtering bool
	input     textinput.Model
}

func (s *sessionsState) move(dir, n int) {
	s.cursor += dir
	s.clamp(n)
}

func (s *sessionsState) clamp(n int) {
	if s.cursor >= n {
		s.cursor = n - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}

// docLabels adapts a document list for fuzzy matching.
type docLabels []model.Document

func (d docLabels) String(i int) string {
	return d[i].Repo + " " + d[i].Source + " " + d[i].ID
}

func (d docLabels) Len() int { return len(d) }

// browseList is the filtered catalog, best fuzzy match first when a
// filter is set and newest first otherwise.
func (a App) browseList() []model.Document {
	if a.sessState.filter == "" {
		return a.filtered
	}
	matches := fuzzy.FindFrom(a.sessState.filter, docLabels(a.filtered))
	out := make([]model.Document, 0, len(matches))
	for _, m := range matches {
		out = append(out, a.filtered[m.Index])
	}
	return out
}

func (a App) browseKeys(key string) (tea.Model, tea.Cmd, bool) {
	n := len(a.browseList())
	switch key {
	case "j", "down":
		a.sessState.move(1, n)
	case "k", "up":
		a.sessState.move(-1, n)
	case "g", "home":
		a.sessState.cursor = 0
	case "G", "end":
		a.sessState.cursor = max(0, n-1)
	case "d":
		if a.sessState.viewMode == sessViewSplit {
			a.sessState.viewMode = sessViewDetail
		} else {
			a.sessState.viewMode = sessViewSplit
		}
	case "/":
		ti := textinput.New()
		ti.Prompt = "filter: "
		ti.SetValue(a.sessState.filter)
		a.sessState.input = ti
		a.sessState.filtering = true
		focus := a.sessState.input.Focus()
		return a, focus, true
	case "enter":
		list := a.browseList()
		if a.sessState.cursor < len(list) {
			m, cmd := a.openViewer(list[a.sessState.cursor], "")
			return m, cmd, true
		}
	default:
		return a, nil, false
	}
	return a, nil, true
}

func (a App) updateBrowseFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		a.sessState.filter = strings.TrimSpace(a.sessState.input.Value())
		a.sessState.filtering = false
		a.sessState.cursor = 0
		a.sessState.offset = 0
		return a, nil
	case "esc":
		a.sessState.filtering = false
		return a, nil
	}
	var cmd tea.Cmd
	a.sessState.input, cmd = a.sessState.input.Update(msg)
	return a, cmd
}

func (a App) renderSessionsContent(cw, h int) string {
	t := theme.Active
	docs := a.browseList()

	if len(docs) == 0 {
		msg := "No sessions found"
		if a.sessState.filter != "" {
			msg = fmt.Sprintf("Nothing matches %q", a.sessState.filter)
		}
		return components.ContentCard("Sessions", lipgloss.NewStyle().Foreground(t.TextMuted).Render(msg), cw)
	}

	if a.sessState.viewMode == sessViewDetail || a.isCompactLayout() {
		sel := docs[min(a.sessState.cursor, len(docs)-1)]
		return components.ContentCard("Session "+cli.ShortID(sel.ID), a.renderDetailBody(sel, cw), cw)
	}
	return a.renderSessionsSplit(docs, cw, h)
}

func (a App) renderSessionsSplit(docs []model.Document, cw, h int) string {
	t := theme.Active
	ss := a.sessState

	leftW := cw * 2 / 5
	if leftW < 40 {
		leftW = 40
	}
	rightW := cw - leftW
	leftInner := components.CardInnerWidth(leftW)

	rowStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	selectedStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceHover).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)

	var leftBody strings.Builder
	if ss.filtering {
		leftBody.WriteString(ss.input.View())
		leftBody.WriteString("\n")
	} else if ss.filter != "" {
		leftBody.WriteString(mutedStyle.Render("filter: " + ss.filter))
		leftBody.WriteString("\n")
	}

	visible := h - 5 // card border (2) + title (1) + filter row (1) + footer hint (1)
	if visible < 5 {
		visible = 5
	}
	offset := ss.offset
	if ss.cursor < offset {
		offset = ss.cursor
	}
	if ss.cursor >= offset+visible {
		offset = ss.cursor - visible + 1
	}
	end := min(len(docs), offset+visible)

	for i := offset; i < end; i++ {
		d := docs[i]
		startStr := ""
		if t := d.Time(); !t.IsZero() {
			startStr = t.Local().Format("Jan 02 15:04")
		}
		line := fmt.Sprintf("%-12s %-7s %s", startStr, cli.Truncate(d.Source, 7), d.Repo)
		line = cli.Truncate(line, leftInner)

		if i == ss.cursor {
			leftBody.WriteString(selectedStyle.Render(cli.PadRight(line, leftInner)))
		} else {
			leftBody.WriteString(rowStyle.Render(line))
		}
		if i < end-1 {
			leftBody.WriteString("\n")
		}
	}

	leftTitle := fmt.Sprintf("Sessions [%s] %d/%d", a.windowLabel(), ss.cursor+1, len(docs))
	leftCard := components.FocusCard(leftTitle, leftBody.String(), leftW)

	sel := docs[min(ss.cursor, len(docs)-1)]
	rightCard := components.ContentCard("Session "+cli.ShortID(sel.ID), a.renderDetailBody(sel, rightW), rightW)

	return components.CardRow([]string{leftCard, rightCard})
}

// renderDetailBody renders the metadata of one catalog entry. Used by both
// the split right pane and the full-width detail view.
func (a App) renderDetailBody(sel model.Document, w int) string {
	t := theme.Active
	innerW := components.CardInnerWidth(w)

	headerStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)

	var body strings.Builder
	body.WriteString(headerStyle.Render(sel.Repo))
	body.WriteString("\n")
	body.WriteString(mutedStyle.Render(strings.Repeat("─", innerW)))
	body.WriteString("\n")

	field := func(label, value string) {
		fmt.Fprintf(&body, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label)), valueStyle.Render(value))
	}
	field("ID", sel.ID)
	field("Source", sel.Source)
	if sel.Model != "" {
		field("Model", sel.Model)
	}
	if !sel.StartTime.IsZero() {
		field("Started", sel.StartTime.Local().Format("2006-01-02 15:04:05 MST"))
	}
	if !sel.ModifiedAt.IsZero() {
		field("Modified", cli.FormatAge(sel.ModifiedAt))
	}
	field("Size", cli.FormatBytes(sel.SizeBytes))
	if sel.Indexed {
		field("Prompts", cli.FormatNumber(int64(sel.Prompts)))
		field("Indexed", "yes")
	} else {
		field("Indexed", "no, scanned on demand")
	}
	body.WriteString("\n")
	body.WriteString(mutedStyle.Render(cli.Truncate(sel.Path, innerW)))
	body.WriteString("\n")

	if p := firstPrompt(sel.Session); p != "" {
		body.WriteString("\n")
		body.WriteString(headerStyle.Render("FIRST PROMPT"))
		body.WriteString("\n")
		lines := strings.Split(wordwrap.String(p, innerW), "\n")
		if len(lines) > 6 {
			lines = append(lines[:6], "…")
		}
		body.WriteString(valueStyle.Render(strings.Join(lines, "\n")))
		body.WriteString("\n")
	}

	body.WriteString("\n")
	body.WriteString(mutedStyle.Render("[Enter] open  [/] filter  [d] detail  [j/k] navigate"))
	return body.String()
}

// firstPrompt returns the first user prompt that is not injected
// instructions.
func firstPrompt(s *model.Session) string {
	if s == nil {
		return ""
	}
	for _, ev := range s.Events {
		if ev.Kind == model.RoleUser && !transcript.IsPreambleText(ev.Text) {
			return strings.TrimSpace(ev.Text)
		}
	}
	return ""
}
