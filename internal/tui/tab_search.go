package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/search"
	"github.com/jazzyalex/agent-sessions/internal/tui/components"
	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
)

// searchDebounce is how long typing must pause before a run starts.
const searchDebounce = 250 * time.Millisecond

type searchDebounceMsg struct{ seq int }

type searchSnapMsg struct{ snap search.Snapshot }

// searchState holds the search tab state.
type searchState struct {
	input  textinput.Model
	seq    int
	token  uint64
	snap   search.Snapshot
	cursor int
	offset int
	deep   bool
	err    error
}

func newSearchState(deep bool) searchState {
	ti := textinput.New()
	ti.Placeholder = "terms, \"exact phrase\", repo:name, path:fragment"
	ti.Prompt = "› "
	ti.CharLimit = 256
	return searchState{input: ti, deep: deep}
}

func (s *searchState) move(dir int) {
	n := len(s.snap.Results)
	if n == 0 {
		s.cursor = 0
		return
	}
	s.cursor += dir
	if s.cursor < 0 {
		s.cursor = 0
	}
	if s.cursor >= n {
		s.cursor = n - 1
	}
}

// accept reports whether snap belongs to the run this tab is showing.
// Snapshots from superseded tokens are stale.
func (s *searchState) accept(snap search.Snapshot) bool {
	if snap.Token != s.token {
		return false
	}
	s.snap = snap
	s.err = snap.Err
	if s.cursor >= len(snap.Results) {
		s.cursor = max(0, len(snap.Results)-1)
	}
	return true
}

// listenSearch waits for the next coordinator snapshot. It is re-armed
// after every delivery so exactly one listener is ever outstanding.
func listenSearch(coord *search.Coordinator) tea.Cmd {
	if coord == nil {
		return nil
	}
	return func() tea.Msg {
		return searchSnapMsg{snap: <-coord.Updates()}
	}
}

func debounceSearch(seq int) tea.Cmd {
	return tea.Tick(searchDebounce, func(time.Time) tea.Msg {
		return searchDebounceMsg{seq: seq}
	})
}

func (a App) updateSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.search.input.Blur()
		return a, nil
	case "up":
		a.search.move(-1)
		return a, nil
	case "down":
		a.search.move(1)
		return a, nil
	case "enter":
		return a.openSearchResult()
	case "ctrl+t":
		a.search.deep = !a.search.deep
		a.search.seq++
		return a, func() tea.Msg { return searchDebounceMsg{seq: a.search.seq} }
	}

	before := a.search.input.Value()
	var cmd tea.Cmd
	a.search.input, cmd = a.search.input.Update(msg)
	if a.search.input.Value() == before {
		return a, cmd
	}
	a.search.seq++
	return a, tea.Batch(cmd, debounceSearch(a.search.seq))
}

func (a App) searchKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case "/", "i":
		focus := a.search.input.Focus()
		return a, focus, true
	case "j", "down":
		a.search.move(1)
		return a, nil, true
	case "k", "up":
		a.search.move(-1)
		return a, nil, true
	case "enter":
		m, cmd := a.openSearchResult()
		return m, cmd, true
	case "ctrl+t":
		a.search.deep = !a.search.deep
		m, cmd := a.startSearch(a.search.seq)
		return m, cmd, true
	}
	return a, nil, false
}

// startSearch begins a run for the current input if seq is still the
// latest edit.
func (a App) startSearch(seq int) (tea.Model, tea.Cmd) {
	if seq != a.search.seq || a.res.coord == nil {
		return a, nil
	}
	query := strings.TrimSpace(a.search.input.Value())
	since, until := a.window()
	tok, err := a.res.coord.Start(a.res.ctx, search.Request{
		Filters:   model.Filters{Query: query, Since: since, Until: until, Model: a.opts.Model, Repo: a.opts.Repo},
		Include:   a.includeSources(),
		DeepScan:  a.search.deep,
		Documents: a.documents,
	})
	a.search.token = tok
	a.search.snap = search.Snapshot{Token: tok, Query: query}
	a.search.cursor = 0
	a.search.offset = 0
	a.search.err = err
	if err != nil {
		log.Debug("search_rejected", "query", query, "err", err)
	}
	return a, nil
}

func (a App) includeSources() map[string]bool {
	if a.opts.Source == "" {
		return nil
	}
	return map[string]bool{a.opts.Source: true}
}

func (a App) applySnapshot(snap search.Snapshot) (tea.Model, tea.Cmd) {
	a.search.accept(snap)
	return a, listenSearch(a.res.coord)
}

func (a App) openSearchResult() (tea.Model, tea.Cmd) {
	res := a.search.snap.Results
	if len(res) == 0 || a.search.cursor >= len(res) {
		return a, nil
	}
	id := res[a.search.cursor].DocumentID
	for _, d := range a.documents {
		if d.ID == id {
			return a.openViewer(d, a.globalQuery())
		}
	}
	return a, nil
}

// globalQuery is the text the viewer's search-match finder looks for:
// the first term of the active query.
func (a App) globalQuery() string {
	q, err := search.ParseQuery(a.search.snap.Query)
	if err != nil || len(q.Terms) == 0 {
		return ""
	}
	return q.Terms[0]
}

func (a App) renderSearchTab(cw, h int) string {
	t := theme.Active
	s := a.search

	inputStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	muted := lipgloss.NewStyle().Foreground(t.TextMuted)
	dim := lipgloss.NewStyle().Foreground(t.TextDim)

	var top strings.Builder
	top.WriteString(inputStyle.Render(s.input.View()))
	top.WriteString("\n")
	mode := "quick"
	if s.deep {
		mode = "deep"
	}
	top.WriteString(dim.Render("mode: "))
	top.WriteString(muted.Render(mode))
	if s.err != nil {
		top.WriteString("  ")
		top.WriteString(lipgloss.NewStyle().Foreground(t.Red).Render(s.err.Error()))
	}
	top.WriteString("\n")
	top.WriteString(components.PhaseBar(s.snap.Progress, 18, min(40, cw/3)))
	top.WriteString("\n")
	top.WriteString(muted.Render(a.searchSummary()))

	queryCard := components.FocusCard("Search", top.String(), cw)
	if !s.input.Focused() {
		queryCard = components.ContentCard("Search", top.String(), cw)
	}

	listH := h - lipgloss.Height(queryCard)
	return queryCard + "\n" + a.renderResults(cw, listH)
}

func (a App) searchSummary() string {
	s := a.search.snap
	if s.Query == "" {
		return "type to search every agent's sessions"
	}
	parts := []string{fmt.Sprintf("%d matches", len(s.Results))}
	if s.Running {
		parts = append(parts, "scanning")
	}
	if s.StoppedEarly {
		parts = append(parts, "stopped early, ^t for deep scan")
	}
	if s.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d unreadable", s.Skipped))
	}
	return strings.Join(parts, " · ")
}

func (a App) renderResults(cw, h int) string {
	t := theme.Active
	s := a.search
	res := s.snap.Results

	muted := lipgloss.NewStyle().Foreground(t.TextMuted)
	if len(res) == 0 {
		return components.ContentCard("Results", muted.Render("No matches"), cw)
	}

	inner := components.CardInnerWidth(cw)
	// Two rows per result inside a card frame with a title line.
	visible := (h - 4) / 2
	if visible < 1 {
		visible = 1
	}
	offset := s.offset
	if s.cursor < offset {
		offset = s.cursor
	}
	if s.cursor >= offset+visible {
		offset = s.cursor - visible + 1
	}
	end := min(len(res), offset+visible)

	q, _ := search.ParseQuery(s.snap.Query)
	idStyle := lipgloss.NewStyle().Foreground(t.Accent)
	rowStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	selStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceHover).Bold(true)

	var b strings.Builder
	for i := offset; i < end; i++ {
		r := res[i]
		head := fmt.Sprintf("%-8s %-10s %-20s %s  %d",
			cli.ShortID(r.DocumentID),
			cli.Truncate(r.Source, 10),
			cli.Truncate(r.Repo, 20),
			cli.FormatAge(r.ModifiedAt),
			r.MatchCount)
		marker := "  "
		if r.Promoted {
			marker = "↑ "
		}
		if i == s.cursor {
			b.WriteString(selStyle.Render(cli.PadRight(marker+head, inner)))
		} else {
			b.WriteString(idStyle.Render(marker) + rowStyle.Render(head))
		}
		b.WriteString("\n")
		snippet := cli.Truncate(strings.Join(strings.Fields(r.Snippet), " "), inner-4)
		b.WriteString("    ")
		b.WriteString(cli.HighlightTerms(snippet, q.Terms))
		if i < end-1 {
			b.WriteString("\n")
		}
	}

	title := fmt.Sprintf("Results [%d/%d]", s.cursor+1, len(res))
	return components.ContentCard(title, b.String(), cw)
}
