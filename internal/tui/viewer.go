package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jazzyalex/agent-sessions/internal/assets"
	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/navigate"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/transcript"
	"github.com/jazzyalex/agent-sessions/internal/tui/components"
	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
)

type sessionParsedMsg struct {
	docID   string
	session *model.Session
	err     error
	refresh bool
}

type assetsScannedMsg struct {
	docID  string
	result assets.Result
	err    error
}

// roleKeys maps jump keys to roles. The upper-case key steps backwards.
var roleKeys = map[string]model.Role{
	"u": model.RoleUser,
	"a": model.RoleAssistant,
	"t": model.RoleToolCall,
	"o": model.RoleToolOutput,
	"e": model.RoleError,
}

// gutterWidth is the line-id column plus the role label.
const gutterWidth = 14

// viewerState is the full-screen transcript view of one document.
type viewerState struct {
	doc     model.Document
	session *model.Session
	tdoc    *transcript.Document
	nav     *navigate.Navigator
	roles   model.RoleSet
	opts    model.Options

	vp      viewport.Model
	lineRow map[int]int
	current int

	find    textinput.Model
	finding bool

	globalQuery string
	loading     bool
	scanning    bool
	note        string
	err         error
}

func newViewer(d model.Document, globalQuery string, opts model.Options, width, height int) *viewerState {
	ti := textinput.New()
	ti.Prompt = "find: "
	ti.CharLimit = 128
	v := &viewerState{
		doc:         d,
		opts:        opts,
		vp:          viewport.New(components.CardInnerWidth(width), height),
		find:        ti,
		globalQuery: globalQuery,
		loading:     true,
	}
	if d.Session != nil {
		v.loaded(sessionParsedMsg{docID: d.ID, session: d.Session}, opts)
	}
	return v
}

// openViewer shows d. An unparsed document is promoted in the running
// search so its matches arrive first, then parsed in the background.
func (a App) openViewer(d model.Document, globalQuery string) (tea.Model, tea.Cmd) {
	a.viewer = newViewer(d, globalQuery, a.cfg.Options(), a.contentWidth(), a.viewerHeight())
	if !a.viewer.loading {
		return a, nil
	}
	if a.res.coord != nil && a.res.coord.Promote(d.ID) {
		log.Debug("viewer_promoted", "doc", d.ID)
	}
	return a, parseSessionCmd(a.res.ctx, d, false)
}

func parseSessionCmd(ctx context.Context, d model.Document, refresh bool) tea.Cmd {
	return func() tea.Msg {
		s, err := source.ParsePath(ctx, d.Path, d.ID)
		return sessionParsedMsg{docID: d.ID, session: s, err: err, refresh: refresh}
	}
}

func scanAssetsCmd(ctx context.Context, v *viewerState, opts assets.Options) tea.Cmd {
	d, s := v.doc, v.session
	return func() tea.Msg {
		if s != nil {
			opts.UserOffsets = assets.UserOffsets(s)
		}
		res, err := assets.ScanFile(ctx, d.Path, d.ID, opts)
		return assetsScannedMsg{docID: d.ID, result: res, err: err}
	}
}

// loaded installs a parsed session. A refresh of the same session under
// the same roles keeps role cursors; anything else rebuilds navigation.
func (v *viewerState) loaded(msg sessionParsedMsg, opts model.Options) {
	v.loading = false
	v.opts = opts
	if msg.err != nil {
		if !msg.refresh || v.tdoc == nil {
			v.err = msg.err
		}
		log.Warn("viewer_parse_failed", "doc", msg.docID, "err", msg.err)
		return
	}
	v.err = nil

	if msg.refresh && v.tdoc != nil && v.session != nil && v.session.ID == msg.session.ID {
		if !v.tdoc.NeedsRebuild(msg.session, v.roles) {
			return
		}
		v.session = msg.session
		v.tdoc = transcript.BuildLines(msg.session, v.roles, v.opts)
		v.nav.Refresh(v.tdoc)
		v.render()
		return
	}

	v.session = msg.session
	v.tdoc = transcript.BuildLines(msg.session, v.roles, v.opts)
	v.nav = navigate.New(v.tdoc)
	if v.globalQuery != "" {
		v.nav.Find(navigate.ContextGlobal, v.globalQuery)
	}
	v.render()

	if id, ok := v.nav.Advance(navigate.Scope{Context: navigate.ContextGlobal}, 1); ok {
		v.jump(id)
	} else if id, ok := v.tdoc.FirstPrompt(); ok {
		v.jump(id)
	}
}

// setRoles rebuilds the document under a new role filter. Queries survive;
// cursors start over.
func (v *viewerState) setRoles(roles model.RoleSet) {
	v.roles = roles
	if v.session == nil {
		return
	}
	v.tdoc = transcript.BuildLines(v.session, roles, v.opts)
	v.nav.Rebuild(v.tdoc)
	if _, ok := v.tdoc.Line(v.current); !ok {
		v.current = 0
	}
	v.render()
}

func (v *viewerState) toggleRole(r model.Role) {
	next := model.RoleSet{}
	for _, role := range model.AllRoles {
		if v.roles.Has(role) != (role == r) {
			next[role] = true
		}
	}
	if len(next) == 0 {
		return
	}
	if len(next) == len(model.AllRoles) {
		next = nil
	}
	v.setRoles(next)
}

func (v *viewerState) assetsScanned(msg assetsScannedMsg) {
	v.scanning = false
	if msg.err != nil {
		v.note = "image scan failed: " + msg.err.Error()
		return
	}
	v.tdoc.AttachAssets(msg.result.Assets)
	v.note = fmt.Sprintf("%d inline images", v.tdoc.AssetCount())
	if msg.result.Truncated {
		v.note += " (scan budget reached)"
	}
	v.render()
}

func (v *viewerState) resize(width, height int) {
	v.vp.Width = components.CardInnerWidth(width)
	v.vp.Height = height
	v.render()
}

// jump makes lineID current and scrolls it into the upper third.
func (v *viewerState) jump(lineID int) {
	ln, ok := v.tdoc.Line(lineID)
	if !ok {
		return
	}
	v.current = lineID
	v.nav.Sync(ln.Role, lineID)
	v.render()
	row := v.lineRow[lineID] - v.vp.Height/3
	if row < 0 {
		row = 0
	}
	v.vp.SetYOffset(row)
}

// step advances within scope and jumps to the target.
func (v *viewerState) step(scope navigate.Scope, dir int) {
	if v.nav == nil {
		return
	}
	id, ok := v.nav.Advance(scope, dir)
	if !ok {
		v.note = "no " + scopeLabel(scope)
		return
	}
	v.note = ""
	v.jump(id)
}

func scopeLabel(s navigate.Scope) string {
	switch s.Context {
	case navigate.ContextGlobal:
		return "search matches"
	case navigate.ContextLocal:
		return "find matches"
	}
	return cli.RoleLabel(s.Role) + " lines"
}

// matchScope is where n and N step: the find query when one is set,
// otherwise the search query.
func (v *viewerState) matchScope() navigate.Scope {
	if v.nav != nil && v.nav.Local.Query() != "" {
		return navigate.Scope{Context: navigate.ContextLocal}
	}
	return navigate.Scope{Context: navigate.ContextGlobal}
}

func (a App) updateViewer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := a.viewer
	key := msg.String()

	if v.finding {
		switch key {
		case "enter":
			v.finding = false
			v.find.Blur()
			if v.nav != nil {
				v.nav.Find(navigate.ContextLocal, v.find.Value())
				v.render()
				v.step(navigate.Scope{Context: navigate.ContextLocal}, 1)
			}
		case "esc":
			v.finding = false
			v.find.Blur()
		default:
			var cmd tea.Cmd
			v.find, cmd = v.find.Update(msg)
			return a, cmd
		}
		return a, nil
	}

	switch key {
	case "q", "esc":
		if key == "esc" && v.nav != nil && v.nav.Local.Query() != "" {
			v.nav.Find(navigate.ContextLocal, "")
			v.find.SetValue("")
			v.render()
			return a, nil
		}
		a.viewer = nil
		return a, nil
	case "/":
		v.finding = true
		return a, v.find.Focus()
	case "n":
		v.step(v.matchScope(), 1)
	case "N":
		v.step(v.matchScope(), -1)
	case ">":
		v.step(navigate.Scope{Context: navigate.ContextGlobal}, 1)
	case "<":
		v.step(navigate.Scope{Context: navigate.ContextGlobal}, -1)
	case "i":
		if v.session != nil && !v.scanning {
			v.scanning = true
			v.note = "scanning for images..."
			return a, scanAssetsCmd(a.res.ctx, v, a.cfg.AssetOptions())
		}
	case "1", "2", "3", "4", "5", "6":
		v.toggleRole(model.AllRoles[key[0]-'1'])
	default:
		if r, ok := roleKeys[strings.ToLower(key)]; ok && len(key) == 1 {
			dir := 1
			if key != strings.ToLower(key) {
				dir = -1
			}
			v.step(navigate.Scope{Context: navigate.ContextRole, Role: r}, dir)
			return a, nil
		}
		var cmd tea.Cmd
		v.vp, cmd = v.vp.Update(msg)
		return a, cmd
	}
	return a, nil
}

// render lays out every visible line into the viewport and records the
// row each line starts on.
func (v *viewerState) render() {
	if v.tdoc == nil {
		return
	}
	t := theme.Active
	width := v.vp.Width - gutterWidth
	if width < 20 {
		width = 20
	}

	spans := v.lineSpans()
	pad := strings.Repeat(" ", gutterWidth)
	idStyle := lipgloss.NewStyle().Foreground(t.TextDim)
	curStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	assetStyle := lipgloss.NewStyle().Foreground(t.Magenta)

	v.lineRow = make(map[int]int, len(v.tdoc.Lines))
	var b strings.Builder
	row := 0
	for _, ln := range v.tdoc.Lines {
		v.lineRow[ln.ID] = row

		marker := idStyle.Render(fmt.Sprintf("%4d ", ln.ID))
		if ln.ID == v.current {
			marker = curStyle.Render(fmt.Sprintf("%4d▌", ln.ID))
		}
		label := lipgloss.NewStyle().Foreground(t.Role(ln.Role)).Width(gutterWidth - 5).Render(roleTag(ln.Role))

		body := highlightLine(ln.Text, spans[ln.ID])
		wrapped := strings.Split(wordwrap.String(body, width), "\n")
		for i, w := range wrapped {
			if i == 0 {
				b.WriteString(marker + label + w)
			} else {
				b.WriteString(pad + w)
			}
			b.WriteString("\n")
			row++
		}
		for _, as := range v.tdoc.AssetsForLine(ln.ID) {
			b.WriteString(pad + assetStyle.Render(fmt.Sprintf("[image #%d %s ~%s]",
				as.Sequence+1, as.MediaType, cli.FormatBytes(int64(as.ApproxBytes)))))
			b.WriteString("\n")
			row++
		}
	}
	v.vp.SetContent(strings.TrimSuffix(b.String(), "\n"))
}

func roleTag(r model.Role) string {
	switch r {
	case model.RoleToolCall:
		return "tool"
	case model.RoleToolOutput:
		return "output"
	}
	return string(r)
}

// lineSpan is a line-local highlight.
type lineSpan struct {
	model.Span
	current bool
}

// lineSpans converts the finders' document offsets into per-line spans.
// Find matches are drawn over search matches.
func (v *viewerState) lineSpans() map[int][]lineSpan {
	out := make(map[int][]lineSpan)
	if v.nav == nil {
		return out
	}
	add := func(f *navigate.Finder) {
		cur, hasCur := f.Current()
		for _, m := range f.Matches() {
			at, ok := v.tdoc.Index.Span(m.LineID)
			if !ok {
				continue
			}
			out[m.LineID] = append(out[m.LineID], lineSpan{
				Span:    model.Span{Start: m.Span.Start - at.Start, End: m.Span.End - at.Start},
				current: hasCur && cur == m,
			})
		}
	}
	add(v.nav.Global)
	add(v.nav.Local)
	for id, spans := range out {
		sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
		out[id] = spans
	}
	return out
}

// highlightLine styles spans of text. Overlapping spans after the first
// are clipped.
func highlightLine(text string, spans []lineSpan) string {
	if len(spans) == 0 {
		return text
	}
	t := theme.Active
	var b strings.Builder
	pos := 0
	for _, sp := range spans {
		start, end := max(sp.Start, pos), min(sp.End, len(text))
		if start >= end {
			continue
		}
		style := lipgloss.NewStyle().Foreground(t.Background).Background(t.Match(sp.current)).Bold(sp.current)
		b.WriteString(text[pos:start])
		b.WriteString(style.Render(text[start:end]))
		pos = end
	}
	b.WriteString(text[pos:])
	return b.String()
}

func (v *viewerState) view(cw int) string {
	t := theme.Active
	muted := lipgloss.NewStyle().Foreground(t.TextMuted)
	dim := lipgloss.NewStyle().Foreground(t.TextDim)

	title := fmt.Sprintf("%s · %s · %s", cli.ShortID(v.doc.ID), v.doc.Source, v.doc.Repo)
	switch {
	case v.err != nil:
		return components.FocusCard(title, lipgloss.NewStyle().Foreground(t.Red).Render(v.err.Error()), cw)
	case v.loading:
		return components.FocusCard(title, muted.Render("Parsing "+cli.FormatBytes(v.doc.SizeBytes)+"..."), cw)
	}

	var roles strings.Builder
	for i, r := range model.AllRoles {
		style := dim
		box := "○"
		if v.roles.Has(r) {
			style = lipgloss.NewStyle().Foreground(t.Role(r))
			box = "●"
		}
		roles.WriteString(style.Render(fmt.Sprintf("%d%s %s  ", i+1, box, roleTag(r))))
	}

	footer := v.footer()
	if v.finding {
		footer = v.find.View()
	}
	body := roles.String() + "\n" + v.vp.View() + "\n" + muted.Render(footer)
	return components.FocusCard(title, body, cw)
}

func (v *viewerState) footer() string {
	var parts []string
	if v.nav != nil {
		if q := v.nav.Local.Query(); q != "" {
			parts = append(parts, fmt.Sprintf("find %q %d/%d", q, v.nav.Local.Position(), len(v.nav.Local.Matches())))
		}
		if q := v.nav.Global.Query(); q != "" {
			parts = append(parts, fmt.Sprintf("search %q %d/%d", q, v.nav.Global.Position(), len(v.nav.Global.Matches())))
		}
	}
	if v.tdoc != nil {
		parts = append(parts, fmt.Sprintf("line %d/%d", v.current, len(v.tdoc.Lines)))
	}
	parts = append(parts, fmt.Sprintf("%d%%", int(v.vp.ScrollPercent()*100)))
	if v.note != "" {
		parts = append(parts, v.note)
	}
	return strings.Join(parts, " · ")
}
