// Package tui provides the interactive Bubble Tea browser for agent
// sessions.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/config"
	"github.com/jazzyalex/agent-sessions/internal/logging"
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
	"github.com/jazzyalex/agent-sessions/internal/search"
	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/store"
	"github.com/jazzyalex/agent-sessions/internal/tui/components"
	"github.com/jazzyalex/agent-sessions/internal/tui/theme"
	"github.com/jazzyalex/agent-sessions/internal/watch"
)

var log = logging.ForComponent(logging.CompUI)

const (
	tabSearch = iota
	tabBrowse
	tabRepos
	tabSettings
)

// ProgressMsg reports file parsing progress.
type ProgressMsg struct {
	Current int
	Total   int
}

// DataLoadedMsg is sent when the first catalog load finishes.
type DataLoadedMsg struct {
	Documents []model.Document
	Cache     *store.Cache
	LoadTime  time.Duration
	Err       error
}

// RefreshDataMsg is sent when a background catalog reload completes.
type RefreshDataMsg struct {
	Documents []model.Document
	LoadTime  time.Duration
	Err       error
}

// fileChangedMsg carries one settled log path from the watcher.
type fileChangedMsg struct{ path string }

// Options are the command-line filters the browser starts with.
type Options struct {
	ConfigPath string
	Days       int // negative means unbounded
	Repo       string
	Model      string
	Source     string
	Deep       bool
	NoCache    bool
}

// resources are shared by every copy of the App value and released once
// by Close.
type resources struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cache   *store.Cache
	coord   *search.Coordinator
	watcher *watch.Watcher
}

// App is the root Bubble Tea model.
type App struct {
	cfg   config.Config
	opts  Options
	roots []source.Root
	res   *resources

	// Data
	documents []model.Document
	filtered  []model.Document
	loaded    bool
	loadErr   error
	loadTime  time.Duration

	// Pre-computed for the current filter
	stats model.SummaryStats
	daily []model.DailyStats
	repos []model.RepoStats

	refreshing     bool
	refreshPending bool
	lastRefresh    time.Time

	// UI state
	width     int
	height    int
	activeTab int
	showHelp  bool

	// Per-tab state
	search    searchState
	sessState sessionsState
	settings  settingsState
	viewer    *viewerState

	// First-run setup (huh form)
	setupForm *huh.Form
	setupVals *SetupValues
	needSetup bool

	// Loading: channel-based progress subscription
	spinner     spinner.Model
	progress    int
	progressMax int
	loadSub     chan tea.Msg
}

const (
	minTerminalWidth = 80
	compactWidth     = 120
	maxContentWidth  = 180

	minContentHeight = 5
)

// NewApp creates a new TUI app model.
func NewApp(cfg config.Config, opts Options) App {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.ConfigPath()
	}
	theme.SetActive(cfg.Appearance.Theme)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent).Background(theme.Active.Surface)

	ctx, cancel := context.WithCancel(context.Background())
	ss := newSearchState(opts.Deep)
	ss.input.Focus()
	return App{
		cfg:       cfg,
		opts:      opts,
		roots:     cfg.Roots(),
		res:       &resources{ctx: ctx, cancel: cancel},
		needSetup: !config.Exists(),
		search:    ss,
		spinner:   sp,
		loadSub:   make(chan tea.Msg, 1),
	}
}

// Close stops background work and releases the cache.
func (a App) Close() {
	a.res.cancel()
	if a.res.coord != nil {
		a.res.coord.Cancel()
		a.res.coord.Wait()
	}
	if a.res.watcher != nil {
		_ = a.res.watcher.Close()
	}
	if a.res.cache != nil {
		_ = a.res.cache.Close()
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		tea.EnableMouseCellMotion,
		loadDataCmd(a.res.ctx, a.roots, a.cfg.LoadOptions(), !a.opts.NoCache, a.loadSub),
		a.spinner.Tick,
		textinput.Blink,
	)
}

// recompute applies the flag filters and the day window, then refreshes
// the aggregates every tab reads.
func (a *App) recompute() {
	since, until := a.window()

	docs := pipeline.FilterBySource(a.documents, a.opts.Source)
	docs = pipeline.FilterByRepo(docs, a.opts.Repo)
	docs = pipeline.FilterByModel(docs, a.opts.Model)

	a.stats = pipeline.Aggregate(docs, since, until)
	a.daily = pipeline.AggregateDays(docs, since, until)
	a.repos = pipeline.AggregateRepos(docs, since, until)

	inWindow := pipeline.FilterByTime(docs, since, until)
	filtered := make([]model.Document, len(inWindow))
	copy(filtered, inWindow)
	pipeline.SortByRecent(filtered)
	a.filtered = filtered

	a.sessState.clamp(len(a.browseList()))
}

// window returns the [since, until) range for the day filter.
func (a App) window() (time.Time, time.Time) {
	if a.opts.Days < 0 {
		return time.Time{}, time.Time{}
	}
	days := a.opts.Days
	if days == 0 {
		days = a.cfg.General.DefaultDays
	}
	now := time.Now()
	return now.AddDate(0, 0, -days), now.Add(time.Minute)
}

func (a App) windowLabel() string {
	if a.opts.Days < 0 {
		return "all"
	}
	days := a.opts.Days
	if days == 0 {
		days = a.cfg.General.DefaultDays
	}
	return fmt.Sprintf("%dd", days)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		if a.viewer != nil {
			a.viewer.resize(a.contentWidth(), a.viewerHeight())
		}
		return a, nil

	case tea.MouseMsg:
		return a.updateMouse(msg)

	case tea.KeyMsg:
		return a.updateKey(msg)

	case DataLoadedMsg:
		a.loaded = true
		a.loadErr = msg.Err
		a.loadTime = msg.LoadTime
		a.lastRefresh = time.Now()
		a.documents = msg.Documents
		a.res.cache = msg.Cache
		a.res.coord = search.NewCoordinator(a.cfg.SearchOptions(), pipeline.Sources(a.roots, msg.Cache)...)
		a.recompute()

		cmds := []tea.Cmd{listenSearch(a.res.coord)}
		if a.cfg.General.Watch {
			cmds = append(cmds, startWatchCmd(a.res, pipeline.RootDirs(a.roots)))
		}
		if a.needSetup {
			vals := SetupDefaults(a.cfg)
			a.setupVals = &vals
			a.setupForm = NewSetupForm(len(a.documents), a.roots, a.setupVals)
			if a.width > 0 {
				a.setupForm = a.setupForm.WithWidth(a.width).WithHeight(a.height)
			}
			cmds = append(cmds, a.setupForm.Init())
		}
		return a, tea.Batch(cmds...)

	case ProgressMsg:
		a.progress = msg.Current
		a.progressMax = msg.Total
		return a, waitForLoadMsg(a.loadSub)

	case spinner.TickMsg:
		if !a.loaded {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil

	case RefreshDataMsg:
		a.refreshing = false
		a.lastRefresh = time.Now()
		if msg.Err != nil {
			log.Warn("refresh_failed", "err", msg.Err)
		} else {
			a.documents = msg.Documents
			a.loadTime = msg.LoadTime
			a.recompute()
		}
		if a.refreshPending {
			a.refreshPending = false
			a.refreshing = true
			return a, a.refreshCmd()
		}
		return a, nil

	case watchStartedMsg:
		if msg.err != nil {
			log.Warn("watch_failed", "err", msg.err)
			return a, nil
		}
		return a, waitForChange(msg.w)

	case fileChangedMsg:
		cmds := []tea.Cmd{waitForChange(a.res.watcher)}
		if a.refreshing {
			a.refreshPending = true
		} else {
			a.refreshing = true
			cmds = append(cmds, a.refreshCmd())
		}
		if a.viewer != nil && a.viewer.doc.Path == msg.path {
			cmds = append(cmds, parseSessionCmd(a.res.ctx, a.viewer.doc, true))
		}
		return a, tea.Batch(cmds...)

	case searchDebounceMsg:
		return a.startSearch(msg.seq)

	case searchSnapMsg:
		return a.applySnapshot(msg.snap)

	case sessionParsedMsg:
		if a.viewer == nil || a.viewer.doc.ID != msg.docID {
			return a, nil
		}
		a.viewer.loaded(msg, a.cfg.Options())
		return a, nil

	case assetsScannedMsg:
		if a.viewer == nil || a.viewer.doc.ID != msg.docID {
			return a, nil
		}
		a.viewer.assetsScanned(msg)
		return a, nil
	}

	// Forward unhandled messages to the setup form (cursor blinks, etc.)
	if a.needSetup && a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	if a.activeTab == tabSearch && a.search.input.Focused() {
		var cmd tea.Cmd
		a.search.input, cmd = a.search.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return a, tea.Quit
	}
	if !a.loaded {
		return a, nil
	}
	if a.needSetup && a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	if a.viewer != nil {
		return a.updateViewer(msg)
	}
	if a.activeTab == tabSettings && a.settings.editing {
		return a.updateSettingsInput(msg)
	}
	if a.activeTab == tabSearch && a.search.input.Focused() {
		return a.updateSearchInput(msg)
	}
	if a.activeTab == tabBrowse && a.sessState.filtering {
		return a.updateBrowseFilter(msg)
	}

	if key == "?" {
		a.showHelp = !a.showHelp
		return a, nil
	}
	if a.showHelp {
		a.showHelp = false
		return a, nil
	}

	switch a.activeTab {
	case tabSearch:
		if m, cmd, ok := a.searchKeys(key); ok {
			return m, cmd
		}
	case tabBrowse:
		if m, cmd, ok := a.browseKeys(key); ok {
			return m, cmd
		}
	case tabSettings:
		if m, cmd, ok := a.settingsKeys(key); ok {
			return m, cmd
		}
	}

	switch key {
	case "q":
		return a, tea.Quit
	case "ctrl+r":
		if !a.refreshing {
			a.refreshing = true
			return a, a.refreshCmd()
		}
		return a, nil
	case "left", "shift+tab":
		a.activeTab = (a.activeTab - 1 + len(components.Tabs)) % len(components.Tabs)
	case "right", "tab":
		a.activeTab = (a.activeTab + 1) % len(components.Tabs)
	default:
		if len(key) == 1 {
			if idx := components.TabIdxByKey(rune(key[0])); idx >= 0 {
				a.activeTab = idx
			}
		}
	}
	if a.activeTab == tabSearch && key == "s" {
		focus := a.search.input.Focus()
		return a, focus
	}
	return a, nil
}

func (a App) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if !a.loaded || a.showHelp || (a.needSetup && a.setupForm != nil) {
		return a, nil
	}
	if a.viewer != nil {
		var cmd tea.Cmd
		a.viewer.vp, cmd = a.viewer.vp.Update(msg)
		return a, cmd
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		a.moveCursor(-1)
	case tea.MouseButtonWheelDown:
		a.moveCursor(1)
	case tea.MouseButtonLeft:
		if msg.Y == 0 && msg.Action == tea.MouseActionPress {
			if tab := a.tabAtX(msg.X); tab >= 0 {
				a.activeTab = tab
			}
		}
	}
	return a, nil
}

// moveCursor steps the list cursor of the active tab.
func (a *App) moveCursor(dir int) {
	switch a.activeTab {
	case tabSearch:
		a.search.move(dir)
	case tabBrowse:
		a.sessState.move(dir, len(a.browseList()))
	case tabSettings:
		a.settings.move(dir)
	}
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	switch a.setupForm.State {
	case huh.StateCompleted:
		a.applySetup()
		a.needSetup = false
		a.setupForm = nil
		a.recompute()
		focus := a.search.input.Focus()
		return a, focus
	case huh.StateAborted:
		a.needSetup = false
		a.setupForm = nil
		focus := a.search.input.Focus()
		return a, focus
	}
	return a, cmd
}

func (a App) contentWidth() int {
	cw := a.width
	if cw > maxContentWidth {
		cw = maxContentWidth
	}
	return cw
}

func (a App) isCompactLayout() bool {
	return a.contentWidth() < compactWidth
}

// headerHeight is the tab bar plus the filter row.
const headerHeight = 2

// statusHeight is the status bar.
const statusHeight = 1

func (a App) contentHeight() int {
	h := a.height - headerHeight - statusHeight
	if h < minContentHeight {
		h = minContentHeight
	}
	return h
}

// viewerHeight is the viewport height inside the viewer card: the content
// zone minus the card border, title, role row and footer.
func (a App) viewerHeight() int {
	h := a.contentHeight() - 5
	if h < 3 {
		h = 3
	}
	return h
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if !a.loaded {
		return a.viewLoading()
	}
	if a.needSetup && a.setupForm != nil {
		return a.setupForm.View()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	h := a.height
	if h < 5 {
		h = 5
	}
	msg := fmt.Sprintf(
		"\n  Terminal too narrow (%d cols)\n\n  agent-sessions needs at least %d columns.\n",
		a.width,
		minTerminalWidth,
	)
	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewLoading() string {
	t := theme.Active
	w := a.width
	h := a.height

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(2, 4)
	logoStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	subtitleStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	spinnerStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface)
	countStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)

	var b strings.Builder
	b.WriteString(logoStyle.Render("◈ agent-sessions"))
	b.WriteString(subtitleStyle.Render(" · coding agent logs"))
	b.WriteString("\n\n")

	if a.progressMax > 0 {
		barW := min(40, max(20, w-30))
		pct := float64(a.progress) / float64(a.progressMax)
		b.WriteString(spinnerStyle.Render(a.spinner.View()))
		b.WriteString(subtitleStyle.Render(" Parsing sessions\n\n"))
		b.WriteString(components.ProgressBar(pct, barW))
		b.WriteString("\n")
		b.WriteString(countStyle.Render(cli.FormatNumber(int64(a.progress))))
		b.WriteString(subtitleStyle.Render(" / "))
		b.WriteString(countStyle.Render(cli.FormatNumber(int64(a.progressMax))))
	} else {
		b.WriteString(spinnerStyle.Render(a.spinner.View()))
		b.WriteString(subtitleStyle.Render(" Discovering sessions..."))
	}

	return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

type binding struct{ key, desc string }

var helpSections = []struct {
	title    string
	bindings []binding
}{
	{"Tabs", []binding{
		{"s b r x", "Search / Browse / Repos / Settings"},
		{"← → tab", "Previous / Next tab"},
		{"^r", "Reload catalog"},
	}},
	{"Lists", []binding{
		{"j k ↑ ↓", "Move"},
		{"Enter", "Open transcript"},
		{"/", "Edit query / filter"},
		{"Esc", "Leave input"},
		{"^t", "Toggle deep search"},
	}},
	{"Transcript", []binding{
		{"n N", "Next / previous match"},
		{"> <", "Next / previous search match"},
		{"u a t o e", "Next user / agent / tool / output / error"},
		{"U A T O E", "Previous of the same"},
		{"1-6", "Toggle role"},
		{"i", "Scan inline images"},
		{"q Esc", "Close"},
	}},
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(1, 3)
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.Cyan).Background(t.Surface).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n")
	for _, sec := range helpSections {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(sec.title))
		b.WriteString("\n")
		for _, bind := range sec.bindings {
			fmt.Fprintf(&b, "  %s  %s\n",
				keyStyle.Render(fmt.Sprintf("%-10s", bind.key)),
				descStyle.Render(bind.desc))
		}
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width
	cw := a.contentWidth()
	h := a.height

	pill := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	accent := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)

	filters := []string{a.windowLabel()}
	for _, f := range []string{a.opts.Source, a.opts.Repo, a.opts.Model} {
		if f != "" {
			filters = append(filters, f)
		}
	}
	filterStr := pill.Render(" ")
	for i, f := range filters {
		if i > 0 {
			filterStr += pill.Render(" │ ")
		}
		filterStr += accent.Render(f)
	}
	filterStr += pill.Render(fmt.Sprintf("  %s sessions", cli.FormatNumber(int64(len(a.filtered)))))

	header := components.RenderTabBar(a.activeTab, w) + "\n" +
		lipgloss.NewStyle().Background(t.Surface).Width(w).Render(filterStr)

	info := fmt.Sprintf("loaded %s · %s", cli.FormatElapsed(a.loadTime), cli.FormatAge(a.lastRefresh))
	if a.loadErr != nil {
		info = "load error: " + a.loadErr.Error()
	}
	statusBar := components.RenderStatusBar(w, a.hints(), info, a.refreshing)

	contentH := a.contentHeight()
	var content string
	switch {
	case a.viewer != nil:
		content = a.viewer.view(cw)
	case a.activeTab == tabSearch:
		content = a.renderSearchTab(cw, contentH)
	case a.activeTab == tabBrowse:
		content = a.renderSessionsContent(cw, contentH)
	case a.activeTab == tabRepos:
		content = a.renderReposTab(cw)
	case a.activeTab == tabSettings:
		content = a.renderSettingsTab(cw)
	}

	content = padHeight(truncateHeight(content, contentH), contentH)
	content = fillLinesWithBackground(content, cw, t.Background)
	content = lipgloss.Place(w, contentH, lipgloss.Center, lipgloss.Top, content,
		lipgloss.WithWhitespaceBackground(t.Background))

	output := lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
	return lipgloss.Place(w, h, lipgloss.Left, lipgloss.Top, output,
		lipgloss.WithWhitespaceBackground(t.Background))
}

// hints returns the key hints for the status bar.
func (a App) hints() string {
	switch {
	case a.viewer != nil && a.viewer.finding:
		return "[Enter]find  [Esc]cancel"
	case a.viewer != nil:
		return "[/]find  [n/N]match  [u/a/t/e]role  [1-6]filter  [i]images  [q]close"
	case a.activeTab == tabSearch && a.search.input.Focused():
		return "[↑/↓]select  [Enter]open  [^t]deep  [Esc]leave input"
	case a.activeTab == tabBrowse && a.sessState.filtering:
		return "[Enter]apply  [Esc]cancel"
	}
	return "[?]help  [q]uit"
}

// refreshCmd reloads the catalog through the open cache.
func (a App) refreshCmd() tea.Cmd {
	return refreshDataCmd(a.res.ctx, a.roots, a.cfg.LoadOptions(), a.res.cache)
}

// loadDataCmd starts the data loading pipeline in a background goroutine.
// It streams ProgressMsg updates and a final DataLoadedMsg through sub.
// The cache, when it opens, stays open for the life of the app.
func loadDataCmd(ctx context.Context, roots []source.Root, opts pipeline.LoadOptions, useCache bool, sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			start := time.Now()

			// Non-blocking send so workers aren't stalled; the next update
			// catches up.
			progressFn := func(current, total int) {
				select {
				case sub <- ProgressMsg{Current: current, Total: total}:
				default:
				}
			}

			if useCache {
				cache, err := store.Open(pipeline.CachePath())
				if err == nil {
					cr, loadErr := pipeline.LoadWithCache(ctx, roots, opts, cache, progressFn)
					if loadErr == nil {
						sub <- DataLoadedMsg{Documents: cr.Documents, Cache: cache, LoadTime: time.Since(start)}
						return
					}
					_ = cache.Close()
					log.Warn("cached_load_failed", "err", loadErr)
				} else {
					log.Warn("cache_open_failed", "err", err)
				}
			}

			result, err := pipeline.Load(ctx, roots, opts, progressFn)
			if err != nil {
				sub <- DataLoadedMsg{LoadTime: time.Since(start), Err: err}
				return
			}
			sub <- DataLoadedMsg{Documents: result.Documents, LoadTime: time.Since(start)}
		}()

		return <-sub
	}
}

// waitForLoadMsg blocks until the next message arrives from the loader goroutine.
func waitForLoadMsg(sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

// refreshDataCmd reloads the catalog in the background without progress.
func refreshDataCmd(ctx context.Context, roots []source.Root, opts pipeline.LoadOptions, cache *store.Cache) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		if cache != nil {
			cr, err := pipeline.LoadWithCache(ctx, roots, opts, cache, nil)
			if err == nil {
				return RefreshDataMsg{Documents: cr.Documents, LoadTime: time.Since(start)}
			}
			log.Warn("cached_refresh_failed", "err", err)
		}
		result, err := pipeline.Load(ctx, roots, opts, nil)
		if err != nil {
			return RefreshDataMsg{LoadTime: time.Since(start), Err: err}
		}
		return RefreshDataMsg{Documents: result.Documents, LoadTime: time.Since(start)}
	}
}

type watchStartedMsg struct {
	w   *watch.Watcher
	err error
}

// startWatchCmd watches the log roots. Changed files have their cached
// text dropped before the app hears about them.
func startWatchCmd(res *resources, dirs []string) tea.Cmd {
	return func() tea.Msg {
		var inv watch.Invalidator
		if res.cache != nil {
			inv = res.cache
		}
		w, err := watch.New(dirs, inv, watch.DefaultDebounce)
		if err != nil {
			return watchStartedMsg{err: err}
		}
		res.watcher = w
		go func() {
			if err := w.Run(res.ctx); err != nil && res.ctx.Err() == nil {
				log.Warn("watch_stopped", "err", err)
			}
		}()
		return watchStartedMsg{w: w}
	}
}

// waitForChange blocks until the watcher reports a settled path.
func waitForChange(w *watch.Watcher) tea.Cmd {
	if w == nil {
		return nil
	}
	return func() tea.Msg {
		path, ok := <-w.Changes()
		if !ok {
			return nil
		}
		return fileChangedMsg{path: path}
	}
}

// tabAtX returns the tab index at the given X coordinate, or -1 if none.
// Hitboxes are derived from the same width rules used by RenderTabBar.
func (a App) tabAtX(x int) int {
	pos := 0
	for i, tab := range components.Tabs {
		tabW := components.TabVisualWidth(tab, i == a.activeTab)
		if x >= pos && x < pos+tabW {
			return i
		}
		pos += tabW + 1
	}
	return -1
}

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}

// fillLinesWithBackground pads each line to width w with background color,
// so gaps between cards and empty lines are filled.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")
	var result strings.Builder
	for i, line := range lines {
		result.WriteString(lipgloss.PlaceHorizontal(w, lipgloss.Left, line,
			lipgloss.WithWhitespaceBackground(bg)))
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}
