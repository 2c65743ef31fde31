package transcript

import (
	"github.com/jazzyalex/agent-sessions/internal/lineindex"
	"github.com/jazzyalex/agent-sessions/internal/model"
)

// Document is the rendered, indexed view of one session under one role
// filter. It is rebuilt wholesale when the session's event count or the
// active roles change and is read-only once AttachAssets has run.
type Document struct {
	SessionID string
	Path      string
	Lines     []model.Line
	Blocks    []model.Block
	Index     *lineindex.Index
	Text      string
	Roles     model.RoleSet

	opts       model.Options
	eventCount int
	roleLines  map[model.Role][]int
	eventLine  map[int]int
	eventBlock []int
	userEvents []int
	assets     map[int][]model.InlineAsset
}

// BuildLines coalesces the session's events and renders one line per event
// whose role is active. Blocks always cover every event, so hidden events
// still own a block; only lines are filtered. A nil session yields an empty
// document.
func BuildLines(s *model.Session, active model.RoleSet, opts model.Options) *Document {
	d := &Document{
		Roles:     active,
		opts:      opts,
		roleLines: make(map[model.Role][]int),
		eventLine: make(map[int]int),
		assets:    make(map[int][]model.InlineAsset),
	}
	if s == nil {
		d.Index = lineindex.Build(nil)
		return d
	}
	d.SessionID = s.ID
	d.Path = s.Path
	d.eventCount = len(s.Events)

	d.Blocks = Coalesce(s.Events, opts)
	markPreamble(d.Blocks, s.Events)

	d.eventBlock = make([]int, len(s.Events))
	for bi, b := range d.Blocks {
		for ei := b.StartEvent; ei <= b.EndEvent; ei++ {
			d.eventBlock[ei] = bi
		}
	}

	nextID := 1
	for ei, ev := range s.Events {
		if ev.Kind == model.RoleUser {
			d.userEvents = append(d.userEvents, ei)
		}
		if !active.Has(ev.Kind) {
			continue
		}
		ln := model.Line{
			ID:         nextID,
			Role:       ev.Kind,
			Text:       displayText(ev),
			BlockIndex: d.eventBlock[ei],
			EventIndex: ei,
		}
		nextID++
		d.Lines = append(d.Lines, ln)
		d.eventLine[ei] = ln.ID

		if ev.Kind == model.RoleUser && opts.SkipPreamble && d.Blocks[ln.BlockIndex].IsPreamble {
			continue
		}
		d.roleLines[ev.Kind] = append(d.roleLines[ev.Kind], ln.ID)
	}

	d.Index = lineindex.Build(d.Lines)
	d.Text = lineindex.Render(d.Lines)
	return d
}

// NeedsRebuild reports whether the document is stale for the given session
// and role filter.
func (d *Document) NeedsRebuild(s *model.Session, active model.RoleSet) bool {
	if d == nil {
		return true
	}
	n := 0
	if s != nil {
		n = len(s.Events)
		if s.ID != d.SessionID {
			return true
		}
	}
	return n != d.eventCount || !sameRoles(d.Roles, active)
}

// Line returns the line with the given id.
func (d *Document) Line(id int) (model.Line, bool) {
	if id < 1 || id > len(d.Lines) {
		return model.Line{}, false
	}
	return d.Lines[id-1], true
}

// RoleLines returns the ids of navigable lines with the given role, in
// order. Preamble prompts are left out when SkipPreamble is set. The slice
// must not be modified.
func (d *Document) RoleLines(role model.Role) []int {
	return d.roleLines[role]
}

// FirstPrompt returns the line of the first user prompt, skipping the
// preamble when configured to.
func (d *Document) FirstPrompt() (int, bool) {
	ids := d.roleLines[model.RoleUser]
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// LineForEvent returns the line rendering an event, if it is visible.
func (d *Document) LineForEvent(eventIndex int) (int, bool) {
	id, ok := d.eventLine[eventIndex]
	return id, ok
}

// BlockForLine returns the block a line belongs to.
func (d *Document) BlockForLine(id int) (model.Block, bool) {
	ln, ok := d.Line(id)
	if !ok || ln.BlockIndex < 0 || ln.BlockIndex >= len(d.Blocks) {
		return model.Block{}, false
	}
	return d.Blocks[ln.BlockIndex], true
}

// AttachAssets merges located inline assets into the document, keyed by the
// block holding the associated user prompt. Assets for another session or
// with an ordinal past the parsed prompts are ignored.
func (d *Document) AttachAssets(assets []model.InlineAsset) {
	for _, a := range assets {
		if d.SessionID != "" && a.SessionID != "" && a.SessionID != d.SessionID {
			continue
		}
		if a.PromptOrdinal < 0 || a.PromptOrdinal >= len(d.userEvents) {
			continue
		}
		bi := d.eventBlock[d.userEvents[a.PromptOrdinal]]
		d.assets[bi] = append(d.assets[bi], a)
	}
}

// AssetsForLine returns inline assets attached to the line's block. Only
// the first line of a block reports them so consumers render each once.
func (d *Document) AssetsForLine(id int) []model.InlineAsset {
	ln, ok := d.Line(id)
	if !ok {
		return nil
	}
	list := d.assets[ln.BlockIndex]
	if len(list) == 0 {
		return nil
	}
	if first, ok := d.firstLineOfBlock(ln.BlockIndex); !ok || first != id {
		return nil
	}
	return list
}

// AssetCount returns the number of attached assets.
func (d *Document) AssetCount() int {
	n := 0
	for _, list := range d.assets {
		n += len(list)
	}
	return n
}

func (d *Document) firstLineOfBlock(bi int) (int, bool) {
	b := d.Blocks[bi]
	for ei := b.StartEvent; ei <= b.EndEvent; ei++ {
		if id, ok := d.eventLine[ei]; ok {
			return id, true
		}
	}
	return 0, false
}

func displayText(ev model.Event) string {
	if ev.Text != "" {
		return ev.Text
	}
	if ev.Kind == model.RoleToolCall && ev.ToolName != "" {
		return ev.ToolName
	}
	return ""
}

func sameRoles(a, b model.RoleSet) bool {
	for _, r := range model.AllRoles {
		if a.Has(r) != b.Has(r) {
			return false
		}
	}
	return true
}
