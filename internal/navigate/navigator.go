package navigate

import (
	"github.com/jazzyalex/agent-sessions/internal/model"
	"github.com/jazzyalex/agent-sessions/internal/transcript"
)

// Finder holds one query's matches over a document and a cursor over them.
// Changing the query recomputes matches and unsets the cursor.
type Finder struct {
	query   string
	matches []model.MatchOccurrence
	cursor  *Cursor
}

// NewFinder returns an empty finder.
func NewFinder() *Finder {
	return &Finder{cursor: NewCursor(nil)}
}

// Query returns the active query.
func (f *Finder) Query() string { return f.query }

// Matches returns the resolved occurrences. The slice must not be modified.
func (f *Finder) Matches() []model.MatchOccurrence { return f.matches }

// SetQuery runs query over doc. It reports whether the query changed; an
// unchanged query leaves matches and cursor alone.
func (f *Finder) SetQuery(doc *transcript.Document, query string) bool {
	if query == f.query {
		return false
	}
	f.query = query
	f.run(doc)
	return true
}

// Run recomputes matches for doc with the current query and unsets the
// cursor.
func (f *Finder) Run(doc *transcript.Document) {
	f.run(doc)
}

func (f *Finder) run(doc *transcript.Document) {
	f.matches = nil
	if doc != nil && f.query != "" {
		f.matches = Resolve(Find(doc.Text, f.query), doc.Index)
	}
	f.cursor = NewCursor(sequence(len(f.matches)))
}

// Advance steps to the next (dir > 0) or previous match, wrapping.
func (f *Finder) Advance(dir int) (model.MatchOccurrence, bool) {
	i, ok := f.cursor.Advance(dir)
	if !ok {
		return model.MatchOccurrence{}, false
	}
	return f.matches[i], true
}

// Current returns the match under the cursor.
func (f *Finder) Current() (model.MatchOccurrence, bool) {
	i, ok := f.cursor.Current()
	if !ok {
		return model.MatchOccurrence{}, false
	}
	return f.matches[i], true
}

// Position returns the 1-based match position for display, or 0 when unset.
func (f *Finder) Position() int { return f.cursor.Position() + 1 }

func sequence(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// Context selects which id sequence a navigation step walks.
type Context int

const (
	// ContextGlobal walks matches of the cross-document query.
	ContextGlobal Context = iota
	// ContextLocal walks matches of the in-document query.
	ContextLocal
	// ContextRole walks lines of one role.
	ContextRole
)

// Scope names a navigation target: a find context, or a role when Context
// is ContextRole.
type Scope struct {
	Context Context
	Role    model.Role
}

// Navigator owns the global and local finders and one cursor per role for a
// single open document. It is driven from one goroutine.
type Navigator struct {
	doc    *transcript.Document
	Global *Finder
	Local  *Finder
	roles  map[model.Role]*Cursor
}

// New returns a navigator over doc.
func New(doc *transcript.Document) *Navigator {
	n := &Navigator{
		Global: NewFinder(),
		Local:  NewFinder(),
	}
	n.Rebuild(doc)
	return n
}

// Document returns the document being navigated.
func (n *Navigator) Document() *transcript.Document { return n.doc }

// Rebuild switches to a rebuilt document. Queries are kept and re-run;
// every cursor is unset.
func (n *Navigator) Rebuild(doc *transcript.Document) {
	n.doc = doc
	n.Global.Run(doc)
	n.Local.Run(doc)
	n.roles = make(map[model.Role]*Cursor)
}

// Refresh switches to a document that extends the current one (same
// session, same role filter, more events). Role cursors keep their target
// while it still exists; find cursors are re-run.
func (n *Navigator) Refresh(doc *transcript.Document) {
	if doc == nil {
		n.Rebuild(nil)
		return
	}
	n.doc = doc
	n.Global.Run(doc)
	n.Local.Run(doc)
	for role, c := range n.roles {
		c.SetIDs(doc.RoleLines(role))
	}
}

// Find sets the query of the given find context and returns its matches.
func (n *Navigator) Find(ctx Context, query string) []model.MatchOccurrence {
	f := n.finder(ctx)
	if f == nil {
		return nil
	}
	f.SetQuery(n.doc, query)
	return f.Matches()
}

// Advance moves within scope and returns the target line id. A role that
// the document's filter hides yields no target.
func (n *Navigator) Advance(scope Scope, dir int) (int, bool) {
	if n.doc == nil {
		return 0, false
	}
	if scope.Context != ContextRole {
		f := n.finder(scope.Context)
		if f == nil {
			return 0, false
		}
		m, ok := f.Advance(dir)
		return m.LineID, ok
	}
	if !n.doc.Roles.Has(scope.Role) {
		return 0, false
	}
	return n.roleCursor(scope.Role).Advance(dir)
}

// Sync places the role cursor on lineID, so the next step continues from
// a line the user jumped to by other means.
func (n *Navigator) Sync(role model.Role, lineID int) bool {
	if n.doc == nil || !n.doc.Roles.Has(role) {
		return false
	}
	return n.roleCursor(role).MoveTo(lineID)
}

func (n *Navigator) roleCursor(role model.Role) *Cursor {
	c, ok := n.roles[role]
	if !ok {
		c = NewCursor(n.doc.RoleLines(role))
		n.roles[role] = c
	}
	return c
}

func (n *Navigator) finder(ctx Context) *Finder {
	switch ctx {
	case ContextGlobal:
		return n.Global
	case ContextLocal:
		return n.Local
	}
	return nil
}
