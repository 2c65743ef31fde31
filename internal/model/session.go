// Package model defines domain types for agent session search and navigation.
package model

import "time"

// Role is the semantic category of an event, block or line.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolCall   Role = "tool_call"
	RoleToolOutput Role = "tool_output"
	RoleError      Role = "error"
	RoleMeta       Role = "meta"
)

// AllRoles lists every role in display order.
var AllRoles = []Role{RoleUser, RoleAssistant, RoleToolCall, RoleToolOutput, RoleError, RoleMeta}

// IsTool reports whether the role belongs to a tool call/output group.
func (r Role) IsTool() bool {
	return r == RoleToolCall || r == RoleToolOutput
}

// ParseRole maps loose spellings ("tool-call", "tool", "output") onto a Role.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "user", "prompt", "prompts":
		return RoleUser, true
	case "assistant", "assistants":
		return RoleAssistant, true
	case "tool_call", "tool-call", "tool", "tools", "call", "calls":
		return RoleToolCall, true
	case "tool_output", "tool-output", "output", "outputs":
		return RoleToolOutput, true
	case "error", "errors":
		return RoleError, true
	case "meta", "system":
		return RoleMeta, true
	}
	return "", false
}

// RoleSet is an immutable-by-convention set of roles. A nil set means all roles.
type RoleSet map[Role]bool

// NewRoleSet builds a set from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = true
	}
	return s
}

// Has reports whether r is in the set. A nil or empty set contains every role.
func (s RoleSet) Has(r Role) bool {
	if len(s) == 0 {
		return true
	}
	return s[r]
}

// Event is one normalized record from an agent log. Events are owned by
// their Session and never mutated after parsing.
type Event struct {
	ID         string
	Kind       Role
	Text       string
	Raw        string
	ToolName   string
	ToolCallID string
	Model      string
	Timestamp  time.Time

	// RawOffset is the byte offset of the event's source line in the log file.
	RawOffset int64
}

// Session is a fully parsed agent log.
type Session struct {
	ID         string
	Source     string
	Path       string
	Repo       string
	Model      string
	Events     []Event
	StartTime  time.Time
	ModifiedAt time.Time
	SizeBytes  int64
}

// UserEventCount returns the number of user events in the session.
func (s *Session) UserEventCount() int {
	n := 0
	for _, e := range s.Events {
		if e.Kind == RoleUser {
			n++
		}
	}
	return n
}

// HasKind reports whether any event has one of the given kinds.
func (s *Session) HasKind(kinds RoleSet) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, e := range s.Events {
		if kinds[e.Kind] {
			return true
		}
	}
	return false
}

// Document is a catalog entry handed to the search coordinator. Session is
// nil for lightweight entries whose events have not been loaded.
type Document struct {
	ID         string
	Source     string
	Path       string
	Repo       string
	Model      string
	StartTime  time.Time
	ModifiedAt time.Time
	SizeBytes  int64

	// Prompts is the number of user events, when known.
	Prompts int

	// Indexed is true when the catalog expects extracted text to be cached.
	Indexed bool

	Session *Session
}

// Time returns the best timestamp for date-range filtering.
func (d Document) Time() time.Time {
	if !d.StartTime.IsZero() {
		return d.StartTime
	}
	return d.ModifiedAt
}
