// Package transcript turns a session's events into blocks and rendered lines.
package transcript

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

// Coalesce groups events into contiguous blocks. Blocks partition the event
// sequence completely; the same events always yield the same boundaries.
//
// A block ends when the semantic role changes (tool calls and their outputs
// share one role), when a tool event's group key differs from the open tool
// block, or at the boundary between preamble-looking and ordinary user
// events. Meta events interleaved between a tool call and its output are
// absorbed into the tool block.
func Coalesce(events []model.Event, opts model.Options) []model.Block {
	if len(events) == 0 {
		return nil
	}

	var (
		blocks      []model.Block
		explicit    bool // open tool block keyed by a call id, not a tool name
		lastToolKey string
	)

	for i, ev := range events {
		if n := len(blocks); n > 0 {
			cur := &blocks[n-1]
			if extendsBlock(events, i, cur, explicit, opts) {
				cur.EndEvent = i
				continue
			}
		}

		b := model.Block{StartEvent: i, EndEvent: i, Kind: ev.Kind}
		switch ev.Kind {
		case model.RoleToolCall:
			b.GroupKey, explicit = callKey(ev, i)
			lastToolKey = b.GroupKey
		case model.RoleToolOutput:
			switch {
			case ev.ToolCallID != "":
				b.GroupKey, explicit = ev.ToolCallID, true
			case lastToolKey != "":
				b.GroupKey, explicit = lastToolKey, false
			default:
				b.GroupKey, explicit = syntheticKey(i), false
			}
			lastToolKey = b.GroupKey
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func extendsBlock(events []model.Event, i int, cur *model.Block, explicit bool, opts model.Options) bool {
	ev := events[i]
	switch {
	case ev.Kind == model.RoleMeta && cur.Kind.IsTool():
		return continuesToolGroup(events, i, cur.GroupKey, explicit, opts)
	case ev.Kind == model.RoleToolOutput && cur.Kind.IsTool():
		return outputJoins(ev, cur.GroupKey, explicit)
	case ev.Kind == model.RoleToolCall && cur.Kind.IsTool():
		key, _ := callKey(ev, i)
		return opts.DedupeToolGroups && key == cur.GroupKey
	case ev.Kind.IsTool() || cur.Kind.IsTool():
		return false
	case ev.Kind != cur.Kind:
		return false
	case ev.Kind == model.RoleUser:
		prev := events[cur.EndEvent]
		return IsPreambleText(prev.Text) == IsPreambleText(ev.Text)
	default:
		return true
	}
}

// continuesToolGroup looks past a run of meta events starting at i and
// reports whether the next real event belongs to the open tool group.
func continuesToolGroup(events []model.Event, i int, key string, explicit bool, opts model.Options) bool {
	j := i
	for j < len(events) && events[j].Kind == model.RoleMeta {
		j++
	}
	if j == len(events) {
		return false
	}
	next := events[j]
	switch next.Kind {
	case model.RoleToolOutput:
		return outputJoins(next, key, explicit)
	case model.RoleToolCall:
		k, _ := callKey(next, j)
		return opts.DedupeToolGroups && k == key
	}
	return false
}

// outputJoins decides whether a tool output continues the open tool block.
// A keyless output inherits the open key; an output carrying a call id
// joins a block keyed by the same id, or one keyed only by tool name.
func outputJoins(ev model.Event, key string, explicit bool) bool {
	if ev.ToolCallID == "" {
		return true
	}
	return ev.ToolCallID == key || !explicit
}

func callKey(ev model.Event, i int) (string, bool) {
	if ev.ToolCallID != "" {
		return ev.ToolCallID, true
	}
	if name := NormalizeToolName(ev.ToolName); name != "" {
		return name, false
	}
	return syntheticKey(i), false
}

func syntheticKey(i int) string {
	return "synthetic-" + strconv.Itoa(i)
}

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	nonToken      = regexp.MustCompile(`[^a-z0-9_]+`)
	underscoreRun = regexp.MustCompile(`_+`)
)

// NormalizeToolName folds tool names from different agents onto one token:
// "ReadFile", "read-file" and "read.file" all become "read_file".
func NormalizeToolName(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	s = camelBoundary.ReplaceAllString(s, "${1}_${2}")
	s = strings.NewReplacer("-", "_", " ", "_", ".", "_", "/", "_").Replace(s)
	s = strings.ToLower(s)
	s = nonToken.ReplaceAllString(s, "")
	s = underscoreRun.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
