package source

import (
	"encoding/json"
	"strings"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

var (
	toolCallTypes   = map[string]bool{"tool_call": true, "tool-call": true, "toolcall": true, "tool_use": true, "tool-use": true, "function_call": true}
	toolResultTypes = map[string]bool{"tool_result": true, "tool-result": true, "toolresult": true, "function_result": true, "function_call_output": true, "tool_output": true}
	metaTypes       = map[string]bool{"meta": true, "system": true, "environment_context": true, "environment-context": true, "env_context": true}
)

// classifyGeneric maps a loosely structured log record onto a role: the
// record's type (or event) field wins, then its role, then meta.
func classifyGeneric(obj map[string]any) model.Role {
	payload := asMap(obj["payload"])

	typ, _ := obj["type"].(string)
	if typ == "" {
		typ, _ = obj["event"].(string)
	}
	if typ == "" && payload != nil {
		typ, _ = payload["type"].(string)
	}
	t := strings.ToLower(typ)
	switch {
	case toolCallTypes[t]:
		return model.RoleToolCall
	case toolResultTypes[t]:
		return model.RoleToolOutput
	case t == "error" || t == "err":
		return model.RoleError
	case metaTypes[t]:
		return model.RoleMeta
	case t == "user":
		return model.RoleUser
	case t == "assistant":
		return model.RoleAssistant
	}

	role, _ := obj["role"].(string)
	if role == "" && payload != nil {
		role, _ = payload["role"].(string)
	}
	switch strings.ToLower(role) {
	case "user":
		return model.RoleUser
	case "assistant", "model":
		return model.RoleAssistant
	case "tool":
		return model.RoleToolOutput
	}
	return model.RoleMeta
}

func (b *builder) genericLine(line []byte) bool {
	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		return false
	}
	if t, ok := timestampOf(obj); ok {
		b.lineTime = t
	}
	if id, ok := obj["session_id"].(string); ok && b.logID == "" {
		b.logID = id
	}
	if cwd, ok := obj["cwd"].(string); ok && b.cwd == "" {
		b.cwd = cwd
	}
	if m, ok := obj["model"].(string); ok {
		b.lineModel = m
	}

	kind := classifyGeneric(obj)
	text := genericText(obj)
	name := firstString(obj, "name", "tool", "tool_name")
	callID := firstString(obj, "call_id", "tool_call_id", "tool_use_id")
	b.add(kind, text, func(ev *model.Event) {
		ev.ToolName = name
		ev.ToolCallID = callID
		if text == "" {
			ev.Raw = truncateRaw(line)
		}
	})
	return true
}

func genericText(obj map[string]any) string {
	for _, m := range []map[string]any{obj, asMap(obj["payload"]), asMap(obj["message"])} {
		if m == nil {
			continue
		}
		for _, k := range []string{"text", "content", "message", "output", "input", "arguments"} {
			switch v := m[k].(type) {
			case string:
				if v != "" {
					return v
				}
			case []any:
				var parts []string
				for _, item := range v {
					if s := firstString(asMap(item), "text"); s != "" {
						parts = append(parts, s)
					}
				}
				if len(parts) > 0 {
					return strings.Join(parts, "\n")
				}
			}
		}
	}
	return ""
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func truncateRaw(line []byte) string {
	const limit = 512
	if len(line) > limit {
		return string(line[:limit])
	}
	return string(line)
}
