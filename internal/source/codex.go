package source

import (
	"encoding/json"
	"strings"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

func (b *builder) codexLine(line []byte) bool {
	var e CodexEntry
	if err := json.Unmarshal(line, &e); err != nil {
		return false
	}
	var p CodexPayload
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return false
		}
	}
	b.setTime(e.Timestamp)
	b.lineModel = b.s.Model

	switch e.Type {
	case "session_meta":
		if b.logID == "" && p.ID != "" {
			b.logID = p.ID
		}
		if p.Cwd != "" {
			b.cwd = p.Cwd
		}
		if p.Git != nil && p.Git.RepositoryURL != "" {
			b.gitRepo = p.Git.RepositoryURL
		}
		if p.Cwd != "" {
			b.add(model.RoleMeta, "cwd: "+p.Cwd, nil)
		}
	case "turn_context":
		if p.Model != "" {
			b.s.Model = p.Model
		}
		if b.cwd == "" && p.Cwd != "" {
			b.cwd = p.Cwd
		}
	case "response_item":
		b.codexResponseItem(&p)
	case "event_msg":
		if p.Type == "error" || p.Type == "stream_error" {
			b.add(model.RoleError, p.Message, nil)
		}
	}
	return true
}

func (b *builder) codexResponseItem(p *CodexPayload) {
	switch p.Type {
	case "message":
		text := contentText(p.Content)
		switch p.Role {
		case "user":
			b.add(model.RoleUser, text, nil)
		case "assistant":
			b.add(model.RoleAssistant, text, nil)
		default:
			b.add(model.RoleMeta, text, nil)
		}
	case "function_call":
		b.codexCall(p.Name, p.CallID, summarizeInput(json.RawMessage(p.Arguments)))
	case "custom_tool_call":
		b.codexCall(p.Name, p.CallID, p.Input)
	case "local_shell_call":
		cmd := ""
		if p.Action != nil {
			cmd = strings.Join(p.Action.Command, " ")
		}
		b.codexCall("shell", p.CallID, cmd)
	case "web_search_call":
		b.codexCall("web_search", p.CallID, "")
	case "function_call_output", "custom_tool_call_output":
		id := p.CallID
		b.add(model.RoleToolOutput, codexOutputText(p.Output), func(ev *model.Event) {
			ev.ToolCallID = id
		})
	case "reasoning":
		parts := make([]string, 0, len(p.Summary))
		for _, s := range p.Summary {
			if s.Text != "" {
				parts = append(parts, s.Text)
			}
		}
		if len(parts) > 0 {
			b.add(model.RoleMeta, strings.Join(parts, "\n"), nil)
		}
	}
}

func (b *builder) codexCall(name, callID, text string) {
	b.add(model.RoleToolCall, text, func(ev *model.Event) {
		ev.ToolName = name
		ev.ToolCallID = callID
	})
}

// codexOutputText unwraps function_call_output payloads, which are either a
// plain string, a JSON string holding {"output": ...}, or content blocks.
func codexOutputText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return contentText(raw)
	}
	var wrapped struct {
		Output string `json:"output"`
	}
	if strings.HasPrefix(strings.TrimSpace(s), "{") && json.Unmarshal([]byte(s), &wrapped) == nil && wrapped.Output != "" {
		return wrapped.Output
	}
	return s
}
