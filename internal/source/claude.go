package source

import (
	"encoding/json"
	"strings"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

// claudeHasPrompt reports whether a user entry carries something the user
// sent (text, image, plain string content) rather than only tool results.
// Entries without a message envelope count as prompts.
func claudeHasPrompt(msg *ClaudeMessage) bool {
	if msg == nil || len(msg.Content) == 0 {
		return true
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return true
	}
	if len(blocks) == 0 {
		return true
	}
	for _, bl := range blocks {
		if bl.Type != "tool_result" {
			return true
		}
	}
	return false
}

func (b *builder) claudeLine(line []byte) bool {
	var e ClaudeEntry
	if err := json.Unmarshal(line, &e); err != nil {
		return false
	}
	b.setTime(e.Timestamp)
	b.lineID = e.UUID
	if b.logID == "" && e.SessionID != "" {
		b.logID = e.SessionID
	}
	if b.cwd == "" && e.Cwd != "" {
		b.cwd = e.Cwd
	}
	if e.Message != nil && e.Message.Model != "" && e.Message.Model != "<synthetic>" {
		b.lineModel = e.Message.Model
	}

	switch e.Type {
	case "user":
		b.claudeUser(&e)
	case "assistant":
		b.claudeAssistant(&e)
	case "system":
		text := e.Content
		if text == "" {
			text = e.Subtype
		}
		kind := model.RoleMeta
		if strings.Contains(strings.ToLower(e.Subtype), "error") {
			kind = model.RoleError
		}
		b.add(kind, text, nil)
	case "summary":
		b.add(model.RoleMeta, e.Summary, nil)
	}
	return true
}

func (b *builder) claudeUser(e *ClaudeEntry) {
	if claudeHasPrompt(e.Message) {
		text := e.Content
		if e.Message != nil {
			text = contentText(e.Message.Content)
		}
		b.add(model.RoleUser, text, nil)
	}
	if e.Message == nil {
		return
	}
	var blocks []ContentBlock
	if json.Unmarshal(e.Message.Content, &blocks) != nil {
		return
	}
	for _, bl := range blocks {
		if bl.Type != "tool_result" {
			continue
		}
		id := bl.ToolUseID
		b.add(model.RoleToolOutput, contentText(bl.Content), func(ev *model.Event) {
			ev.ToolCallID = id
		})
	}
}

func (b *builder) claudeAssistant(e *ClaudeEntry) {
	if e.IsAPIError {
		text := ""
		if e.Message != nil {
			text = contentText(e.Message.Content)
		}
		b.add(model.RoleError, text, nil)
		return
	}
	if e.Message == nil {
		return
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(e.Message.Content, &blocks); err != nil {
		if text := contentText(e.Message.Content); text != "" {
			b.add(model.RoleAssistant, text, nil)
		}
		return
	}
	for _, bl := range blocks {
		switch bl.Type {
		case "text":
			b.add(model.RoleAssistant, bl.Text, nil)
		case "thinking":
			if bl.Thinking != "" {
				b.add(model.RoleMeta, bl.Thinking, nil)
			}
		case "tool_use", "server_tool_use":
			name, id, input := bl.Name, bl.ID, summarizeInput(bl.Input)
			b.add(model.RoleToolCall, input, func(ev *model.Event) {
				ev.ToolName = name
				ev.ToolCallID = id
			})
		}
	}
}
