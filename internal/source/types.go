package source

import (
	"encoding/json"
	"time"
)

// Format identifies the log layout of a session file.
type Format string

const (
	FormatClaude  Format = "claude"
	FormatCodex   Format = "codex"
	FormatGeneric Format = "generic"
)

// ClaudeEntry is one line of a Claude Code JSONL session file.
type ClaudeEntry struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype,omitempty"`
	UUID       string          `json:"uuid,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
	Cwd        string          `json:"cwd,omitempty"`
	Content    string          `json:"content,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	IsAPIError bool            `json:"isApiErrorMessage,omitempty"`
	Message    *ClaudeMessage  `json:"message,omitempty"`
	ToolResult json.RawMessage `json:"toolUseResult,omitempty"`
}

// ClaudeMessage is the message envelope of user and assistant entries.
// Content is either a plain string or a list of ContentBlock.
type ClaudeMessage struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role"`
	Model   string          `json:"model,omitempty"`
	Content json.RawMessage `json:"content"`
}

// ContentBlock is one element of a message content list.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// CodexEntry is one line of a Codex rollout file.
type CodexEntry struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// CodexPayload covers the payload variants the parser reads: session_meta,
// turn_context, response_item and event_msg.
type CodexPayload struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Cwd       string          `json:"cwd,omitempty"`
	Model     string          `json:"model,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Input     string          `json:"input,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Message   string          `json:"message,omitempty"`
	Summary   []ContentBlock  `json:"summary,omitempty"`
	Action    *CodexAction    `json:"action,omitempty"`
	Git       *CodexGit       `json:"git,omitempty"`
}

// CodexAction is the action of a local_shell_call.
type CodexAction struct {
	Type    string   `json:"type"`
	Command []string `json:"command,omitempty"`
}

// CodexGit is the repository info recorded in session_meta.
type CodexGit struct {
	RepositoryURL string `json:"repository_url,omitempty"`
	Branch        string `json:"branch,omitempty"`
}

// DiscoveredFile represents a JSONL file found during directory scanning.
type DiscoveredFile struct {
	Path       string
	Source     string // source name, e.g. "claude"
	Format     Format
	Repo       string // decoded display name (e.g., "gitlore")
	ProjectDir string // raw directory name, when the layout encodes one
	SessionID  string // extracted from filename
	ModTime    time.Time
	SizeBytes  int64
	IsSubagent bool
}
