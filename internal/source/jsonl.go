package source

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

// Byte patterns for field extraction.
var (
	patTimestamp1 = []byte(`"timestamp":"`)
	patTimestamp2 = []byte(`"timestamp": "`)
	patCwd1       = []byte(`"cwd":"`)
	patCwd2       = []byte(`"cwd": "`)
	patToolResult = []byte(`"tool_result"`)
	patRoleUser1  = []byte(`"role":"user"`)
	patRoleUser2  = []byte(`"role": "user"`)
)

// typeKey is the byte sequence for a JSON key named "type" (with quotes).
var typeKey = []byte(`"type"`)

// extractTopLevelType finds the top-level "type" field in a JSONL line.
// Tracks brace depth and string boundaries so nested "type" keys are ignored.
// Early-exits once found, making cost O(1) vs line length for typical entries.
func extractTopLevelType(line []byte) string {
	depth := 0
	for i := 0; i < len(line); {
		switch line[i] {
		case '"':
			if depth == 1 && bytes.HasPrefix(line[i:], typeKey) {
				val, isKey := classifyType(line, i+len(typeKey))
				if isKey {
					return val
				}
			}
			i = skipJSONString(line, i)
		case '{':
			depth++
			i++
		case '}':
			depth--
			i++
		default:
			i++
		}
	}
	return ""
}

// classifyType checks whether pos follows a JSON key (expects : then value).
// isKey=false means "type" appeared as a value, not a key.
func classifyType(line []byte, pos int) (val string, isKey bool) {
	i := skipSpaces(line, pos)
	if i >= len(line) || line[i] != ':' {
		return "", false
	}
	i = skipSpaces(line, i+1)
	if i >= len(line) || line[i] != '"' {
		return "", true
	}
	i++

	end := bytes.IndexByte(line[i:], '"')
	if end < 0 || end > 40 {
		return "", true
	}
	return string(line[i : i+end]), true
}

// skipJSONString advances past a JSON string starting at the opening quote.
//
//nolint:gosec // manual bounds checking throughout
func skipJSONString(line []byte, i int) int {
	i++
	for i < len(line) {
		switch line[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		default:
			i++
		}
	}
	return i
}

func skipSpaces(line []byte, i int) int {
	for i < len(line) && line[i] == ' ' {
		i++
	}
	return i
}

// extractTimestampBytes extracts the timestamp field via byte scanning.
func extractTimestampBytes(line []byte) (time.Time, bool) {
	for _, pat := range [][]byte{patTimestamp1, patTimestamp2} {
		idx := bytes.Index(line, pat)
		if idx < 0 {
			continue
		}
		start := idx + len(pat)
		end := bytes.IndexByte(line[start:], '"')
		if end < 0 || end > 40 {
			continue
		}
		return DecodeTime(string(line[start : start+end]))
	}
	return time.Time{}, false
}

// extractCwdBytes extracts the cwd field via byte scanning.
func extractCwdBytes(line []byte) string {
	for _, pat := range [][]byte{patCwd1, patCwd2} {
		idx := bytes.Index(line, pat)
		if idx < 0 {
			continue
		}
		start := idx + len(pat)
		end := bytes.IndexByte(line[start:], '"')
		if end < 0 || end > 1024 {
			continue
		}
		return string(line[start : start+end])
	}
	return ""
}

// IsUserPromptLine reports whether a raw log line yields a user event when
// parsed. It agrees with the parser on every format so that byte-level
// scanners can count user prompts without building a session. Most lines
// are decided from the top-level type alone.
func IsUserPromptLine(line []byte) bool {
	switch extractTopLevelType(line) {
	case "user":
		if !bytes.Contains(line, patToolResult) {
			return true
		}
		var e ClaudeEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return false
		}
		return claudeHasPrompt(e.Message)
	case "response_item":
		if !bytes.Contains(line, patRoleUser1) && !bytes.Contains(line, patRoleUser2) {
			return false
		}
		var e CodexEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return false
		}
		var p CodexPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return false
		}
		return p.Type == "message" && p.Role == "user"
	case "assistant", "system", "summary", "session_meta", "turn_context", "event_msg":
		return false
	}
	if !bytes.Contains(line, patRoleUser1) && !bytes.Contains(line, patRoleUser2) {
		return false
	}
	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		return false
	}
	return classifyGeneric(obj) == model.RoleUser
}
