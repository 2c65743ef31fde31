package transcript

import (
	"strings"

	"github.com/jazzyalex/agent-sessions/internal/model"
)

// preamblePrefixes are openings agents inject as "user" messages before the
// first real prompt: Codex environment/instructions context, Claude local
// command transcripts and continuation summaries.
var preamblePrefixes = []string{
	"<environment_context>",
	"<user_instructions>",
	"<INSTRUCTIONS>",
	"<permissions instructions>",
	"# AGENTS.md instructions",
	"<system-reminder>",
	"<command-name>",
	"<command-message>",
	"<local-command-stdout>",
	"Caveat: The messages below were generated by the user while running local commands",
	"This session is being continued from a previous conversation",
}

// IsPreambleText reports whether a user message looks like agent-injected
// context rather than something the user typed.
func IsPreambleText(text string) bool {
	s := strings.TrimSpace(text)
	if s == "" {
		return false
	}
	for _, p := range preamblePrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// markPreamble flags the first leading user block that looks like a
// preamble. Only user blocks before the first ordinary prompt qualify.
func markPreamble(blocks []model.Block, events []model.Event) {
	for i := range blocks {
		b := &blocks[i]
		if b.Kind != model.RoleUser {
			continue
		}
		if IsPreambleText(events[b.StartEvent].Text) {
			b.IsPreamble = true
		}
		return
	}
}
