package research

import (
	"strings"
	"time"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

// FormatHistory renders a conversation as a plain transcript with one
// "Human:" or "AI:" line per message.
func FormatHistory(messages []llm.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		var prefix string
		switch m.Role {
		case llm.RoleUser:
			prefix = "Human"
		case llm.RoleAssistant:
			prefix = "AI"
		case llm.RoleSystem:
			prefix = "System"
		case llm.RoleTool:
			prefix = "Tool"
		}
		lines = append(lines, prefix+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// Today formats t the way prompts expect, e.g. "Mon Jan 2, 2006".
func Today(t time.Time) string {
	return t.Format("Mon Jan 2, 2006")
}
