package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

// NotesSeparator joins findings handed to the report call.
const NotesSeparator = "\n\n"

// Compiler writes the final report from accumulated notes.
type Compiler struct {
	client  llm.Client
	prompts *Prompts
	logger  *zap.Logger
	now     func() time.Time
}

// NewCompiler creates a report compiler.
func NewCompiler(client llm.Client, prompts *Prompts, logger *zap.Logger) *Compiler {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{client: client, prompts: prompts, logger: logger, now: time.Now}
}

// JoinFindings selects notes, falling back to raw notes when none exist.
func JoinFindings(notes, rawNotes []string) string {
	src := notes
	if len(src) == 0 {
		src = rawNotes
	}
	return strings.Join(src, NotesSeparator)
}

// Compile makes exactly one synthesis call. Any failure is returned wrapped
// in ErrCompilation.
func (c *Compiler) Compile(ctx context.Context, brief *Brief, notes, rawNotes []string) (string, error) {
	briefText := "Research task"
	if brief != nil && brief.Text != "" {
		briefText = brief.Text
	}
	prompt, err := c.prompts.Render("report", map[string]any{
		"Brief":    briefText,
		"Date":     Today(c.now()),
		"Findings": JoinFindings(notes, rawNotes),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompilation, err)
	}

	resp, err := c.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{llm.User(prompt)},
		Purpose:  "report",
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompilation, err)
	}
	report := strings.TrimSpace(resp.Content)
	if report == "" {
		return "", fmt.Errorf("%w: %w", ErrCompilation, llm.ErrEmptyResponse)
	}
	c.logger.Info("Report compiled", zap.Int("chars", len(report)), zap.Int("notes", len(notes)))
	return report, nil
}
