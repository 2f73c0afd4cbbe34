package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

// Decision is the structured verdict of the clarification gate.
type Decision struct {
	NeedClarification bool   `json:"need_clarification"`
	Question          string `json:"question"`
	Verification      string `json:"verification"`
}

var clarifyTool = llm.ToolDefinition{
	Name:        "ClarifyWithUser",
	Description: "Decide whether the user must answer a clarifying question before research starts.",
	Parameters: llm.Schema{
		Properties: map[string]llm.Property{
			"need_clarification": {Type: "boolean", Description: "Whether the user needs to be asked a clarifying question."},
			"question":           {Type: "string", Description: "A question to ask the user to clarify the report scope."},
			"verification":       {Type: "string", Description: "Verify message that we will start research after the user has provided the necessary information."},
		},
		Required: []string{"need_clarification", "question", "verification"},
	},
}

// Gate decides whether more user input is needed before research starts.
type Gate struct {
	client  llm.Client
	prompts *Prompts
	logger  *zap.Logger
	now     func() time.Time
}

// NewGate creates a clarification gate.
func NewGate(client llm.Client, prompts *Prompts, logger *zap.Logger) *Gate {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{client: client, prompts: prompts, logger: logger, now: time.Now}
}

// Evaluate makes one structured call over the full history.
func (g *Gate) Evaluate(ctx context.Context, messages []llm.Message) (Decision, error) {
	prompt, err := g.prompts.Render("clarify", map[string]any{
		"Messages": FormatHistory(messages),
		"Date":     Today(g.now()),
	})
	if err != nil {
		return Decision{}, err
	}

	d, err := llm.Structured[Decision](ctx, g.client, llm.Request{
		Messages: []llm.Message{llm.User(prompt)},
		Purpose:  "clarify",
	}, clarifyTool)
	if err != nil {
		return Decision{}, fmt.Errorf("clarification call: %w", err)
	}

	d.Question = strings.TrimSpace(d.Question)
	if d.NeedClarification && d.Question == "" {
		g.logger.Warn("Clarification requested without a question; proceeding")
		d.NeedClarification = false
	}
	return d, nil
}
