package research

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

var briefTool = llm.ToolDefinition{
	Name:        "ResearchBrief",
	Description: "Research brief that will guide the research.",
	Parameters: llm.Schema{
		Properties: map[string]llm.Property{
			"research_brief": {Type: "string", Description: "A research question that will be used to guide the research."},
			"key_areas": {
				Type:        "array",
				Description: "Main topics or areas that must be covered.",
				Items:       &llm.Property{Type: "string"},
			},
			"research_depth": {
				Type:        "string",
				Description: "How deep the research should go.",
				Enum:        []string{string(DepthShallow), string(DepthModerate), string(DepthDeep)},
			},
		},
		Required: []string{"research_brief", "key_areas", "research_depth"},
	},
}

type briefPayload struct {
	ResearchBrief string   `json:"research_brief"`
	KeyAreas      []string `json:"key_areas"`
	ResearchDepth string   `json:"research_depth"`
}

// BriefSynthesizer turns a clarified conversation into a Brief.
type BriefSynthesizer struct {
	client  llm.Client
	prompts *Prompts
	logger  *zap.Logger
	now     func() time.Time
}

// NewBriefSynthesizer creates a synthesizer.
func NewBriefSynthesizer(client llm.Client, prompts *Prompts, logger *zap.Logger) *BriefSynthesizer {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BriefSynthesizer{client: client, prompts: prompts, logger: logger, now: time.Now}
}

// Synthesize makes one structured call and validates the result.
func (b *BriefSynthesizer) Synthesize(ctx context.Context, messages []llm.Message) (*Brief, error) {
	prompt, err := b.prompts.Render("brief", map[string]any{
		"Messages": FormatHistory(messages),
		"Date":     Today(b.now()),
	})
	if err != nil {
		return nil, err
	}

	payload, err := llm.Structured[briefPayload](ctx, b.client, llm.Request{
		Messages: []llm.Message{llm.User(prompt)},
		Purpose:  "brief",
	}, briefTool)
	if err != nil {
		return nil, fmt.Errorf("brief call: %w", err)
	}

	brief, err := NewBrief(payload.ResearchBrief, payload.KeyAreas, payload.ResearchDepth)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Research brief synthesized",
		zap.String("depth", string(brief.Depth)),
		zap.Int("key_areas", len(brief.KeyAreas)),
	)
	return brief, nil
}
