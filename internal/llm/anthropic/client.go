// Package anthropic adapts the Anthropic Messages API to llm.Client.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

const defaultMaxTokens = 8192

// Client talks to Claude models.
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// New creates a client for model. Extra request options (base URL, HTTP
// client) are passed through to the SDK.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: defaultMaxTokens,
	}
}

func (c *Client) Model() string { return string(c.model) }

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	system, messages := convertMessages(req)
	if len(messages) == 0 {
		return llm.Response{}, fmt.Errorf("anthropic: request has no messages")
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
		params.ToolChoice = convertToolChoice(req.ToolChoice)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("anthropic messages: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.Response{}, llm.ErrEmptyResponse
	}

	out := llm.Response{
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			use := block.AsToolUse()
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        use.ID,
				Name:      use.Name,
				Arguments: json.RawMessage(use.Input),
			})
		}
	}
	out.Content = text.String()
	return out, nil
}

// convertMessages folds system messages into the system prompt and merges
// consecutive user-side entries (tool results, user text) so roles alternate.
func convertMessages(req llm.Request) (string, []anthropic.MessageParam) {
	systemParts := []string{}
	if req.System != "" {
		systemParts = append(systemParts, req.System)
	}

	var out []anthropic.MessageParam
	appendBlocks := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, m.Content)
		case llm.RoleUser:
			if m.Content != "" {
				appendBlocks(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(m.Content))
			}
		case llm.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			appendBlocks(anthropic.MessageParamRoleAssistant, blocks...)
		case llm.RoleTool:
			appendBlocks(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError))
		}
	}
	return strings.Join(systemParts, "\n\n"), out
}

func convertTools(defs []llm.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := def.Parameters.JSONSchema()
		tool := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: schema["properties"],
			Required:   def.Parameters.Required,
		}, def.Name)
		if def.Description != "" && tool.OfTool != nil {
			tool.OfTool.Description = anthropic.String(def.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

func convertToolChoice(choice llm.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice.Mode {
	case llm.ToolChoiceAny:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case llm.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case llm.ToolChoiceTool:
		if choice.Name != "" {
			return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}
		}
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}
