// Package openai adapts the OpenAI Responses API to llm.Client.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

const defaultMaxTokens = 8192

// Client talks to OpenAI models through the Responses API.
type Client struct {
	client openai.Client
	model  string
}

// New creates a client for model.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{client: openai.NewClient(opts...), model: model}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(renderTranscript(req.Messages))},
	}
	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
		params.ToolChoice = convertToolChoice(req.ToolChoice)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("openai responses: %w", err)
	}
	if resp == nil {
		return llm.Response{}, llm.ErrEmptyResponse
	}

	out := llm.Response{
		StopReason: string(resp.Status),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		call := item.AsFunctionCall()
		args := json.RawMessage(call.Arguments)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		id := call.CallID
		if id == "" {
			id = call.ID
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: id, Name: call.Name, Arguments: args})
	}
	out.Content = resp.OutputText()
	return out, nil
}

// renderTranscript flattens the conversation into the single input string
// the Responses API accepts. Tool traffic is rendered as labelled text.
func renderTranscript(messages []llm.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&sb, "System: %s\n\n", m.Content)
		case llm.RoleUser:
			fmt.Fprintf(&sb, "User: %s\n\n", m.Content)
		case llm.RoleAssistant:
			if m.Content != "" {
				fmt.Fprintf(&sb, "Assistant: %s\n\n", m.Content)
			}
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&sb, "Assistant called %s(%s)\n\n", tc.Name, string(tc.Arguments))
			}
		case llm.RoleTool:
			label := "Tool result"
			if m.IsError {
				label = "Tool error"
			}
			fmt.Fprintf(&sb, "%s (%s): %s\n\n", label, m.ToolName, m.Content)
		}
	}
	return strings.TrimSpace(sb.String())
}

func convertTools(defs []llm.ToolDefinition) []responses.ToolUnionParam {
	tools := make([]responses.ToolUnionParam, len(defs))
	for i, def := range defs {
		tools[i] = responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.Parameters.JSONSchema()),
				Strict:      openai.Bool(false),
			},
		}
	}
	return tools
}

func convertToolChoice(choice llm.ToolChoice) responses.ResponseNewParamsToolChoiceUnion {
	switch choice.Mode {
	case llm.ToolChoiceAny:
		return responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: param.NewOpt(responses.ToolChoiceOptionsRequired)}
	case llm.ToolChoiceNone:
		return responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: param.NewOpt(responses.ToolChoiceOptionsNone)}
	case llm.ToolChoiceTool:
		if choice.Name != "" {
			return responses.ResponseNewParamsToolChoiceUnion{OfFunctionTool: &responses.ToolChoiceFunctionParam{Name: choice.Name}}
		}
		return responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: param.NewOpt(responses.ToolChoiceOptionsRequired)}
	default:
		return responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: param.NewOpt(responses.ToolChoiceOptionsAuto)}
	}
}
