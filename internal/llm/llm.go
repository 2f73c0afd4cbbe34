// Package llm defines the generation capability consumed by the research
// engine. Provider adapters live in subpackages.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// ToolCall is one action requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Property describes one field of a tool's input schema.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// Schema is the object schema for a tool's input.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// JSONSchema renders the schema as a JSON schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = p.jsonSchema()
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

func (p Property) jsonSchema() map[string]any {
	out := map[string]any{"type": p.Type}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		out["enum"] = p.Enum
	}
	if p.Items != nil {
		out["items"] = p.Items.jsonSchema()
	}
	return out
}

// ToolDefinition binds a named action the model may request.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// ToolChoiceMode controls whether the model must call a tool.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceTool ToolChoiceMode = "tool"
	// ToolChoiceNone keeps tools bound (required when the history holds
	// tool traffic) but forbids new calls.
	ToolChoiceNone ToolChoiceMode = "none"
)

// ToolChoice selects tool forcing. Name is used with ToolChoiceTool.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// Request is a single generation call.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  ToolChoice
	MaxTokens   int
	Temperature float64
	// Purpose labels the call for metrics and tracing (e.g. "supervisor").
	Purpose string
}

// Usage reports token consumption of one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the result of a generation call.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}

// Client is a generation capability. Implementations must be safe for
// concurrent use.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Model() string
}

var (
	// ErrEmptyResponse is returned when a provider answers with no content.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrNoToolCall is returned by Structured when the forced tool was not called.
	ErrNoToolCall = errors.New("llm: expected tool call missing")
)

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ToolResult builds the observation message answering call.
func ToolResult(call ToolCall, content string, isError bool) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		IsError:    isError,
	}
}
