package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Structured forces the model to call tool exactly once and decodes the
// call's arguments into T.
func Structured[T any](ctx context.Context, c Client, req Request, tool ToolDefinition) (T, error) {
	var out T
	req.Tools = []ToolDefinition{tool}
	req.ToolChoice = ToolChoice{Mode: ToolChoiceTool, Name: tool.Name}

	resp, err := c.Complete(ctx, req)
	if err != nil {
		return out, err
	}
	for _, call := range resp.ToolCalls {
		if call.Name != tool.Name {
			continue
		}
		if err := json.Unmarshal(call.Arguments, &out); err != nil {
			return out, fmt.Errorf("decode %s arguments: %w", tool.Name, err)
		}
		return out, nil
	}
	return out, fmt.Errorf("%w: %s", ErrNoToolCall, tool.Name)
}
