// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

// HandlerFunc answers one request.
type HandlerFunc func(ctx context.Context, req llm.Request) (llm.Response, error)

// Client records every request and delegates to a handler.
type Client struct {
	mu      sync.Mutex
	handler HandlerFunc
	calls   []llm.Request
}

// New creates a client backed by h.
func New(h HandlerFunc) *Client {
	return &Client{handler: h}
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return llm.Response{}, fmt.Errorf("llmtest: no handler for %q", req.Purpose)
	}
	return h(ctx, req)
}

func (c *Client) Model() string { return "llmtest" }

// Calls returns a copy of the recorded requests.
func (c *Client) Calls() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallsFor counts recorded requests with the given purpose.
func (c *Client) CallsFor(purpose string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.calls {
		if r.Purpose == purpose {
			n++
		}
	}
	return n
}

// Step is one scripted reply.
type Step struct {
	Response llm.Response
	Err      error
}

// Sequence replies with steps in order and repeats the last one once the
// script is exhausted.
func Sequence(steps ...Step) HandlerFunc {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, req llm.Request) (llm.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(steps) == 0 {
			return llm.Response{}, fmt.Errorf("llmtest: empty script")
		}
		s := steps[i]
		if i < len(steps)-1 {
			i++
		}
		return s.Response, s.Err
	}
}

// Router dispatches by request purpose.
func Router(routes map[string]HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req llm.Request) (llm.Response, error) {
		h, ok := routes[req.Purpose]
		if !ok {
			return llm.Response{}, fmt.Errorf("llmtest: no route for %q", req.Purpose)
		}
		return h(ctx, req)
	}
}

// Reply wraps a response as a Step.
func Reply(resp llm.Response) Step { return Step{Response: resp} }

// Fail wraps an error as a Step.
func Fail(err error) Step { return Step{Err: err} }

// Text is a plain text response.
func Text(content string) llm.Response {
	return llm.Response{Content: content, StopReason: "end_turn"}
}

// Call builds a tool call with JSON-encoded args.
func Call(id, name string, args any) llm.ToolCall {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return llm.ToolCall{ID: id, Name: name, Arguments: raw}
}

// Tools is a response requesting the given calls.
func Tools(calls ...llm.ToolCall) llm.Response {
	return llm.Response{ToolCalls: calls, StopReason: "tool_use"}
}
