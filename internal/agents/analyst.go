package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/metrics"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/tools"
)

// ToolExecutePython is the analyst's only tool.
const ToolExecutePython = "execute_python"

var executePythonTool = llm.ToolDefinition{
	Name:        ToolExecutePython,
	Description: "Execute Python code in a sandbox and return stdout, stderr and any error. Print results you want to see.",
	Parameters: llm.Schema{
		Properties: map[string]llm.Property{
			"code": {Type: "string", Description: "Python source to execute"},
		},
		Required: []string{"code"},
	},
}

// Analyst answers data tasks by iterating on sandboxed Python.
type Analyst struct {
	name    string
	client  llm.Client
	sandbox tools.Sandbox
	prompts *research.Prompts
	cfg     Config
	emitter research.Emitter
	session string
	logger  *zap.Logger
	now     func() time.Time
}

func (a *Analyst) Name() string { return a.name }

// Analyze loops until the model stops calling tools and returns its final
// text. When the round cap is hit the model gets one last turn with tools
// disabled.
func (a *Analyst) Analyze(ctx context.Context, task string) (string, error) {
	system, err := a.prompts.Render("analyst", map[string]any{"Date": research.Today(a.now())})
	if err != nil {
		return "", err
	}
	defs := []llm.ToolDefinition{executePythonTool}
	messages := []llm.Message{llm.User(task)}

	for round := 0; ; round++ {
		choice := llm.ToolChoice{Mode: llm.ToolChoiceAuto}
		if round >= a.cfg.AnalystMaxRounds {
			choice.Mode = llm.ToolChoiceNone
		}
		resp, err := a.client.Complete(ctx, llm.Request{
			System:     system,
			Messages:   messages,
			Tools:      defs,
			ToolChoice: choice,
			Purpose:    "analyst",
		})
		if err != nil {
			metrics.WorkerRounds.WithLabelValues(RoleAnalyst).Observe(float64(round))
			return "", fmt.Errorf("analyst round %d: %w", round+1, err)
		}
		if len(resp.ToolCalls) == 0 || choice.Mode == llm.ToolChoiceNone {
			metrics.WorkerRounds.WithLabelValues(RoleAnalyst).Observe(float64(round + 1))
			return resp.Content, nil
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			obs, failed := a.execute(ctx, call)
			messages = append(messages, llm.ToolResult(call, obs, failed))
		}
	}
}

func (a *Analyst) execute(ctx context.Context, call llm.ToolCall) (string, bool) {
	if call.Name != ToolExecutePython {
		metrics.ToolInvocations.WithLabelValues(call.Name, "error").Inc()
		return fmt.Sprintf("Tool error: unknown tool %q", call.Name), true
	}
	if a.sandbox == nil {
		metrics.ToolInvocations.WithLabelValues(call.Name, "error").Inc()
		return "Tool error: no sandbox configured", true
	}
	var args struct {
		Code string `json:"code"`
	}
	if err := decode(call, &args); err != nil {
		metrics.ToolInvocations.WithLabelValues(call.Name, "error").Inc()
		return fmt.Sprintf("Tool error: %v", err), true
	}
	if a.emitter != nil {
		a.emitter.Emit(ctx, research.Event{
			SessionID: a.session,
			Type:      research.EventStatus,
			AgentID:   a.name,
			Message:   "Executing Python code",
			Timestamp: time.Now(),
		})
	}
	out := a.sandbox.Execute(ctx, args.Code)
	metrics.ToolInvocations.WithLabelValues(call.Name, "success").Inc()
	a.logger.Debug("Sandbox executed", zap.String("worker", a.name), zap.Int("output_len", len(out)))
	return out, false
}
