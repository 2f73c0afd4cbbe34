package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

// Planner tool names.
const (
	ToolConductResearch   = "ConductResearch"
	ToolDelegateToAnalyst = "DelegateToAnalyst"
	ToolReflect           = "think_tool"
	ToolComplete          = "ResearchComplete"
)

// ErrUnknownAction marks a planner tool call outside the action set.
var ErrUnknownAction = errors.New("research: unrecognized action")

// Action is one planner instruction. The set is closed: ConductResearch,
// DelegateToAnalyst, Reflect and Complete.
type Action interface {
	CallID() string
	Tool() string
	sealed()
}

// ConductResearch delegates one topic to a research worker.
type ConductResearch struct {
	ID    string
	Topic string
}

// DelegateToAnalyst delegates one task to the code-execution analyst.
type DelegateToAnalyst struct {
	ID   string
	Task string
}

// Reflect records planner reasoning without an external call.
type Reflect struct {
	ID   string
	Text string
}

// Complete ends the research loop.
type Complete struct {
	ID string
}

func (a ConductResearch) CallID() string   { return a.ID }
func (a DelegateToAnalyst) CallID() string { return a.ID }
func (a Reflect) CallID() string           { return a.ID }
func (a Complete) CallID() string          { return a.ID }

func (ConductResearch) Tool() string   { return ToolConductResearch }
func (DelegateToAnalyst) Tool() string { return ToolDelegateToAnalyst }
func (Reflect) Tool() string           { return ToolReflect }
func (Complete) Tool() string          { return ToolComplete }

func (ConductResearch) sealed()   {}
func (DelegateToAnalyst) sealed() {}
func (Reflect) sealed()           {}
func (Complete) sealed()          {}

// Rejection is a planner tool call that could not be decoded into an Action.
type Rejection struct {
	Call llm.ToolCall
	Err  error
}

// DecodeAction maps one tool call onto the action set.
func DecodeAction(call llm.ToolCall) (Action, error) {
	switch call.Name {
	case ToolConductResearch:
		var args struct {
			ResearchTopic string `json:"research_topic"`
		}
		if err := decodeArgs(call, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.ResearchTopic) == "" {
			return nil, fmt.Errorf("%s: research_topic is required", call.Name)
		}
		return ConductResearch{ID: call.ID, Topic: args.ResearchTopic}, nil
	case ToolDelegateToAnalyst:
		var args struct {
			TaskDescription string `json:"task_description"`
		}
		if err := decodeArgs(call, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.TaskDescription) == "" {
			return nil, fmt.Errorf("%s: task_description is required", call.Name)
		}
		return DelegateToAnalyst{ID: call.ID, Task: args.TaskDescription}, nil
	case ToolReflect:
		var args struct {
			Reflection string `json:"reflection"`
		}
		if err := decodeArgs(call, &args); err != nil {
			return nil, err
		}
		return Reflect{ID: call.ID, Text: args.Reflection}, nil
	case ToolComplete:
		return Complete{ID: call.ID}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, call.Name)
	}
}

// DecodeActions decodes a planning response. Slot i of the returned slices
// corresponds to call i: exactly one of actions[i] and rejections[i] is set.
func DecodeActions(calls []llm.ToolCall) ([]Action, []*Rejection) {
	actions := make([]Action, len(calls))
	rejections := make([]*Rejection, len(calls))
	for i, call := range calls {
		a, err := DecodeAction(call)
		if err != nil {
			rejections[i] = &Rejection{Call: call, Err: err}
			continue
		}
		actions[i] = a
	}
	return actions, rejections
}

func decodeArgs(call llm.ToolCall, v any) error {
	if len(call.Arguments) == 0 {
		return fmt.Errorf("%s: missing arguments", call.Name)
	}
	if err := json.Unmarshal(call.Arguments, v); err != nil {
		return fmt.Errorf("%s: invalid arguments: %w", call.Name, err)
	}
	return nil
}

// SupervisorTools is the action set bound to the planner.
func SupervisorTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        ToolConductResearch,
			Description: "Delegate a research task to a specialized sub-agent.",
			Parameters: llm.Schema{
				Properties: map[string]llm.Property{
					"research_topic": {
						Type:        "string",
						Description: "The topic to research. Should be a single topic, described in high detail (at least a paragraph).",
					},
				},
				Required: []string{"research_topic"},
			},
		},
		{
			Name:        ToolDelegateToAnalyst,
			Description: "Delegate a data analysis or computation task to the data analyst agent, which can execute Python code.",
			Parameters: llm.Schema{
				Properties: map[string]llm.Property{
					"task_description": {
						Type:        "string",
						Description: "Detailed description of the analysis or computation to perform.",
					},
				},
				Required: []string{"task_description"},
			},
		},
		{
			Name:        ToolReflect,
			Description: "Record a strategic reflection on research progress and next steps.",
			Parameters: llm.Schema{
				Properties: map[string]llm.Property{
					"reflection": {
						Type:        "string",
						Description: "Your detailed reflection on research progress, findings, gaps, and next steps.",
					},
				},
				Required: []string{"reflection"},
			},
		},
		{
			Name:        ToolComplete,
			Description: "Call this tool to indicate that the research is complete.",
			Parameters:  llm.Schema{Properties: map[string]llm.Property{}},
		},
	}
}

// ReflectionNote is the observation recorded for a reflection.
func ReflectionNote(text string) string {
	return "Reflection recorded: " + text
}
