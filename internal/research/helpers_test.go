package research

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/llm/llmtest"
)

type researchFunc func(ctx context.Context, id WorkerID, topic string) (Findings, error)
type analyzeFunc func(ctx context.Context, id WorkerID, task string) (string, error)

type fakeFactory struct {
	research researchFunc
	analyze  analyzeFunc

	mu          sync.Mutex
	researchers []WorkerID
	analysts    []WorkerID
}

func (f *fakeFactory) NewResearcher(id WorkerID) Researcher {
	f.mu.Lock()
	f.researchers = append(f.researchers, id)
	f.mu.Unlock()
	return &fakeResearcher{id: id, fn: f.research}
}

func (f *fakeFactory) NewAnalyst(id WorkerID) Analyst {
	f.mu.Lock()
	f.analysts = append(f.analysts, id)
	f.mu.Unlock()
	return &fakeAnalyst{id: id, fn: f.analyze}
}

func (f *fakeFactory) researcherCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.researchers)
}

type fakeResearcher struct {
	id WorkerID
	fn researchFunc
}

func (r *fakeResearcher) Name() string { return "researcher-" + r.id.String() }

func (r *fakeResearcher) Research(ctx context.Context, topic string) (Findings, error) {
	if r.fn == nil {
		return Findings{Compressed: "findings: " + topic, RawNotes: []string{"raw: " + topic}}, nil
	}
	return r.fn(ctx, r.id, topic)
}

type fakeAnalyst struct {
	id WorkerID
	fn analyzeFunc
}

func (a *fakeAnalyst) Name() string { return "analyst-" + a.id.String() }

func (a *fakeAnalyst) Analyze(ctx context.Context, task string) (string, error) {
	if a.fn == nil {
		return "answer: " + task, nil
	}
	return a.fn(ctx, a.id, task)
}

func researchCall(id, topic string) llm.ToolCall {
	return llmtest.Call(id, ToolConductResearch, map[string]string{"research_topic": topic})
}

func analystCall(id, task string) llm.ToolCall {
	return llmtest.Call(id, ToolDelegateToAnalyst, map[string]string{"task_description": task})
}

func reflectCall(id, text string) llm.ToolCall {
	return llmtest.Call(id, ToolReflect, map[string]string{"reflection": text})
}

func completeCall(id string) llm.ToolCall {
	return llmtest.Call(id, ToolComplete, map[string]string{})
}

func briefState(id string) *State {
	b, err := NewBrief("Compare grid-scale storage technologies", []string{"lithium-ion", "pumped hydro"}, "moderate")
	if err != nil {
		panic(err)
	}
	return &State{ID: id, Brief: b, Status: StatusRunning}
}

// toolResults returns the tool-role contents of the latest planning request.
func toolResults(req llm.Request) []string {
	var out []string
	for _, m := range req.Messages {
		if m.Role == llm.RoleTool {
			out = append(out, m.Content)
		}
	}
	return out
}

func topics(prefix string, n int) []llm.ToolCall {
	calls := make([]llm.ToolCall, n)
	for i := range calls {
		calls[i] = researchCall(fmt.Sprintf("call-%d", i), fmt.Sprintf("%s-%d", prefix, i))
	}
	return calls
}
