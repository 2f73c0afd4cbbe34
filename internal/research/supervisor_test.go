package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/llm/llmtest"
)

func newTestSupervisor(t *testing.T, client llm.Client, workers WorkerFactory) *Supervisor {
	return NewSupervisor(client, workers, nil, nil, zaptest.NewLogger(t))
}

func TestSupervisorStopsAtIterationBudget(t *testing.T) {
	client := llmtest.New(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llmtest.Tools(researchCall("c", "keep going")), nil
	})
	workers := &fakeFactory{}
	st := briefState("budget")

	err := newTestSupervisor(t, client, workers).Run(context.Background(), st, Limits{MaxIterations: 3, MaxConcurrentResearchers: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, st.Iterations)
	assert.Equal(t, 3, client.CallsFor("supervisor"))
	assert.Equal(t, 2, workers.researcherCount(), "third planning pass terminates before dispatch")
	assert.Len(t, st.Notes, 2)
}

func TestSupervisorIterationIncrementsOncePerPass(t *testing.T) {
	var seen []int
	st := briefState("monotonic")
	client := llmtest.New(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		seen = append(seen, st.Iterations)
		return llmtest.Tools(reflectCall("r", "thinking")), nil
	})

	require.NoError(t, newTestSupervisor(t, client, &fakeFactory{}).Run(context.Background(), st, Limits{MaxIterations: 4, MaxConcurrentResearchers: 1}))
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
	assert.Equal(t, 4, st.Iterations)
}

func TestSupervisorImmediateComplete(t *testing.T) {
	client := llmtest.New(llmtest.Sequence(llmtest.Reply(llmtest.Tools(completeCall("done"), researchCall("x", "ignored")))))
	workers := &fakeFactory{}
	st := briefState("complete")

	require.NoError(t, newTestSupervisor(t, client, workers).Run(context.Background(), st, DefaultLimits()))

	assert.Equal(t, 1, st.Iterations)
	assert.Equal(t, 0, workers.researcherCount())
	assert.Empty(t, st.Notes)
	assert.Empty(t, st.RawNotes)
}

func TestSupervisorNoActionsCompletes(t *testing.T) {
	client := llmtest.New(llmtest.Sequence(llmtest.Reply(llmtest.Text("I have nothing to add"))))
	st := briefState("quiet")

	require.NoError(t, newTestSupervisor(t, client, &fakeFactory{}).Run(context.Background(), st, DefaultLimits()))
	assert.Equal(t, 1, st.Iterations)
}

func TestSupervisorPlanningFailureCompletes(t *testing.T) {
	client := llmtest.New(llmtest.Sequence(
		llmtest.Reply(llmtest.Tools(researchCall("a", "first"))),
		llmtest.Fail(errors.New("provider unavailable")),
	))
	st := briefState("planning-error")

	require.NoError(t, newTestSupervisor(t, client, &fakeFactory{}).Run(context.Background(), st, DefaultLimits()))
	assert.Equal(t, 2, st.Iterations)
	assert.Equal(t, []string{"findings: first"}, st.Notes)
}

func TestSupervisorResultsFollowIssueOrder(t *testing.T) {
	// C finishes first, then A, then B.
	cDone := make(chan struct{})
	aDone := make(chan struct{})
	var completion []string
	var mu sync.Mutex
	record := func(topic string) {
		mu.Lock()
		completion = append(completion, topic)
		mu.Unlock()
	}

	workers := &fakeFactory{research: func(ctx context.Context, id WorkerID, topic string) (Findings, error) {
		switch topic {
		case "A":
			<-cDone
			record(topic)
			close(aDone)
		case "B":
			<-aDone
			record(topic)
		case "C":
			record(topic)
			close(cDone)
		}
		return Findings{Compressed: "note " + topic, RawNotes: []string{"raw " + topic}}, nil
	}}
	client := llmtest.New(llmtest.Sequence(
		llmtest.Reply(llmtest.Tools(researchCall("a", "A"), researchCall("b", "B"), researchCall("c", "C"))),
		llmtest.Reply(llmtest.Tools(completeCall("done"))),
	))
	st := briefState("ordering")

	require.NoError(t, newTestSupervisor(t, client, workers).Run(context.Background(), st, DefaultLimits()))

	assert.Equal(t, []string{"C", "A", "B"}, completion)
	assert.Equal(t, []string{"note A", "note B", "note C"}, st.Notes)
	assert.Equal(t, []string{"raw A", "raw B", "raw C"}, st.RawNotes)
}

func TestSupervisorFailedWorkerYieldsErrorResult(t *testing.T) {
	workers := &fakeFactory{research: func(ctx context.Context, id WorkerID, topic string) (Findings, error) {
		switch topic {
		case "broken":
			return Findings{}, errors.New("search backend down")
		case "panics":
			panic("nil map")
		}
		return Findings{Compressed: "ok " + topic}, nil
	}}
	actions := []Action{
		ConductResearch{ID: "1", Topic: "fine"},
		ConductResearch{ID: "2", Topic: "broken"},
		ConductResearch{ID: "3", Topic: "panics"},
	}

	results := newTestSupervisor(t, nil, workers).dispatch(context.Background(), "s", 1, actions, make([]*Rejection, 3), 3)
	require.Len(t, results, 3)

	assert.Equal(t, ResultSuccess, results[0].Kind)
	assert.Equal(t, "ok fine", results[0].Content)

	assert.True(t, results[1].Failed())
	assert.Equal(t, "2", results[1].ActionID)
	assert.Contains(t, results[1].Content, "search backend down")

	assert.True(t, results[2].Failed())
	assert.Contains(t, results[2].Content, "panic")
}

func TestSupervisorLoopContinuesAfterWorkerFailure(t *testing.T) {
	workers := &fakeFactory{research: func(ctx context.Context, id WorkerID, topic string) (Findings, error) {
		if topic == "bad" {
			return Findings{}, errors.New("boom")
		}
		return Findings{Compressed: "good"}, nil
	}}
	var secondPass []string
	client := llmtest.New(llmtest.Sequence(
		llmtest.Reply(llmtest.Tools(researchCall("1", "bad"), researchCall("2", "ok"))),
		llmtest.Reply(llmtest.Tools(completeCall("3"))),
	))
	wrapped := llmtest.New(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		if len(client.Calls()) == 1 {
			secondPass = toolResults(req)
		}
		return client.Complete(ctx, req)
	})
	st := briefState("continue")

	require.NoError(t, newTestSupervisor(t, wrapped, workers).Run(context.Background(), st, DefaultLimits()))

	assert.Equal(t, 2, st.Iterations)
	require.Len(t, st.Notes, 2)
	assert.Contains(t, st.Notes[0], "boom")
	assert.Equal(t, "good", st.Notes[1])
	require.Len(t, secondPass, 2)
	assert.Contains(t, secondPass[0], "boom")
	assert.Equal(t, "good", secondPass[1])
}

func TestSupervisorAwaitsSlowWorkerBeforeNextPass(t *testing.T) {
	workers := &fakeFactory{research: func(ctx context.Context, id WorkerID, topic string) (Findings, error) {
		if topic == "slow" {
			time.Sleep(150 * time.Millisecond)
		}
		return Findings{Compressed: "done " + topic}, nil
	}}
	var observed []string
	var planCalls int32
	client := llmtest.New(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		if atomic.AddInt32(&planCalls, 1) == 1 {
			return llmtest.Tools(researchCall("1", "fast-1"), researchCall("2", "slow"), researchCall("3", "fast-2")), nil
		}
		observed = toolResults(req)
		return llmtest.Tools(completeCall("c")), nil
	})
	st := briefState("slow")

	require.NoError(t, newTestSupervisor(t, client, workers).Run(context.Background(), st, DefaultLimits()))

	assert.Equal(t, []string{"done fast-1", "done slow", "done fast-2"}, observed)
	assert.Equal(t, []string{"done fast-1", "done slow", "done fast-2"}, st.Notes)
}

func TestSupervisorEnforcesConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	workers := &fakeFactory{research: func(ctx context.Context, id WorkerID, topic string) (Findings, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return Findings{Compressed: topic}, nil
	}}
	actions, rejections := DecodeActions(topics("t", 6))

	results := newTestSupervisor(t, nil, workers).dispatch(context.Background(), "s", 1, actions, rejections, 2)

	assert.Len(t, results, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, "t-0", results[0].Content)
	assert.Equal(t, "t-5", results[5].Content)
}

func TestSupervisorMixedRound(t *testing.T) {
	client := llmtest.New(llmtest.Sequence(
		llmtest.Reply(llmtest.Tools(
			reflectCall("r", "plan: two angles"),
			researchCall("a", "costs"),
			analystCall("b", "compute LCOE"),
			llm.ToolCall{ID: "x", Name: "delete_everything", Arguments: []byte(`{}`)},
		)),
		llmtest.Reply(llmtest.Tools(completeCall("c"))),
	))
	workers := &fakeFactory{}
	st := briefState("mixed")

	require.NoError(t, newTestSupervisor(t, client, workers).Run(context.Background(), st, DefaultLimits()))

	require.Len(t, st.Notes, 4)
	assert.Equal(t, []string{
		"Reflection recorded: plan: two angles",
		"findings: costs",
		AnalystResultPrefix + "answer: compute LCOE",
	}, st.Notes[:3])
	assert.Contains(t, st.Notes[3], `"delete_everything"`)

	var rejected *llm.Message
	for i := range st.SupervisorMessages {
		if st.SupervisorMessages[i].ToolCallID == "x" {
			rejected = &st.SupervisorMessages[i]
		}
	}
	require.NotNil(t, rejected)
	assert.True(t, rejected.IsError)
	assert.Contains(t, rejected.Content, `"delete_everything"`)
}

func TestSupervisorSystemPrompt(t *testing.T) {
	client := llmtest.New(llmtest.Sequence(llmtest.Reply(llmtest.Tools(completeCall("c")))))
	st := briefState("prompt")
	st.Brief.Depth = DepthShallow

	require.NoError(t, newTestSupervisor(t, client, &fakeFactory{}).Run(context.Background(), st, DefaultLimits()))

	calls := client.Calls()
	require.Len(t, calls, 1)
	sys := calls[0].System
	assert.Contains(t, sys, "Compare grid-scale storage technologies")
	assert.Contains(t, sys, "\n\n**Key Areas to Cover:**\n- lithium-ion\n- pumped hydro")
	assert.True(t, strings.HasSuffix(sys, "\n\n**Research Depth Guidance (shallow):** "+DepthShallow.Guidance()))
	assert.Len(t, calls[0].Tools, 4)
	require.NotEmpty(t, calls[0].Messages)
	assert.Equal(t, llm.User(st.Brief.Text), calls[0].Messages[0])
}

func TestSupervisorRequiresBrief(t *testing.T) {
	_, err := newTestSupervisor(t, nil, &fakeFactory{}).Round(context.Background(), &State{ID: "x"}, DefaultLimits())
	assert.ErrorIs(t, err, ErrEmptyBrief)
}
