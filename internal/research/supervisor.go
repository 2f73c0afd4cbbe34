package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/metrics"
)

// AnalystResultPrefix is prepended to every analyst answer recorded as a note.
const AnalystResultPrefix = "Data Analysis Result:\n"

// Supervisor plans research rounds and fans work out to workers.
type Supervisor struct {
	client  llm.Client
	workers WorkerFactory
	prompts *Prompts
	emitter Emitter
	logger  *zap.Logger
	now     func() time.Time
}

// NewSupervisor creates a supervisor.
func NewSupervisor(client llm.Client, workers WorkerFactory, prompts *Prompts, emitter Emitter, logger *zap.Logger) *Supervisor {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		client:  client,
		workers: workers,
		prompts: prompts,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

// Run executes rounds until the loop completes.
func (s *Supervisor) Run(ctx context.Context, st *State, limits Limits) error {
	for {
		done, err := s.Round(ctx, st, limits)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Round performs one planning pass and, unless the loop terminates, one
// dispatch round. It reports whether the loop is complete. Only a missing
// brief or a cancelled context produce an error.
func (s *Supervisor) Round(ctx context.Context, st *State, limits Limits) (bool, error) {
	if st.Brief == nil {
		return true, ErrEmptyBrief
	}
	limits = limits.Normalized()
	if len(st.SupervisorMessages) == 0 {
		st.SupervisorMessages = []llm.Message{llm.User(st.Brief.Text)}
	}

	system, err := s.systemPrompt(st.Brief, limits)
	if err != nil {
		return true, err
	}

	emit(ctx, s.emitter, st.ID, EventPlanning, "supervisor", "Supervisor is planning research...")
	resp, err := s.client.Complete(ctx, llm.Request{
		System:     system,
		Messages:   st.SupervisorMessages,
		Tools:      SupervisorTools(),
		ToolChoice: llm.ToolChoice{Mode: llm.ToolChoiceAuto},
		Purpose:    "supervisor",
	})
	st.Iterations++

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return true, ctxErr
		}
		metrics.PlanningPasses.WithLabelValues("error").Inc()
		s.logger.Warn("Planning failed; compiling with findings so far",
			zap.String("session_id", st.ID),
			zap.Int("iteration", st.Iterations),
			zap.Error(err),
		)
		emit(ctx, s.emitter, st.ID, EventError, "supervisor", "Planning failed. Compiling report...")
		return true, nil
	}

	actions, rejections := DecodeActions(resp.ToolCalls)
	if reason, stop := s.terminationReason(st, limits, resp.ToolCalls, actions); stop {
		metrics.PlanningPasses.WithLabelValues(reason).Inc()
		s.logger.Info("Supervisor loop complete",
			zap.String("session_id", st.ID),
			zap.String("reason", reason),
			zap.Int("iterations", st.Iterations),
			zap.Int("notes", len(st.Notes)),
		)
		emit(ctx, s.emitter, st.ID, EventStatus, "supervisor", completionMessage(reason))
		return true, nil
	}
	metrics.PlanningPasses.WithLabelValues("dispatch").Inc()

	st.SupervisorMessages = append(st.SupervisorMessages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	results := s.dispatch(ctx, st.ID, st.Iterations, actions, rejections, limits.MaxConcurrentResearchers)

	for i, r := range results {
		st.SupervisorMessages = append(st.SupervisorMessages, llm.ToolResult(resp.ToolCalls[i], r.Content, r.Failed()))
		st.Notes = append(st.Notes, r.Content)
		st.RawNotes = append(st.RawNotes, r.RawNotes...)
	}

	emit(ctx, s.emitter, st.ID, EventRoundComplete, "supervisor",
		fmt.Sprintf("Round %d complete: %d results", st.Iterations, len(results)))
	return false, ctx.Err()
}

func (s *Supervisor) terminationReason(st *State, limits Limits, calls []llm.ToolCall, actions []Action) (string, bool) {
	if st.Iterations >= limits.MaxIterations {
		return "budget", true
	}
	if len(calls) == 0 {
		return "no_actions", true
	}
	for _, a := range actions {
		if _, ok := a.(Complete); ok {
			return "complete", true
		}
	}
	return "", false
}

func completionMessage(reason string) string {
	switch reason {
	case "budget":
		return "Max iterations reached. Compiling report..."
	case "complete":
		return "Research complete. Compiling report..."
	default:
		return "No further research planned. Compiling report..."
	}
}

func (s *Supervisor) systemPrompt(brief *Brief, limits Limits) (string, error) {
	briefText := brief.Text
	if len(brief.KeyAreas) > 0 {
		briefText += "\n\n**Key Areas to Cover:**\n- " + strings.Join(brief.KeyAreas, "\n- ")
	}
	prompt, err := s.prompts.Render("supervisor", map[string]any{
		"Date":          Today(s.now()),
		"MaxConcurrent": limits.MaxConcurrentResearchers,
		"MaxIterations": limits.MaxIterations,
		"Brief":         briefText,
	})
	if err != nil {
		return "", err
	}
	return prompt + fmt.Sprintf("\n\n**Research Depth Guidance (%s):** %s", brief.Depth, brief.Depth.Guidance()), nil
}

// dispatch runs one round. Reflections and rejected calls resolve inline;
// research and analyst actions run concurrently, at most limit at a time.
// Slot i of the result always answers action i.
func (s *Supervisor) dispatch(ctx context.Context, sessionID string, round int, actions []Action, rejections []*Rejection, limit int) []WorkerResult {
	results := make([]WorkerResult, len(actions))
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i := range actions {
		if rej := rejections[i]; rej != nil {
			s.logger.Warn("Rejected planner action",
				zap.String("session_id", sessionID),
				zap.String("tool", rej.Call.Name),
				zap.Error(rej.Err),
			)
			metrics.RecordDispatch("rejected", string(ResultError), 0)
			results[i] = WorkerResult{
				ActionID: rej.Call.ID,
				Tool:     rej.Call.Name,
				Kind:     ResultError,
				Content:  "Error: " + rej.Err.Error(),
			}
			continue
		}

		id := WorkerID{SessionID: sessionID, Round: round, Index: i}
		switch a := actions[i].(type) {
		case Reflect:
			results[i] = WorkerResult{ActionID: a.ID, Tool: a.Tool(), Kind: ResultSuccess, Content: ReflectionNote(a.Text)}
		case ConductResearch:
			g.Go(func() error {
				results[i] = s.runResearch(ctx, id, a)
				return nil
			})
		case DelegateToAnalyst:
			g.Go(func() error {
				results[i] = s.runAnalyst(ctx, id, a)
				return nil
			})
		case Complete:
			results[i] = WorkerResult{ActionID: a.ID, Tool: a.Tool(), Kind: ResultSuccess, Content: "Research complete."}
		}
	}

	_ = g.Wait()
	return results
}

func (s *Supervisor) runResearch(ctx context.Context, id WorkerID, a ConductResearch) (res WorkerResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = dispatchFailure(a, fmt.Errorf("research worker panic: %v", r))
		}
		s.settle("research", id, res, start)
	}()

	worker := s.workers.NewResearcher(id)
	emit(ctx, s.emitter, id.SessionID, EventDispatch, worker.Name(), "Researching: "+a.Topic)

	findings, err := worker.Research(ctx, a.Topic)
	if err != nil {
		return dispatchFailure(a, err)
	}
	return WorkerResult{
		ActionID: a.ID,
		Tool:     a.Tool(),
		Kind:     ResultSuccess,
		Content:  findings.Compressed,
		RawNotes: findings.RawNotes,
	}
}

func (s *Supervisor) runAnalyst(ctx context.Context, id WorkerID, a DelegateToAnalyst) (res WorkerResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = dispatchFailure(a, fmt.Errorf("analyst worker panic: %v", r))
		}
		s.settle("analyst", id, res, start)
	}()

	worker := s.workers.NewAnalyst(id)
	emit(ctx, s.emitter, id.SessionID, EventDispatch, worker.Name(), "Delegating to Data Analyst...")

	answer, err := worker.Analyze(ctx, a.Task)
	if err != nil {
		return dispatchFailure(a, err)
	}
	return WorkerResult{
		ActionID: a.ID,
		Tool:     a.Tool(),
		Kind:     ResultSuccess,
		Content:  AnalystResultPrefix + answer,
	}
}

func (s *Supervisor) settle(kind string, id WorkerID, res WorkerResult, start time.Time) {
	elapsed := time.Since(start)
	metrics.RecordDispatch(kind, string(res.Kind), elapsed.Seconds())
	if res.Failed() {
		s.logger.Warn("Dispatch failed",
			zap.String("worker", id.String()),
			zap.String("kind", kind),
			zap.String("error", res.Content),
		)
		return
	}
	s.logger.Debug("Dispatch settled",
		zap.String("worker", id.String()),
		zap.String("kind", kind),
		zap.Duration("elapsed", elapsed),
	)
}

func dispatchFailure(a Action, err error) WorkerResult {
	msg := "Error processing research: " + err.Error()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		msg = "Error: dispatch cancelled: " + err.Error()
	}
	return WorkerResult{ActionID: a.CallID(), Tool: a.Tool(), Kind: ResultError, Content: msg}
}
