package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/deepresearch/internal/activities"
	"github.com/Kocoro-lab/deepresearch/internal/constants"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/workflows/opts"
)

// DeepResearchWorkflow drives one research session: scope (suspending on
// clarifying questions until the answer signal arrives), supervisor rounds,
// then report compilation. State lives in the session store; the workflow
// only sequences activities and tracks the phase for the status query.
func DeepResearchWorkflow(ctx workflow.Context, input ResearchInput) (ResearchResult, error) {
	input = input.withDefaults()
	logger := workflow.GetLogger(ctx)
	sessionID := workflow.GetInfo(ctx).WorkflowExecution.ID

	status := SessionStatus{
		SessionID: sessionID,
		Phase:     PhaseScoping,
		Status:    research.StatusRunning,
		UpdatedAt: workflow.Now(ctx),
	}
	if err := workflow.SetQueryHandler(ctx, constants.QueryStatus, func() (SessionStatus, error) {
		return status, nil
	}); err != nil {
		return ResearchResult{}, fmt.Errorf("register status query: %w", err)
	}
	answers := workflow.GetSignalChannel(ctx, constants.SignalAnswer)

	actx := opts.WithSessionOptions(ctx, input.ActivityTimeout, input.HeartbeatTimeout)
	emitCtx := opts.WithProgressOptions(ctx)
	emit := func(typ, msg string) {
		_ = workflow.ExecuteActivity(emitCtx, constants.EmitProgressActivity, activities.EmitProgressInput{
			SessionID: sessionID,
			Type:      typ,
			AgentID:   "workflow",
			Message:   msg,
			Timestamp: workflow.Now(ctx),
		}).Get(ctx, nil)
	}
	setPhase := func(phase string) {
		status.Phase = phase
		status.UpdatedAt = workflow.Now(ctx)
	}
	fail := func(stage string, err error) (ResearchResult, error) {
		logger.Error("Research workflow failed", "session_id", sessionID, "stage", stage, "error", err)
		setPhase(PhaseFailed)
		status.Error = err.Error()
		emit(research.EventError, fmt.Sprintf("%s failed: %v", stage, err))
		return ResearchResult{}, err
	}

	logger.Info("Starting DeepResearchWorkflow", "session_id", sessionID, "brief_supplied", input.Brief != nil)

	var snap activities.SessionSnapshot
	if err := workflow.ExecuteActivity(actx, constants.InitSessionActivity, activities.InitSessionInput{
		SessionID: sessionID,
		Messages:  input.Messages,
		Brief:     input.Brief,
	}).Get(ctx, &snap); err != nil {
		return fail("init", err)
	}

	for !snap.HasBrief {
		if err := workflow.ExecuteActivity(actx, constants.ScopeSessionActivity, activities.SessionRef{SessionID: sessionID}).Get(ctx, &snap); err != nil {
			return fail("scope", err)
		}
		status.ClarificationRounds = snap.ClarificationRounds
		if snap.Status != research.StatusAwaitingInput {
			continue
		}

		setPhase(PhaseAwaitingInput)
		status.Status = research.StatusAwaitingInput
		status.Question = snap.Question
		logger.Info("Waiting for clarification answer", "session_id", sessionID, "round", snap.ClarificationRounds)

		answer, ok := awaitAnswer(ctx, answers, input.AnswerTimeout)
		if !ok {
			logger.Warn("Clarification answer timed out", "session_id", sessionID, "timeout", input.AnswerTimeout)
			return ResearchResult{
				SessionID:  sessionID,
				Status:     research.StatusAwaitingInput,
				Question:   snap.Question,
				Iterations: snap.Iterations,
			}, nil
		}
		emit(research.EventStatus, "Clarification received. Resuming research...")
		if err := workflow.ExecuteActivity(actx, constants.AnswerSessionActivity, activities.AnswerInput{
			SessionID: sessionID,
			Answer:    answer.Answer,
		}).Get(ctx, &snap); err != nil {
			return fail("answer", err)
		}
		setPhase(PhaseScoping)
		status.Status = research.StatusRunning
		status.Question = ""
	}

	setPhase(PhaseResearching)
	for {
		var round activities.RoundResult
		if err := workflow.ExecuteActivity(actx, constants.SuperviseRoundActivity, activities.SessionRef{SessionID: sessionID}).Get(ctx, &round); err != nil {
			return fail("supervise", err)
		}
		status.Iterations = round.Iterations
		status.Notes = round.Notes
		status.UpdatedAt = workflow.Now(ctx)
		if round.Done {
			break
		}
	}

	setPhase(PhaseCompiling)
	var rep activities.ReportResult
	if err := workflow.ExecuteActivity(actx, constants.CompileReportActivity, activities.SessionRef{SessionID: sessionID}).Get(ctx, &rep); err != nil {
		return fail("compile", err)
	}

	setPhase(PhaseDone)
	status.Status = research.StatusDone
	logger.Info("DeepResearchWorkflow completed", "session_id", sessionID, "iterations", rep.Iterations, "notes", rep.Notes)
	return ResearchResult{
		SessionID:  sessionID,
		Status:     research.StatusDone,
		Report:     rep.Report,
		Iterations: rep.Iterations,
		Notes:      rep.Notes,
	}, nil
}

// awaitAnswer blocks until a non-blank answer arrives or timeout elapses.
// A negative timeout waits forever.
func awaitAnswer(ctx workflow.Context, ch workflow.ReceiveChannel, timeout time.Duration) (AnswerSignal, bool) {
	tctx, cancel := workflow.WithCancel(ctx)
	defer cancel()
	var timer workflow.Future
	if timeout > 0 {
		timer = workflow.NewTimer(tctx, timeout)
	}

	for {
		var (
			sig      AnswerSignal
			got      bool
			timedOut bool
		)
		sel := workflow.NewSelector(ctx)
		sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, &sig)
			got = true
		})
		if timer != nil {
			sel.AddFuture(timer, func(workflow.Future) { timedOut = true })
		}
		sel.Select(ctx)

		if timedOut {
			return AnswerSignal{}, false
		}
		if got && strings.TrimSpace(sig.Answer) != "" {
			return sig, true
		}
		workflow.GetLogger(ctx).Warn("Ignoring blank clarification answer")
	}
}
