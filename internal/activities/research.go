package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/constants"
	"github.com/Kocoro-lab/deepresearch/internal/research"
)

const defaultHeartbeatInterval = 10 * time.Second

// Error types surfaced to the workflow as non-retryable application errors.
const (
	ErrTypeNotAwaitingInput = "NotAwaitingInput"
	ErrTypeSessionNotFound  = "SessionNotFound"
	ErrTypeEmptyBrief       = "EmptyBrief"
	ErrTypeNoInput          = "NoInput"
)

// ResearchActivities runs pipeline phases against the shared session store.
// Every activity loads state, advances it and saves it, so a retried
// activity resumes from the last saved state.
type ResearchActivities struct {
	pipeline  *research.Pipeline
	store     research.Store
	emitter   research.Emitter
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewResearchActivities binds activities to a pipeline and the store it uses.
func NewResearchActivities(p *research.Pipeline, store research.Store, emitter research.Emitter, logger *zap.Logger) *ResearchActivities {
	if emitter == nil {
		emitter = research.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchActivities{
		pipeline:  p,
		store:     store,
		emitter:   emitter,
		logger:    logger,
		heartbeat: defaultHeartbeatInterval,
	}
}

// Register adds every research activity to w under its constant name.
func (a *ResearchActivities) Register(w worker.ActivityRegistry) {
	w.RegisterActivityWithOptions(a.InitSession, activity.RegisterOptions{Name: constants.InitSessionActivity})
	w.RegisterActivityWithOptions(a.ScopeSession, activity.RegisterOptions{Name: constants.ScopeSessionActivity})
	w.RegisterActivityWithOptions(a.AnswerSession, activity.RegisterOptions{Name: constants.AnswerSessionActivity})
	w.RegisterActivityWithOptions(a.SuperviseRound, activity.RegisterOptions{Name: constants.SuperviseRoundActivity})
	w.RegisterActivityWithOptions(a.CompileReport, activity.RegisterOptions{Name: constants.CompileReportActivity})
	w.RegisterActivityWithOptions(a.EmitProgress, activity.RegisterOptions{Name: constants.EmitProgressActivity})
}

// InitSession creates the session named by the workflow id. A retry finds
// the saved state and returns it unchanged.
func (a *ResearchActivities) InitSession(ctx context.Context, in InitSessionInput) (SessionSnapshot, error) {
	if st, err := a.store.Load(ctx, in.SessionID); err == nil {
		return snapshotOf(st), nil
	} else if !errors.Is(err, research.ErrSessionNotFound) {
		return SessionSnapshot{}, err
	}

	st, err := research.NewState(research.StartRequest{
		SessionID: in.SessionID,
		Messages:  in.Messages,
		Brief:     in.Brief,
	})
	if err != nil {
		return SessionSnapshot{}, nonRetryable(err)
	}
	if err := a.store.Save(ctx, st); err != nil {
		return SessionSnapshot{}, fmt.Errorf("save session: %w", err)
	}
	activity.GetLogger(ctx).Info("Research session created",
		"session_id", st.ID,
		"brief_supplied", st.Brief != nil,
	)
	return snapshotOf(st), nil
}

// ScopeSession runs clarification and brief synthesis. The snapshot's status
// is AWAITING_INPUT when a question is pending.
func (a *ResearchActivities) ScopeSession(ctx context.Context, in SessionRef) (SessionSnapshot, error) {
	st, err := a.load(ctx, in.SessionID)
	if err != nil {
		return SessionSnapshot{}, err
	}
	if st.Brief != nil || st.Status == research.StatusAwaitingInput {
		return snapshotOf(st), nil
	}
	if _, err := a.pipeline.Scope(ctx, st, a.pipeline.Limits()); err != nil {
		return SessionSnapshot{}, err
	}
	if err := a.store.Save(ctx, st); err != nil {
		return SessionSnapshot{}, fmt.Errorf("save session: %w", err)
	}
	return snapshotOf(st), nil
}

// AnswerSession applies the user's answer to a suspended session.
func (a *ResearchActivities) AnswerSession(ctx context.Context, in AnswerInput) (SessionSnapshot, error) {
	err := a.store.CompareAndSwapStatus(ctx, in.SessionID, research.StatusAwaitingInput, research.StatusRunning)
	switch {
	case errors.Is(err, research.ErrSessionNotFound):
		return SessionSnapshot{}, nonRetryable(err)
	case err != nil && !errors.Is(err, research.ErrStatusConflict):
		return SessionSnapshot{}, err
	}

	st, loadErr := a.load(ctx, in.SessionID)
	if loadErr != nil {
		return SessionSnapshot{}, loadErr
	}
	if err != nil {
		// A previous attempt won the swap. It either saved the answer
		// already or failed before saving it.
		if st.Status != research.StatusRunning {
			return SessionSnapshot{}, nonRetryable(research.ErrNotAwaitingInput)
		}
		if st.PendingQuestion == "" {
			return snapshotOf(st), nil
		}
	}

	research.ApplyAnswer(st, in.Answer)
	if err := a.store.Save(ctx, st); err != nil {
		return SessionSnapshot{}, fmt.Errorf("save session: %w", err)
	}
	activity.GetLogger(ctx).Info("Clarification answered",
		"session_id", st.ID,
		"clarification_rounds", st.ClarificationRounds,
	)
	return snapshotOf(st), nil
}

// SuperviseRound runs one supervisor round, heartbeating while workers run.
func (a *ResearchActivities) SuperviseRound(ctx context.Context, in SessionRef) (RoundResult, error) {
	st, err := a.load(ctx, in.SessionID)
	if err != nil {
		return RoundResult{}, err
	}
	stop := a.startHeartbeat(ctx, st.Iterations)
	defer stop()

	done, err := a.pipeline.Supervisor().Round(ctx, st, a.pipeline.Limits())
	if err != nil {
		if errors.Is(err, research.ErrEmptyBrief) {
			return RoundResult{}, nonRetryable(err)
		}
		return RoundResult{}, err
	}
	if err := a.store.Save(ctx, st); err != nil {
		return RoundResult{}, fmt.Errorf("save session: %w", err)
	}
	return RoundResult{Done: done, Iterations: st.Iterations, Notes: len(st.Notes)}, nil
}

// CompileReport writes the final report, archives it and marks the session
// done. A session already done returns its stored report.
func (a *ResearchActivities) CompileReport(ctx context.Context, in SessionRef) (ReportResult, error) {
	st, err := a.load(ctx, in.SessionID)
	if err != nil {
		return ReportResult{}, err
	}
	if st.Status == research.StatusDone {
		return reportOf(st), nil
	}
	stop := a.startHeartbeat(ctx, st.Iterations)
	defer stop()

	research.EmitStatus(ctx, a.emitter, st.ID, "compiler", "Writing final report...")
	report, err := a.pipeline.Compiler().Compile(ctx, st.Brief, st.Notes, st.RawNotes)
	if err != nil {
		return ReportResult{}, err
	}
	a.pipeline.Finish(ctx, st, report)
	if err := a.store.Save(ctx, st); err != nil {
		return ReportResult{}, fmt.Errorf("save session: %w", err)
	}
	return reportOf(st), nil
}

// EmitProgress publishes a workflow-level event. It never fails.
func (a *ResearchActivities) EmitProgress(ctx context.Context, in EmitProgressInput) error {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	a.emitter.Emit(ctx, research.Event{
		SessionID: in.SessionID,
		Type:      in.Type,
		AgentID:   in.AgentID,
		Message:   in.Message,
		Timestamp: ts,
	})
	return nil
}

func (a *ResearchActivities) load(ctx context.Context, id string) (*research.State, error) {
	st, err := a.store.Load(ctx, id)
	if errors.Is(err, research.ErrSessionNotFound) {
		return nil, nonRetryable(err)
	}
	return st, err
}

// startHeartbeat records heartbeats until the returned func is called.
func (a *ResearchActivities) startHeartbeat(ctx context.Context, iteration int) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(a.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx, iteration)
			}
		}
	}()
	return func() { close(done) }
}

func reportOf(st *research.State) ReportResult {
	return ReportResult{Report: st.Report, Notes: len(st.Notes), Iterations: st.Iterations}
}

// nonRetryable tags domain errors that a retry cannot fix.
func nonRetryable(err error) error {
	var typ string
	switch {
	case errors.Is(err, research.ErrNotAwaitingInput):
		typ = ErrTypeNotAwaitingInput
	case errors.Is(err, research.ErrSessionNotFound):
		typ = ErrTypeSessionNotFound
	case errors.Is(err, research.ErrEmptyBrief):
		typ = ErrTypeEmptyBrief
	case errors.Is(err, research.ErrNoInput):
		typ = ErrTypeNoInput
	default:
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), typ, err)
}
