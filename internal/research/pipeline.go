package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/metrics"
)

// ErrNoInput is returned when Start receives neither messages nor a brief.
var ErrNoInput = errors.New("research: start requires messages or a brief")

// Deps wires a Pipeline. LLM, Workers and Store are required.
type Deps struct {
	LLM      llm.Client
	Workers  WorkerFactory
	Store    Store
	Archiver Archiver
	Emitter  Emitter
	Prompts  *Prompts
	Logger   *zap.Logger
	Limits   Limits
}

// StartRequest is the entry input. A non-nil Brief skips clarification and
// brief synthesis.
type StartRequest struct {
	SessionID string
	Messages  []llm.Message
	Brief     *Brief
}

// Outcome is what a pipeline entry returns to the caller.
type Outcome struct {
	SessionID  string   `json:"session_id"`
	Status     Status   `json:"status"`
	Question   string   `json:"question,omitempty"`
	Report     string   `json:"report,omitempty"`
	Notes      []string `json:"notes,omitempty"`
	RawNotes   []string `json:"raw_notes,omitempty"`
	Iterations int      `json:"iterations"`
}

// Pipeline runs clarify, brief, supervise and compile for one session at a
// time per call. It is safe for concurrent use across sessions.
type Pipeline struct {
	gate       *Gate
	briefs     *BriefSynthesizer
	supervisor *Supervisor
	compiler   *Compiler

	store    Store
	archiver Archiver
	emitter  Emitter
	logger   *zap.Logger

	mu     sync.RWMutex
	limits Limits
}

// NewPipeline builds a pipeline from deps.
func NewPipeline(d Deps) *Pipeline {
	if d.Prompts == nil {
		d.Prompts = DefaultPrompts()
	}
	if d.Emitter == nil {
		d.Emitter = NopEmitter{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Store == nil {
		d.Store = NewMemoryStore()
	}
	if d.Limits == (Limits{}) {
		d.Limits = DefaultLimits()
	}
	return &Pipeline{
		gate:       NewGate(d.LLM, d.Prompts, d.Logger.Named("gate")),
		briefs:     NewBriefSynthesizer(d.LLM, d.Prompts, d.Logger.Named("brief")),
		supervisor: NewSupervisor(d.LLM, d.Workers, d.Prompts, d.Emitter, d.Logger.Named("supervisor")),
		compiler:   NewCompiler(d.LLM, d.Prompts, d.Logger.Named("compiler")),
		store:      d.Store,
		archiver:   d.Archiver,
		emitter:    d.Emitter,
		logger:     d.Logger,
		limits:     d.Limits.Normalized(),
	}
}

// Limits returns the current limits.
func (p *Pipeline) Limits() Limits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.limits
}

// UpdateLimits swaps the limits used by subsequent phases.
func (p *Pipeline) UpdateLimits(l Limits) {
	l = l.Normalized()
	p.mu.Lock()
	p.limits = l
	p.mu.Unlock()
	p.logger.Info("Research limits updated",
		zap.Int("max_iterations", l.MaxIterations),
		zap.Int("max_concurrent_researchers", l.MaxConcurrentResearchers),
		zap.Int("max_clarification_rounds", l.MaxClarificationRounds),
		zap.Bool("allow_clarification", l.AllowClarification),
	)
}

// Supervisor exposes the supervisor for callers that drive rounds themselves.
func (p *Pipeline) Supervisor() *Supervisor { return p.supervisor }

// Compiler exposes the report compiler.
func (p *Pipeline) Compiler() *Compiler { return p.compiler }

// Start creates a session and runs it until it completes or suspends.
func (p *Pipeline) Start(ctx context.Context, req StartRequest) (*Outcome, error) {
	st, err := NewState(req)
	if err != nil {
		return nil, err
	}
	metrics.PipelinesStarted.WithLabelValues(entryLabel(req)).Inc()
	metrics.SessionsCreated.Inc()
	p.logger.Info("Research session started",
		zap.String("session_id", st.ID),
		zap.Bool("brief_supplied", st.Brief != nil),
	)
	if err := p.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return p.advance(ctx, st)
}

// Resume answers the pending question of a suspended session and continues.
func (p *Pipeline) Resume(ctx context.Context, sessionID, answer string) (*Outcome, error) {
	if err := p.store.CompareAndSwapStatus(ctx, sessionID, StatusAwaitingInput, StatusRunning); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrNotAwaitingInput
		}
		return nil, err
	}
	st, err := p.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	ApplyAnswer(st, answer)
	p.logger.Info("Research session resumed",
		zap.String("session_id", sessionID),
		zap.Int("clarification_rounds", st.ClarificationRounds),
	)
	return p.advance(ctx, st)
}

// Get loads a session.
func (p *Pipeline) Get(ctx context.Context, sessionID string) (*State, error) {
	return p.store.Load(ctx, sessionID)
}

func (p *Pipeline) advance(ctx context.Context, st *State) (*Outcome, error) {
	limits := p.Limits()

	suspended, err := p.Scope(ctx, st, limits)
	if err != nil {
		return nil, p.fail(ctx, st, err)
	}
	if err := p.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if suspended {
		return OutcomeOf(st), nil
	}

	if err := p.supervisor.Run(ctx, st, limits); err != nil {
		return nil, p.fail(ctx, st, err)
	}
	if err := p.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	emit(ctx, p.emitter, st.ID, EventStatus, "compiler", "Writing final report...")
	report, err := p.compiler.Compile(ctx, st.Brief, st.Notes, st.RawNotes)
	if err != nil {
		return nil, p.fail(ctx, st, err)
	}
	p.Finish(ctx, st, report)
	if err := p.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return OutcomeOf(st), nil
}

// Scope runs the clarification gate and brief synthesis. It reports true
// when the session was suspended for user input.
func (p *Pipeline) Scope(ctx context.Context, st *State, limits Limits) (bool, error) {
	if st.Brief != nil {
		return false, nil
	}
	limits = limits.Normalized()

	if limits.AllowClarification && st.ClarificationRounds < limits.MaxClarificationRounds {
		emit(ctx, p.emitter, st.ID, EventStatus, "gate", "Analyzing research request...")
		d, err := p.gate.Evaluate(ctx, st.Messages)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			p.logger.Warn("Clarification check failed; proceeding without it",
				zap.String("session_id", st.ID), zap.Error(err))
		case d.NeedClarification:
			Suspend(st, d.Question)
			metrics.ClarificationsRequested.Inc()
			emit(ctx, p.emitter, st.ID, EventClarification, "gate", d.Question)
			return true, nil
		case d.Verification != "":
			st.Messages = append(st.Messages, llm.Assistant(d.Verification))
		}
	} else if st.ClarificationRounds >= limits.MaxClarificationRounds && limits.AllowClarification {
		p.logger.Info("Clarification cap reached; proceeding",
			zap.String("session_id", st.ID), zap.Int("rounds", st.ClarificationRounds))
	}

	brief, err := p.briefs.Synthesize(ctx, st.Messages)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		fallback := FallbackBrief(st.Messages)
		if fallback == nil {
			return false, fmt.Errorf("synthesize brief: %w", err)
		}
		p.logger.Warn("Brief synthesis failed; using last user message",
			zap.String("session_id", st.ID), zap.Error(err))
		brief = fallback
	}
	st.Brief = brief
	emit(ctx, p.emitter, st.ID, EventBrief, "brief",
		fmt.Sprintf("Research brief generated. Depth: %s", brief.Depth))
	return false, nil
}

// Finish records the report and marks the session done.
func (p *Pipeline) Finish(ctx context.Context, st *State, report string) {
	st.Report = report
	st.Status = StatusDone
	st.UpdatedAt = time.Now()
	metrics.RecordPipelineCompletion("done", time.Since(st.CreatedAt).Seconds())
	emit(ctx, p.emitter, st.ID, EventReport, "compiler", "Report complete!")
	if p.archiver != nil {
		if err := p.archiver.Archive(ctx, st); err != nil {
			p.logger.Warn("Failed to archive session", zap.String("session_id", st.ID), zap.Error(err))
		}
	}
}

func (p *Pipeline) fail(ctx context.Context, st *State, err error) error {
	metrics.RecordPipelineCompletion("failed", 0)
	p.logger.Error("Research pipeline failed", zap.String("session_id", st.ID), zap.Error(err))
	emit(ctx, p.emitter, st.ID, EventError, "pipeline", err.Error())
	if saveErr := p.store.Save(context.WithoutCancel(ctx), st); saveErr != nil {
		p.logger.Warn("Failed to save session after failure", zap.String("session_id", st.ID), zap.Error(saveErr))
	}
	return err
}

// NewState validates a start request and builds the initial state.
func NewState(req StartRequest) (*State, error) {
	if len(req.Messages) == 0 && req.Brief == nil {
		return nil, ErrNoInput
	}
	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	st := &State{
		ID:        id,
		Messages:  cloneMessages(req.Messages),
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Brief != nil {
		b, err := NewBrief(req.Brief.Text, req.Brief.KeyAreas, string(req.Brief.Depth))
		if err != nil {
			return nil, err
		}
		st.Brief = b
	}
	return st, nil
}

// Suspend records a pending question and parks the session.
func Suspend(st *State, question string) {
	st.Status = StatusAwaitingInput
	st.PendingQuestion = question
	st.ClarificationRounds++
	st.UpdatedAt = time.Now()
}

// ApplyAnswer appends the pending question and the user's answer to the
// history and marks the session running again.
func ApplyAnswer(st *State, answer string) {
	if st.PendingQuestion != "" {
		st.Messages = append(st.Messages, llm.Assistant(st.PendingQuestion))
	}
	st.Messages = append(st.Messages, llm.User(answer))
	st.PendingQuestion = ""
	st.Status = StatusRunning
	st.UpdatedAt = time.Now()
}

// FallbackBrief builds a moderate brief from the last user message.
func FallbackBrief(messages []llm.Message) *Brief {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llm.RoleUser {
			continue
		}
		if b, err := NewBrief(messages[i].Content, nil, ""); err == nil {
			return b
		}
	}
	return nil
}

// OutcomeOf summarizes st for the caller.
func OutcomeOf(st *State) *Outcome {
	return &Outcome{
		SessionID:  st.ID,
		Status:     st.Status,
		Question:   st.PendingQuestion,
		Report:     st.Report,
		Notes:      append([]string(nil), st.Notes...),
		RawNotes:   append([]string(nil), st.RawNotes...),
		Iterations: st.Iterations,
	}
}

func entryLabel(req StartRequest) string {
	if req.Brief != nil {
		return "brief"
	}
	return "messages"
}
