package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/auth"
	"github.com/Kocoro-lab/deepresearch/internal/constants"
	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/workflows"
)

const (
	temporalCallTimeout = 10 * time.Second
	maxRequestBody      = 1 << 20
)

// WorkflowClient is the subset of the Temporal client the session endpoints
// use.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// SessionsHandler starts research workflows, reports their status and
// forwards clarification answers to them as signals.
type SessionsHandler struct {
	temporal  WorkflowClient
	taskQueue string
	defaults  workflows.ResearchInput
	logger    *zap.Logger
}

// NewSessionsHandler creates a new handler. defaults supplies the timeouts
// copied into every started workflow.
func NewSessionsHandler(t WorkflowClient, taskQueue string, defaults workflows.ResearchInput, logger *zap.Logger) *SessionsHandler {
	if taskQueue == "" {
		taskQueue = constants.DefaultTaskQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionsHandler{temporal: t, taskQueue: taskQueue, defaults: defaults, logger: logger}
}

// RegisterRoutes registers session routes on the provided mux.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux, mw *auth.Middleware) {
	mux.Handle("POST /sessions", mw.RequireScope(auth.ScopeSessionsWrite, http.HandlerFunc(h.handleStart)))
	mux.Handle("GET /sessions/{workflow_id}", mw.RequireScope(auth.ScopeSessionsRead, http.HandlerFunc(h.handleStatus)))
	mux.Handle("POST /sessions/{workflow_id}/answer", mw.RequireScope(auth.ScopeSessionsAnswer, http.HandlerFunc(h.handleAnswer)))
}

// startRequest accepts either a single query or a message history, and an
// optional brief that skips clarification.
type startRequest struct {
	WorkflowID string          `json:"workflow_id,omitempty"`
	Query      string          `json:"query,omitempty"`
	Messages   []llm.Message   `json:"messages,omitempty"`
	Brief      *research.Brief `json:"brief,omitempty"`
}

type answerRequest struct {
	Answer string `json:"answer"`
	RunID  string `json:"run_id,omitempty"`
}

func (h *SessionsHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	input := h.defaults
	input.Messages = req.Messages
	if q := strings.TrimSpace(req.Query); q != "" {
		input.Messages = append(input.Messages, llm.User(q))
	}
	if req.Brief != nil {
		b, err := research.NewBrief(req.Brief.Text, req.Brief.KeyAreas, string(req.Brief.Depth))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		input.Brief = b
	}
	if len(input.Messages) == 0 && input.Brief == nil {
		writeError(w, http.StatusBadRequest, "query, messages or brief required")
		return
	}
	id := req.WorkflowID
	if id == "" {
		id = "research-" + uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), temporalCallTimeout)
	defer cancel()
	run, err := h.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: h.taskQueue,
	}, constants.DeepResearchWorkflow, input)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			writeError(w, http.StatusConflict, "workflow already started")
			return
		}
		h.logger.Error("failed to start workflow", zap.String("workflow_id", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to start workflow")
		return
	}

	user, _ := auth.GetUserContext(r.Context())
	h.logger.Info("Research workflow started",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
		zap.String("subject", subjectOf(user)),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"workflow_id": run.GetID(),
		"run_id":      run.GetRunID(),
		"status":      research.StatusRunning,
	})
}

func (h *SessionsHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	wf := r.PathValue("workflow_id")
	st, status, err := h.status(r.Context(), wf, r.URL.Query().Get("run_id"))
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *SessionsHandler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	wf := r.PathValue("workflow_id")
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("answer decode error", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}

	st, code, err := h.status(r.Context(), wf, req.RunID)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	if st.Status != research.StatusAwaitingInput {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  research.ErrNotAwaitingInput.Error(),
			"status": st.Status,
			"phase":  st.Phase,
		})
		return
	}

	user, _ := auth.GetUserContext(r.Context())
	payload := workflows.AnswerSignal{Answer: req.Answer, AnsweredBy: subjectOf(user)}

	ctx, cancel := context.WithTimeout(r.Context(), temporalCallTimeout)
	defer cancel()
	if err := h.temporal.SignalWorkflow(ctx, wf, req.RunID, constants.SignalAnswer, payload); err != nil {
		h.logger.Error("failed to signal workflow", zap.String("workflow_id", wf), zap.String("run_id", req.RunID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to signal workflow")
		return
	}
	h.logger.Info("Clarification answer forwarded",
		zap.String("workflow_id", wf),
		zap.String("answered_by", payload.AnsweredBy),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "sent",
		"workflow_id": wf,
		"question":    st.Question,
	})
}

// status queries the workflow. The int is the HTTP status for the error.
func (h *SessionsHandler) status(ctx context.Context, wf, runID string) (workflows.SessionStatus, int, error) {
	var st workflows.SessionStatus
	if wf == "" {
		return st, http.StatusBadRequest, errors.New("workflow_id required")
	}
	ctx, cancel := context.WithTimeout(ctx, temporalCallTimeout)
	defer cancel()
	v, err := h.temporal.QueryWorkflow(ctx, wf, runID, constants.QueryStatus)
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			return st, http.StatusNotFound, errors.New("workflow not found")
		}
		h.logger.Warn("status query failed", zap.String("workflow_id", wf), zap.Error(err))
		return st, http.StatusBadGateway, errors.New("failed to query workflow")
	}
	if err := v.Get(&st); err != nil {
		return st, http.StatusBadGateway, errors.New("failed to decode workflow status")
	}
	return st, http.StatusOK, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func subjectOf(u *auth.UserContext) string {
	if u == nil {
		return ""
	}
	return u.Subject
}
