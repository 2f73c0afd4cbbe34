package activities

import (
	"time"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/research"
)

// InitSessionInput creates the persisted state for a workflow run.
type InitSessionInput struct {
	SessionID string          `json:"session_id"`
	Messages  []llm.Message   `json:"messages,omitempty"`
	Brief     *research.Brief `json:"brief,omitempty"`
}

// SessionRef names an existing session.
type SessionRef struct {
	SessionID string `json:"session_id"`
}

// AnswerInput carries the user's reply to the pending question.
type AnswerInput struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// SessionSnapshot is the part of session state a workflow branches on.
type SessionSnapshot struct {
	SessionID           string          `json:"session_id"`
	Status              research.Status `json:"status"`
	Question            string          `json:"question,omitempty"`
	HasBrief            bool            `json:"has_brief"`
	ClarificationRounds int             `json:"clarification_rounds"`
	Iterations          int             `json:"iterations"`
}

// RoundResult reports one supervisor planning and dispatch pass.
type RoundResult struct {
	Done       bool `json:"done"`
	Iterations int  `json:"iterations"`
	Notes      int  `json:"notes"`
}

// ReportResult is the compiled report of a finished session.
type ReportResult struct {
	Report     string `json:"report"`
	Notes      int    `json:"notes"`
	Iterations int    `json:"iterations"`
}

// EmitProgressInput publishes a workflow-level progress event.
type EmitProgressInput struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func snapshotOf(st *research.State) SessionSnapshot {
	return SessionSnapshot{
		SessionID:           st.ID,
		Status:              st.Status,
		Question:            st.PendingQuestion,
		HasBrief:            st.Brief != nil,
		ClarificationRounds: st.ClarificationRounds,
		Iterations:          st.Iterations,
	}
}
