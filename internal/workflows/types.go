package workflows

import (
	"time"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/research"
)

// Phases reported by the status query.
const (
	PhaseScoping       = "scoping"
	PhaseAwaitingInput = "awaiting_input"
	PhaseResearching   = "researching"
	PhaseCompiling     = "compiling"
	PhaseDone          = "done"
	PhaseFailed        = "failed"
)

// Defaults applied when ResearchInput leaves a timeout unset.
const (
	DefaultActivityTimeout  = 30 * time.Minute
	DefaultHeartbeatTimeout = 2 * time.Minute
	DefaultAnswerTimeout    = 24 * time.Hour
)

// ResearchInput starts a DeepResearchWorkflow. The workflow id becomes the
// session id.
type ResearchInput struct {
	Messages []llm.Message   `json:"messages,omitempty"`
	Brief    *research.Brief `json:"brief,omitempty"`

	ActivityTimeout  time.Duration `json:"activity_timeout,omitempty"`
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout,omitempty"`
	// AnswerTimeout bounds the wait for a clarification answer. Negative
	// waits forever.
	AnswerTimeout time.Duration `json:"answer_timeout,omitempty"`
}

// ResearchResult is the workflow's return value.
type ResearchResult struct {
	SessionID  string          `json:"session_id"`
	Status     research.Status `json:"status"`
	Question   string          `json:"question,omitempty"`
	Report     string          `json:"report,omitempty"`
	Iterations int             `json:"iterations"`
	Notes      int             `json:"notes"`
}

// AnswerSignal is the payload of the answer signal.
type AnswerSignal struct {
	Answer     string `json:"answer"`
	AnsweredBy string `json:"answered_by,omitempty"`
}

// SessionStatus is returned by the status query.
type SessionStatus struct {
	SessionID           string          `json:"session_id"`
	Phase               string          `json:"phase"`
	Status              research.Status `json:"status"`
	Question            string          `json:"question,omitempty"`
	ClarificationRounds int             `json:"clarification_rounds"`
	Iterations          int             `json:"iterations"`
	Notes               int             `json:"notes"`
	Error               string          `json:"error,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (in ResearchInput) withDefaults() ResearchInput {
	if in.ActivityTimeout <= 0 {
		in.ActivityTimeout = DefaultActivityTimeout
	}
	if in.HeartbeatTimeout <= 0 {
		in.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if in.AnswerTimeout == 0 {
		in.AnswerTimeout = DefaultAnswerTimeout
	}
	return in
}
