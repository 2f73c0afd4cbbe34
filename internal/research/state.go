package research

import (
	"errors"
	"strings"
	"time"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
)

// Status is the persisted pipeline status.
type Status string

const (
	StatusRunning       Status = "RUNNING"
	StatusAwaitingInput Status = "AWAITING_INPUT"
	StatusDone          Status = "DONE"
)

var (
	// ErrNotAwaitingInput is returned by Resume when the session holds no
	// pending question.
	ErrNotAwaitingInput = errors.New("research: session is not awaiting input")
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("research: session not found")
	// ErrEmptyBrief is returned when a synthesized brief has no text.
	ErrEmptyBrief = errors.New("research: brief text is empty")
	// ErrCompilation wraps failures of the final report call.
	ErrCompilation = errors.New("research: report compilation failed")
	// ErrStatusConflict is returned when a status transition loses a race.
	ErrStatusConflict = errors.New("research: status changed concurrently")
)

// Brief is the structured synthesis of a clarified request. It is not
// modified after creation.
type Brief struct {
	Text     string   `json:"text"`
	KeyAreas []string `json:"key_areas"`
	Depth    Depth    `json:"depth"`
}

// NewBrief validates text and normalizes depth.
func NewBrief(text string, keyAreas []string, depth string) (*Brief, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyBrief
	}
	areas := make([]string, 0, len(keyAreas))
	for _, a := range keyAreas {
		if a = strings.TrimSpace(a); a != "" {
			areas = append(areas, a)
		}
	}
	return &Brief{Text: text, KeyAreas: areas, Depth: ParseDepth(depth)}, nil
}

// State is the session record threaded through the pipeline.
type State struct {
	ID                  string        `json:"id"`
	Messages            []llm.Message `json:"messages"`
	Brief               *Brief        `json:"brief,omitempty"`
	SupervisorMessages  []llm.Message `json:"supervisor_messages,omitempty"`
	Notes               []string      `json:"notes"`
	RawNotes            []string      `json:"raw_notes"`
	Iterations          int           `json:"iterations"`
	Status              Status        `json:"status"`
	PendingQuestion     string        `json:"pending_question,omitempty"`
	ClarificationRounds int           `json:"clarification_rounds"`
	Report              string        `json:"report,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = cloneMessages(s.Messages)
	c.SupervisorMessages = cloneMessages(s.SupervisorMessages)
	c.Notes = append([]string(nil), s.Notes...)
	c.RawNotes = append([]string(nil), s.RawNotes...)
	if s.Brief != nil {
		b := *s.Brief
		b.KeyAreas = append([]string(nil), s.Brief.KeyAreas...)
		c.Brief = &b
	}
	return &c
}

func cloneMessages(in []llm.Message) []llm.Message {
	if in == nil {
		return nil
	}
	out := make([]llm.Message, len(in))
	for i, m := range in {
		out[i] = m
		if m.ToolCalls != nil {
			out[i].ToolCalls = append([]llm.ToolCall(nil), m.ToolCalls...)
		}
	}
	return out
}

// ResultKind flags a worker outcome.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultError   ResultKind = "error"
)

// WorkerResult correlates a dispatched action with its outcome.
type WorkerResult struct {
	ActionID string     `json:"action_id"`
	Tool     string     `json:"tool"`
	Kind     ResultKind `json:"kind"`
	Content  string     `json:"content"`
	RawNotes []string   `json:"raw_notes,omitempty"`
}

// Failed reports whether the result is error-flagged.
func (r WorkerResult) Failed() bool { return r.Kind == ResultError }

// Findings is the terminal output of a research worker.
type Findings struct {
	Compressed string
	RawNotes   []string
}
