package research

import (
	"context"
	"time"
)

// Progress event types.
const (
	EventStatus        = "STATUS"
	EventClarification = "CLARIFICATION_REQUESTED"
	EventBrief         = "BRIEF_READY"
	EventPlanning      = "PLANNING"
	EventDispatch      = "DISPATCH"
	EventRoundComplete = "ROUND_COMPLETE"
	EventReport        = "REPORT_READY"
	EventError         = "ERROR"
)

// Event is a free-text progress notification.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter receives progress events. Implementations must not block the
// pipeline; delivery is best effort.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev Event)

func (f EmitterFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

func emit(ctx context.Context, e Emitter, sessionID, typ, agentID, msg string) {
	if e == nil {
		return
	}
	e.Emit(ctx, Event{
		SessionID: sessionID,
		Type:      typ,
		AgentID:   agentID,
		Message:   msg,
		Timestamp: time.Now(),
	})
}

// EmitStatus sends a status event for sessionID through e.
func EmitStatus(ctx context.Context, e Emitter, sessionID, agentID, msg string) {
	emit(ctx, e, sessionID, EventStatus, agentID, msg)
}

// MultiEmitter forwards each event to every non-nil emitter in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, ev)
		}
	}
}
