package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/deepresearch/internal/research"
)

// SaveEventLog inserts a new research_events row.
func (c *Client) SaveEventLog(ctx context.Context, e *EventLog) error {
	if e == nil {
		return nil
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO research_events (id, session_id, type, agent_id, message, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Type, e.AgentID, e.Message, e.Timestamp, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save event log: %w", err)
	}
	return nil
}

// ListEventLogs returns a session's events in emission order.
func (c *Client) ListEventLogs(ctx context.Context, sessionID string) ([]EventLog, error) {
	var out []EventLog
	err := c.db.SelectContext(ctx, &out, `
		SELECT id, session_id, type, agent_id, message, timestamp, created_at
		FROM research_events
		WHERE session_id = ?
		ORDER BY timestamp ASC, created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event logs: %w", err)
	}
	return out, nil
}

// EventRecorder persists progress events through the async write queue.
// It implements research.Emitter.
type EventRecorder struct {
	c *Client
}

// NewEventRecorder creates a recorder over c.
func NewEventRecorder(c *Client) *EventRecorder { return &EventRecorder{c: c} }

func (r *EventRecorder) Emit(_ context.Context, ev research.Event) {
	r.c.QueueWrite(WriteTypeEventLog, &EventLog{
		SessionID: ev.SessionID,
		Type:      ev.Type,
		AgentID:   stringPtr(ev.AgentID),
		Message:   stringPtr(ev.Message),
		Timestamp: ev.Timestamp,
	}, nil)
}
