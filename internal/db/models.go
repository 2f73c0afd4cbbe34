package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StringList is a JSON array column (jsonb on postgres, text on sqlite).
type StringList []string

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// ReportRecord is an archived research session.
type ReportRecord struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	SessionID   string     `db:"session_id" json:"session_id"`
	Query       string     `db:"query" json:"query"`
	Brief       *string    `db:"brief" json:"brief,omitempty"`
	Depth       *string    `db:"depth" json:"depth,omitempty"`
	KeyAreas    StringList `db:"key_areas" json:"key_areas,omitempty"`
	Notes       StringList `db:"notes" json:"notes,omitempty"`
	Report      string     `db:"report" json:"report"`
	Iterations  int        `db:"iterations" json:"iterations"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// ReportSummary is a listing row without the report body.
type ReportSummary struct {
	SessionID   string     `db:"session_id" json:"session_id"`
	Query       string     `db:"query" json:"query"`
	Depth       *string    `db:"depth" json:"depth,omitempty"`
	Iterations  int        `db:"iterations" json:"iterations"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// EventLog represents a persisted progress event row.
type EventLog struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Type      string    `db:"type" json:"type"`
	AgentID   *string   `db:"agent_id" json:"agent_id,omitempty"`
	Message   *string   `db:"message" json:"message,omitempty"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
