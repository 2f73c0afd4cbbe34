package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/deepresearch/internal/llm"
	"github.com/Kocoro-lab/deepresearch/internal/research"
)

// ErrReportNotFound is returned when no archived report matches.
var ErrReportNotFound = errors.New("db: report not found")

const reportColumns = `id, session_id, query, brief, depth, key_areas, notes, report, iterations, status, created_at, completed_at`

// ReportStore archives finished sessions. It implements research.Archiver.
type ReportStore struct {
	c   *Client
	now func() time.Time
}

// NewReportStore creates a store over c.
func NewReportStore(c *Client) *ReportStore {
	return &ReportStore{c: c, now: time.Now}
}

// Archive upserts the session's report keyed by session id.
func (s *ReportStore) Archive(ctx context.Context, st *research.State) error {
	if st == nil {
		return errors.New("db: nil session")
	}
	return s.c.SaveReport(ctx, s.recordFor(st))
}

func (s *ReportStore) recordFor(st *research.State) *ReportRecord {
	completed := s.now()
	rec := &ReportRecord{
		ID:          uuid.New(),
		SessionID:   st.ID,
		Query:       firstUserMessage(st.Messages),
		Notes:       StringList(append([]string{}, st.Notes...)),
		Report:      st.Report,
		Iterations:  st.Iterations,
		Status:      string(st.Status),
		CreatedAt:   st.CreatedAt,
		CompletedAt: &completed,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = completed
	}
	if st.Brief != nil {
		rec.Brief = stringPtr(st.Brief.Text)
		rec.Depth = stringPtr(string(st.Brief.Depth))
		rec.KeyAreas = StringList(append([]string{}, st.Brief.KeyAreas...))
	}
	return rec
}

// Get returns the archived report for a session.
func (s *ReportStore) Get(ctx context.Context, sessionID string) (*ReportRecord, error) {
	var rec ReportRecord
	err := s.c.db.GetContext(ctx, &rec,
		`SELECT `+reportColumns+` FROM research_reports WHERE session_id = ?`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return &rec, nil
}

// List returns the most recent reports, newest first.
func (s *ReportStore) List(ctx context.Context, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []ReportSummary
	err := s.c.db.SelectContext(ctx, &out, `
		SELECT session_id, query, depth, iterations, status, created_at, completed_at
		FROM research_reports
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return out, nil
}

// SaveReport inserts or updates a report row (idempotent by session_id).
func (c *Client) SaveReport(ctx context.Context, rec *ReportRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO research_reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			brief = excluded.brief,
			depth = excluded.depth,
			key_areas = excluded.key_areas,
			notes = excluded.notes,
			report = excluded.report,
			iterations = excluded.iterations,
			status = excluded.status,
			completed_at = excluded.completed_at`,
		rec.ID, rec.SessionID, rec.Query, rec.Brief, rec.Depth, rec.KeyAreas, rec.Notes,
		rec.Report, rec.Iterations, rec.Status, rec.CreatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func firstUserMessage(msgs []llm.Message) string {
	for _, m := range msgs {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}
