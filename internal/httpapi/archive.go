package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/auth"
	"github.com/Kocoro-lab/deepresearch/internal/db"
)

// ReportReader reads archived sessions.
type ReportReader interface {
	Get(ctx context.Context, sessionID string) (*db.ReportRecord, error)
	List(ctx context.Context, limit int) ([]db.ReportSummary, error)
}

// EventLogReader reads the persisted progress log of a session.
type EventLogReader interface {
	ListEventLogs(ctx context.Context, sessionID string) ([]db.EventLog, error)
}

// ArchiveHandler serves finished reports and session timelines from the
// database archive.
type ArchiveHandler struct {
	reports ReportReader
	events  EventLogReader
	logger  *zap.Logger
}

func NewArchiveHandler(reports ReportReader, events EventLogReader, logger *zap.Logger) *ArchiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveHandler{reports: reports, events: events, logger: logger}
}

func (h *ArchiveHandler) RegisterRoutes(mux *http.ServeMux, mw *auth.Middleware) {
	mux.Handle("GET /reports", mw.RequireScope(auth.ScopeSessionsRead, http.HandlerFunc(h.handleList)))
	mux.Handle("GET /reports/{session_id}", mw.RequireScope(auth.ScopeSessionsRead, http.HandlerFunc(h.handleGet)))
	mux.Handle("GET /sessions/{workflow_id}/timeline", mw.RequireScope(auth.ScopeSessionsRead, http.HandlerFunc(h.handleTimeline)))
}

// handleList: GET /reports?limit=20
func (h *ArchiveHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	out, err := h.reports.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list reports failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if out == nil {
		out = []db.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": out, "count": len(out)})
}

func (h *ArchiveHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	rec, err := h.reports.Get(r.Context(), id)
	if errors.Is(err, db.ErrReportNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		h.logger.Error("get report failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(rec.Report))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleTimeline returns the persisted event log in emission order.
func (h *ArchiveHandler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("workflow_id")
	logs, err := h.events.ListEventLogs(r.Context(), id)
	if err != nil {
		h.logger.Error("list event logs failed", zap.String("workflow_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load timeline")
		return
	}
	if len(logs) == 0 {
		writeError(w, http.StatusNotFound, "no events recorded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflow_id": id, "events": logs, "count": len(logs)})
}
