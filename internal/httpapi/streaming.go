package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/auth"
	"github.com/Kocoro-lab/deepresearch/internal/research"
	"github.com/Kocoro-lab/deepresearch/internal/streaming"
)

const (
	sseHeartbeat  = 15 * time.Second
	streamBufSize = 64
)

// Subscriber is the part of streaming.Manager the stream endpoints use.
type Subscriber interface {
	Subscribe(ctx context.Context, workflowID string, since uint64, out chan<- streaming.Event) error
}

// StreamingHandler serves SSE and WebSocket endpoints for session events.
type StreamingHandler struct {
	mgr    Subscriber
	logger *zap.Logger
}

func NewStreamingHandler(mgr Subscriber, logger *zap.Logger) *StreamingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamingHandler{mgr: mgr, logger: logger}
}

// RegisterRoutes registers stream routes guarded by the sessions:read scope.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux, mw *auth.Middleware) {
	mux.Handle("GET /stream/sse", mw.RequireScope(auth.ScopeSessionsRead, http.HandlerFunc(h.handleSSE)))
	mux.Handle("GET /stream/ws", mw.RequireScope(auth.ScopeSessionsRead, http.HandlerFunc(h.handleWS)))
}

type streamRequest struct {
	workflowID string
	since      uint64
	types      map[string]struct{}
}

func parseStreamRequest(r *http.Request) (streamRequest, error) {
	q := r.URL.Query()
	req := streamRequest{workflowID: q.Get("workflow_id"), types: map[string]struct{}{}}
	if req.workflowID == "" {
		return req, fmt.Errorf("workflow_id required")
	}
	// Optional: type filter (comma-separated)
	if s := q.Get("types"); s != "" {
		for _, t := range strings.Split(s, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.types[t] = struct{}{}
			}
		}
	}
	// Last-Event-ID header wins over the query param
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			req.since = n
		}
	} else if v := q.Get("last_event_id"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			req.since = n
		}
	}
	return req, nil
}

func (s streamRequest) wants(ev streaming.Event) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[ev.Type]
	return ok
}

// terminal reports whether ev ends a session's stream.
func terminal(ev streaming.Event) bool {
	return ev.Type == research.EventReport
}

// follow subscribes in the background. The returned error channel yields
// once when the subscription ends.
func (h *StreamingHandler) follow(ctx context.Context, req streamRequest) (<-chan streaming.Event, <-chan error) {
	events := make(chan streaming.Event, streamBufSize)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.mgr.Subscribe(ctx, req.workflowID, req.since, events)
	}()
	return events, errCh
}

// handleSSE streams events for a workflow via Server-Sent Events.
// GET /stream/sse?workflow_id=<id>&types=a,b&last_event_id=<seq>
func (h *StreamingHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	req, err := parseStreamRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events, errCh := h.follow(ctx, req)

	fmt.Fprintf(w, ": connected to workflow %s\n\n", req.workflowID)
	flusher.Flush()

	hb := time.NewTicker(sseHeartbeat)
	defer hb.Stop()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected", zap.String("workflow_id", req.workflowID))
			return
		case err := <-errCh:
			if err != nil {
				h.logger.Warn("SSE subscription failed", zap.String("workflow_id", req.workflowID), zap.Error(err))
				fmt.Fprintf(w, "event: %s\ndata: {\"error\":%q}\n\n", research.EventError, err.Error())
				flusher.Flush()
			}
			return
		case ev := <-events:
			if req.wants(ev) {
				writeSSE(w, ev)
				flusher.Flush()
			}
			if terminal(ev) {
				return
			}
		case <-hb.C:
			// Heartbeat to keep connections alive through proxies
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev streaming.Event) {
	if ev.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", ev.Seq)
	}
	if ev.Type != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Type)
	}
	fmt.Fprintf(w, "data: %s\n\n", ev.Marshal())
}
