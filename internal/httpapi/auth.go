package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/auth"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(subject string, scopes []string, ttl time.Duration) (*auth.Token, error)
}

// AuthHTTPHandler lets an admin mint scoped tokens for clients.
//
//	POST /auth/token
type AuthHTTPHandler struct {
	issuer TokenIssuer
	logger *zap.Logger
}

// NewAuthHTTPHandler constructs a new handler.
func NewAuthHTTPHandler(issuer TokenIssuer, logger *zap.Logger) *AuthHTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHTTPHandler{issuer: issuer, logger: logger}
}

// RegisterRoutes registers auth endpoints on the given mux.
func (h *AuthHTTPHandler) RegisterRoutes(mux *http.ServeMux, mw *auth.Middleware) {
	mux.Handle("POST /auth/token", mw.RequireScope(auth.ScopeAdmin, http.HandlerFunc(h.handleIssue)))
}

type issueRequest struct {
	Subject string   `json:"subject"`
	Scopes  []string `json:"scopes,omitempty"`
	TTL     string   `json:"ttl,omitempty"`
}

func (h *AuthHTTPHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}
	var ttl time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "ttl must be a positive duration")
			return
		}
		ttl = d
	}

	tok, err := h.issuer.Issue(req.Subject, req.Scopes, ttl)
	if err != nil {
		h.logger.Warn("Token issue failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, sanitizeErr(err.Error()))
		return
	}
	issuedBy, _ := auth.GetUserContext(r.Context())
	h.logger.Info("Token issued",
		zap.String("subject", req.Subject),
		zap.Strings("scopes", req.Scopes),
		zap.String("issued_by", subjectOf(issuedBy)),
	)
	writeJSON(w, http.StatusOK, tok)
}

// writeJSON writes a JSON response with status and content-type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// sanitizeErr trims error messages for safe client output (UTF-8 safe).
func sanitizeErr(s string) string {
	runes := []rune(s)
	if len(runes) > 200 {
		return string(runes[:200])
	}
	return s
}
