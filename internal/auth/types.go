package auth

import (
	"slices"
	"time"
)

// UserContext represents the authenticated caller of a request
type UserContext struct {
	Subject   string    `json:"subject"`
	Scopes    []string  `json:"scopes"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"` // jwt or dev
}

// HasScope reports whether the caller was granted scope.
func (u *UserContext) HasScope(scope string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Scopes, scope) || slices.Contains(u.Scopes, ScopeAdmin)
}

// Token is an issued access token
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Scopes for authorization
const (
	ScopeSessionsRead   = "sessions:read"   // stream progress, read reports
	ScopeSessionsAnswer = "sessions:answer" // answer clarifying questions
	ScopeSessionsWrite  = "sessions:write"  // start new research sessions
	ScopeAdmin          = "admin"
)

// DefaultScopes is what a token carries when none are requested.
var DefaultScopes = []string{ScopeSessionsRead, ScopeSessionsAnswer, ScopeSessionsWrite}
