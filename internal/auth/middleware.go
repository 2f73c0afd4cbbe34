package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ContextKey is the key type for context values
type ContextKey string

const (
	// UserContextKey is the context key for user information
	UserContextKey ContextKey = "user"
)

var (
	ErrUnauthenticated = errors.New("missing user context")
	ErrForbidden       = errors.New("missing required scope")
)

// Middleware authenticates HTTP requests with bearer tokens
type Middleware struct {
	jwtManager *JWTManager
	skipAuth   bool // For development/testing
	logger     *zap.Logger
}

// NewMiddleware creates a new authentication middleware. A nil manager or
// skipAuth lets every request through as a dev caller.
func NewMiddleware(jwtManager *JWTManager, skipAuth bool, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{jwtManager: jwtManager, skipAuth: skipAuth || jwtManager == nil, logger: logger}
}

// HTTPMiddleware provides HTTP authentication middleware
func (m *Middleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipAuth {
			ctx := WithUserContext(r.Context(), &UserContext{
				Subject:   "dev",
				Scopes:    []string{ScopeAdmin},
				TokenType: "dev",
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		raw := ""
		if h := r.Header.Get("Authorization"); h != "" {
			tok, err := ExtractBearerToken(h)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid authorization header")
				return
			}
			raw = tok
		} else if q := r.URL.Query().Get("token"); q != "" {
			// Browser EventSource and WebSocket clients cannot set headers
			raw = q
		}
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "Bearer token is required")
			return
		}

		userCtx, err := m.jwtManager.ValidateAccessToken(raw)
		if err != nil {
			m.logger.Debug("Rejected token", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), userCtx)))
	})
}

// RequireScope wraps next so that callers without scope get 403.
func (m *Middleware) RequireScope(scope string, next http.Handler) http.Handler {
	return m.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := RequireScopes(r.Context(), scope); err != nil {
			status := http.StatusForbidden
			if errors.Is(err, ErrUnauthenticated) {
				status = http.StatusUnauthorized
			}
			writeError(w, status, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// RequireScopes checks if the user has the required scopes
func RequireScopes(ctx context.Context, requiredScopes ...string) error {
	userCtx, err := GetUserContext(ctx)
	if err != nil {
		return err
	}
	for _, required := range requiredScopes {
		if !userCtx.HasScope(required) {
			return fmt.Errorf("%w: %s", ErrForbidden, required)
		}
	}
	return nil
}

// WithUserContext attaches an authenticated caller to ctx.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, UserContextKey, uc)
}

// GetUserContext extracts user context from context
func GetUserContext(ctx context.Context) (*UserContext, error) {
	userCtx, ok := ctx.Value(UserContextKey).(*UserContext)
	if !ok || userCtx == nil {
		return nil, ErrUnauthenticated
	}
	return userCtx, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"error\":%q}\n", msg)
}
