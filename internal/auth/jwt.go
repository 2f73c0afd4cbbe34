package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer   = "deepresearch"
	DefaultTokenTTL = 24 * time.Hour
)

var (
	ErrEmptySecret   = errors.New("jwt secret is empty")
	ErrInvalidHeader = errors.New("invalid authorization header format")
)

// JWTManager signs and validates HS256 access tokens
type JWTManager struct {
	signingKey []byte
	expiry     time.Duration
	issuer     string
	now        func() time.Time
}

// NewJWTManager creates a new JWT manager. Empty issuer and zero expiry fall
// back to defaults.
func NewJWTManager(signingKey, issuer string, expiry time.Duration) (*JWTManager, error) {
	if signingKey == "" {
		return nil, ErrEmptySecret
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if expiry <= 0 {
		expiry = DefaultTokenTTL
	}
	return &JWTManager{
		signingKey: []byte(signingKey),
		expiry:     expiry,
		issuer:     issuer,
		now:        time.Now,
	}, nil
}

// CustomClaims represents the custom JWT claims
type CustomClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// Issue creates a token for subject. ttl <= 0 uses the manager default and
// nil scopes become DefaultScopes.
func (j *JWTManager) Issue(subject string, scopes []string, ttl time.Duration) (*Token, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("subject is required")
	}
	if ttl <= 0 {
		ttl = j.expiry
	}
	if scopes == nil {
		scopes = DefaultScopes
	}
	now := j.now()
	exp := now.Add(ttl)
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Scopes: scopes,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: exp.Truncate(time.Second)}, nil
}

// ValidateAccessToken validates and parses a JWT access token
func (j *JWTManager) ValidateAccessToken(tokenString string) (*UserContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.signingKey, nil
	},
		jwt.WithIssuer(j.issuer),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	uc := &UserContext{
		Subject:   claims.Subject,
		Scopes:    claims.Scopes,
		TokenID:   claims.ID,
		TokenType: "jwt",
	}
	if claims.ExpiresAt != nil {
		uc.ExpiresAt = claims.ExpiresAt.Time
	}
	return uc, nil
}

// ExtractBearerToken extracts the token from Authorization header
func ExtractBearerToken(authHeader string) (string, error) {
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return "", ErrInvalidHeader
	}
	tok := strings.TrimSpace(authHeader[7:])
	if tok == "" {
		return "", ErrInvalidHeader
	}
	return tok, nil
}
