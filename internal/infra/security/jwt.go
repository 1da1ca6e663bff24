package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// Token type discriminators carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ScopePasswordReset marks a refresh token handed out by the password reset
// start step. Such a token can only finish the reset; it can never rehydrate
// a session or mint an access token.
const ScopePasswordReset = "password_reset"

var (
	// ErrTokenInvalid indicates a malformed, tampered, or mistyped token.
	ErrTokenInvalid = errors.New("jwt: token invalid")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("jwt: token expired")
)

// SessionClaims binds a user identity, its role set, and the CSRF value
// paired with the token. Subject carries the user id.
type SessionClaims struct {
	Username  string   `json:"username"`
	Roles     []string `json:"roles,omitempty"`
	Source    string   `json:"src,omitempty"`
	CSRF      string   `json:"csrf"`
	TokenType string   `json:"typ"`
	Scope     string   `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// SessionClaimsOptions configures claim construction.
type SessionClaimsOptions struct {
	UserID    string
	Username  string
	Roles     []string
	Source    string
	TokenType string
	Scope     string
	Issuer    string
	TTL       time.Duration
	IssuedAt  time.Time
}

// NewSessionClaims constructs claims with a freshly generated CSRF value.
func NewSessionClaims(opts SessionClaimsOptions) (*SessionClaims, error) {
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		return nil, fmt.Errorf("jwt: user id is required")
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}
	if opts.TokenType != TokenTypeAccess && opts.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("jwt: unknown token type %q", opts.TokenType)
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("jwt: ttl must be positive")
	}

	now := opts.IssuedAt
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}

	return &SessionClaims{
		Username:  strings.TrimSpace(opts.Username),
		Roles:     opts.Roles,
		Source:    opts.Source,
		CSRF:      uuid.NewString(),
		TokenType: opts.TokenType,
		Scope:     strings.TrimSpace(opts.Scope),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(opts.TTL)),
			ID:        uuid.NewString(),
		},
	}, nil
}

// SignSessionToken signs the claims with the provider's active key.
func SignSessionToken(provider KeyProvider, kid string, claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("jwt: claims required")
	}
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return "", fmt.Errorf("jwt: key identifier required")
	}

	signingKey, err := provider.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// ParseSessionToken verifies signature, issuer, expiry, and token type.
// Tampered or mistyped tokens yield ErrTokenInvalid; expired ones
// ErrTokenExpired. Partial trust is never extended.
func ParseSessionToken(provider KeyProvider, issuer, tokenType, raw string) (*SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenInvalid
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("missing kid header")
		}
		return provider.GetVerificationKey(kid)
	}, jwt.WithIssuer(issuer), jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !parsed.Valid || claims.TokenType != tokenType {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
