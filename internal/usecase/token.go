package usecase

import (
	"fmt"
	"time"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/security"
)

// TokenPair bundles the signed access and refresh tokens with the CSRF
// values embedded in each. The CSRF values go into readable cookies while
// the tokens themselves ride in HTTP-only cookies.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	CSRFAccess   string
	CSRFRefresh  string
}

// TokenService issues and verifies the signed session token pair.
type TokenService struct {
	keys       security.KeyProvider
	signingKID string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService constructs a TokenService from the JWT settings.
func NewTokenService(keys security.KeyProvider, signingKID string, cfg config.JWTSettings) *TokenService {
	return &TokenService{
		keys:       keys,
		signingKID: signingKID,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *TokenService) WithClock(now func() time.Time) {
	s.now = now
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// Issue mints a fresh access+refresh pair for the user. Each token carries
// its own CSRF value.
func (s *TokenService) Issue(user domain.User) (*TokenPair, error) {
	issuedAt := s.now().UTC()

	access, accessCSRF, err := s.mint(user, security.TokenTypeAccess, "", s.accessTTL, issuedAt)
	if err != nil {
		return nil, err
	}

	refresh, refreshCSRF, err := s.mint(user, security.TokenTypeRefresh, "", s.refreshTTL, issuedAt)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		CSRFAccess:   accessCSRF,
		CSRFRefresh:  refreshCSRF,
	}, nil
}

// IssueResetToken mints a refresh token scoped to the password reset flow.
// The reset start step hands one out at challenge time so the finish step can
// prove continuity of client; the scope claim keeps it from rehydrating a
// session or minting an access token.
func (s *TokenService) IssueResetToken(user domain.User) (string, string, error) {
	return s.mint(user, security.TokenTypeRefresh, security.ScopePasswordReset, s.refreshTTL, s.now().UTC())
}

func (s *TokenService) mint(user domain.User, tokenType, scope string, ttl time.Duration, issuedAt time.Time) (string, string, error) {
	claims, err := security.NewSessionClaims(security.SessionClaimsOptions{
		UserID:    user.ID,
		Username:  user.Username,
		Roles:     user.Roles,
		Source:    user.Source,
		TokenType: tokenType,
		Scope:     scope,
		Issuer:    s.issuer,
		TTL:       ttl,
		IssuedAt:  issuedAt,
	})
	if err != nil {
		return "", "", fmt.Errorf("build %s claims: %w", tokenType, err)
	}

	signed, err := security.SignSessionToken(s.keys, s.signingKID, claims)
	if err != nil {
		return "", "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}

	return signed, claims.CSRF, nil
}

// VerifyAccess parses and validates an access token.
func (s *TokenService) VerifyAccess(raw string) (*security.SessionClaims, error) {
	return security.ParseSessionToken(s.keys, s.issuer, security.TokenTypeAccess, raw)
}

// VerifyRefresh parses and validates a refresh token.
func (s *TokenService) VerifyRefresh(raw string) (*security.SessionClaims, error) {
	return security.ParseSessionToken(s.keys, s.issuer, security.TokenTypeRefresh, raw)
}
