package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
	"github.com/Wittle-South-LLC/olsnet/internal/core/port"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/logger"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/security"
	"github.com/Wittle-South-LLC/olsnet/internal/repository"
)

const loginRateLimitScope = "login"

// AuthService coordinates credential authentication and session rehydration.
type AuthService struct {
	cfg        *config.AppConfig
	users      port.UserRepository
	tokens     *TokenService
	rateLimits port.RateLimitStore
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(cfg *config.AppConfig, users port.UserRepository, tokens *TokenService, rateLimits port.RateLimitStore, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthService{
		cfg:        cfg,
		users:      users,
		tokens:     tokens,
		rateLimits: rateLimits,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *AuthService) WithClock(now func() time.Time) {
	s.now = now
}

// LoginResult carries the authenticated user and the freshly minted tokens.
type LoginResult struct {
	User   domain.User
	Tokens TokenPair
}

// Login authenticates a username+password pair and issues a token pair. The
// password hash never leaves this method.
func (s *AuthService) Login(ctx context.Context, username, password, ip string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.enforceLoginRateLimit(ctx, username, ip, now); err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.PasswordHash == "" {
		// External accounts have no local password.
		return nil, ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.logger.Info("login rejected",
			zap.String("username", username),
			zap.String("ip", logger.MaskIP(ip)))
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	s.logger.Info("login succeeded",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username))

	return &LoginResult{User: sanitized, Tokens: *pair}, nil
}

// Rehydrate loads the current account state for an already verified access
// token. The repository is the source of truth, not the claims.
func (s *AuthService) Rehydrate(ctx context.Context, claims *security.SessionClaims) (*domain.User, error) {
	if claims == nil {
		return nil, security.ErrTokenInvalid
	}
	// Scoped tokens, such as the password reset refresh token, carry no
	// session privileges.
	if claims.Scope != "" {
		return nil, security.ErrTokenInvalid
	}

	user, err := s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	return &sanitized, nil
}

// Refresh mints a new token pair from a verified refresh token.
func (s *AuthService) Refresh(ctx context.Context, claims *security.SessionClaims) (*LoginResult, error) {
	user, err := s.Rehydrate(ctx, claims)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	return &LoginResult{User: *user, Tokens: *pair}, nil
}

// enforceLoginRateLimit applies a sliding window per username+IP. Store
// failures degrade open so an unavailable Redis does not lock everyone out.
func (s *AuthService) enforceLoginRateLimit(ctx context.Context, username, ip string, now time.Time) error {
	if s.rateLimits == nil {
		return nil
	}

	limit := s.cfg.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}
	window := s.cfg.RateLimit.WindowDuration
	if window <= 0 {
		return nil
	}

	storageKey := fmt.Sprintf("%s:%s:%s", loginRateLimitScope, strings.ToLower(username), ip)

	if err := s.rateLimits.TrimWindow(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("login rate limit trim failed", zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("login rate limit count failed", zap.Error(err))
		return nil
	}

	if count >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := s.rateLimits.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			reset := oldest.Add(window)
			if reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			s.logger.Warn("login rate limit oldest lookup failed", zap.Error(err))
		}
		return &RateLimitExceededError{Scope: loginRateLimitScope, RetryAfter: retryAfter}
	}

	if err := s.rateLimits.RecordAttempt(ctx, storageKey, now); err != nil {
		s.logger.Warn("login rate limit record failed", zap.Error(err))
	}

	return nil
}
