package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
	"github.com/Wittle-South-LLC/olsnet/internal/core/port"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/logger"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/security"
	"github.com/Wittle-South-LLC/olsnet/internal/repository"
)

const (
	resetCodeLength = 6
	resetTTL        = 15 * time.Minute

	passwordResetRateLimitScope = "password_reset"

	resetMailSubject = "OurLifeStories.net Password Reset Code"
)

// PasswordResetService runs the two-step challenge and response reset flow.
// A challenge binds a short numeric code to the account for a fixed window;
// the response must arrive on the refresh token issued with the challenge.
type PasswordResetService struct {
	cfg        *config.AppConfig
	users      port.UserRepository
	tokens     *TokenService
	rateLimits port.RateLimitStore
	mailer     port.Mailer
	events     port.EventPublisher
	validator  *security.PasswordValidator
	logger     *zap.Logger
	now        func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(cfg *config.AppConfig, users port.UserRepository, tokens *TokenService, rateLimits port.RateLimitStore, mailer port.Mailer, events port.EventPublisher, validator *security.PasswordValidator, log *zap.Logger) *PasswordResetService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &PasswordResetService{
		cfg:        cfg,
		users:      users,
		tokens:     tokens,
		rateLimits: rateLimits,
		mailer:     mailer,
		events:     events,
		validator:  validator,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *PasswordResetService) WithClock(now func() time.Time) {
	s.now = now
}

// StartResetResult carries the refresh token minted at challenge time. The
// transport layer turns it into the refresh cookie pair; the reset code
// itself only ever travels by email.
type StartResetResult struct {
	UserID       string
	RefreshToken string
	RefreshCSRF  string
	ExpiresAt    time.Time
}

// Start opens a reset challenge for the account that owns the email. At most
// one challenge may be open per account; the conditional write in the
// repository closes the race between concurrent starts.
func (s *PasswordResetService) Start(ctx context.Context, email, ip string) (*StartResetResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmailNotFound
	}

	now := s.now().UTC()
	if err := s.enforceResetRateLimit(ctx, email, ip, now); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEmailNotFound
		}
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	code, err := security.GenerateNumericCode(resetCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate reset code: %w", err)
	}

	expiresAt := now.Add(resetTTL)
	if err := s.users.SetResetChallenge(ctx, user.ID, code, expiresAt, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrResetInFlight
		}
		return nil, fmt.Errorf("store reset challenge: %w", err)
	}

	// The challenge is persisted; delivery problems must not roll it back,
	// otherwise a flaky relay turns into a reset denial of service.
	if err := s.sendResetMail(ctx, user.Email, code); err != nil {
		s.logger.Error("reset code delivery failed",
			zap.String("user_id", user.ID),
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err))
	}

	refreshToken, refreshCSRF, err := s.tokens.IssueResetToken(*user)
	if err != nil {
		return nil, fmt.Errorf("issue reset refresh token: %w", err)
	}

	if s.events != nil {
		event := domain.PasswordResetRequestedEvent{
			EventID:     uuid.NewString(),
			UserID:      user.ID,
			RequestedAt: now,
			ExpiresAt:   expiresAt,
			MaskedEmail: logger.MaskEmail(user.Email),
		}
		if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
			s.logger.Warn("publish reset requested event failed", zap.Error(err))
		}
	}

	s.logger.Info("reset challenge opened",
		zap.String("user_id", user.ID),
		zap.Time("expires_at", expiresAt))

	return &StartResetResult{
		UserID:       user.ID,
		RefreshToken: refreshToken,
		RefreshCSRF:  refreshCSRF,
		ExpiresAt:    expiresAt,
	}, nil
}

// Finish redeems a challenge. The identity comes exclusively from the
// verified refresh token claims; email and code from the payload only
// corroborate it. The conditional update in the repository makes redemption
// single use even under concurrent submissions.
func (s *PasswordResetService) Finish(ctx context.Context, claims *security.SessionClaims, email, code, newPassword string) error {
	if claims == nil || claims.Scope != security.ScopePasswordReset {
		return security.ErrTokenInvalid
	}
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrResetCodeInvalid
	}

	if err := s.validator.Validate(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if !strings.EqualFold(user.Email, email) {
		return ErrResetEmailMismatch
	}

	now := s.now().UTC()
	if !user.HasOpenResetChallenge(now) {
		return ErrResetCodeInvalid
	}
	if !security.ConstantTimeEquals(*user.ResetCode, code) {
		return ErrResetCodeInvalid
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.CompleteReset(ctx, user.ID, code, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The code was redeemed or replaced between the read and the
			// conditional write.
			return ErrResetCodeInvalid
		}
		return fmt.Errorf("complete reset: %w", err)
	}

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:   uuid.NewString(),
			UserID:    user.ID,
			ChangedAt: now,
			ChangedBy: user.ID,
			Reason:    "password_reset",
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event failed", zap.Error(err))
		}
	}

	s.logger.Info("reset challenge redeemed", zap.String("user_id", user.ID))

	return nil
}

func (s *PasswordResetService) sendResetMail(ctx context.Context, email, code string) error {
	if s.mailer == nil {
		return fmt.Errorf("no mailer configured")
	}

	text := fmt.Sprintf("Your password reset code is %s. It expires in 15 minutes. If you did not request a reset, you can ignore this message.", code)
	html := fmt.Sprintf("<p>Your password reset code is <strong>%s</strong>.</p><p>It expires in 15 minutes. If you did not request a reset, you can ignore this message.</p>", code)

	return s.mailer.Send(ctx, email, resetMailSubject, text, html)
}

func (s *PasswordResetService) enforceResetRateLimit(ctx context.Context, email, ip string, now time.Time) error {
	if s.rateLimits == nil {
		return nil
	}

	limit := s.cfg.RateLimit.PasswordResetMaxAttempts
	if limit <= 0 {
		return nil
	}
	window := s.cfg.RateLimit.WindowDuration
	if window <= 0 {
		return nil
	}

	storageKey := fmt.Sprintf("%s:%s:%s", passwordResetRateLimitScope, strings.ToLower(email), ip)

	if err := s.rateLimits.TrimWindow(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("reset rate limit trim failed", zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("reset rate limit count failed", zap.Error(err))
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
			s.logger.Warn("reset rate limit oldest lookup failed", zap.Error(err))
		}
		return &RateLimitExceededError{Scope: passwordResetRateLimitScope, RetryAfter: retryAfter}
	}

	if err := s.rateLimits.RecordAttempt(ctx, storageKey, now); err != nil {
		s.logger.Warn("reset rate limit record failed", zap.Error(err))
	}

	return nil
}
