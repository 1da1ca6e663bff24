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

// AccountService owns the account lifecycle: registration, external login,
// profile edits, and removal.
type AccountService struct {
	cfg       *config.AppConfig
	users     port.UserRepository
	tokens    *TokenService
	captcha   port.CaptchaVerifier
	identity  port.IdentityProvider
	events    port.EventPublisher
	validator *security.PasswordValidator
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccountService constructs an AccountService.
func NewAccountService(cfg *config.AppConfig, users port.UserRepository, tokens *TokenService, captcha port.CaptchaVerifier, identity port.IdentityProvider, events port.EventPublisher, validator *security.PasswordValidator, log *zap.Logger) *AccountService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &AccountService{
		cfg:       cfg,
		users:     users,
		tokens:    tokens,
		captcha:   captcha,
		identity:  identity,
		events:    events,
		validator: validator,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *AccountService) WithClock(now func() time.Time) {
	s.now = now
}

// RegisterInput carries a registration payload. CaptchaResponse is the raw
// challenge response forwarded to the verifier.
type RegisterInput struct {
	Username        string
	Password        string
	Email           string
	Phone           string
	FirstName       string
	LastName        string
	Roles           []string
	Preferences     map[string]any
	CaptchaResponse string
	IP              string
}

// Register creates a local account. The captcha gate runs before any
// database work, and the Admin role may not be self-assigned.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	if s.captcha != nil {
		ok, err := s.captcha.Verify(ctx, input.CaptchaResponse, input.IP)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
		}
		if !ok {
			return nil, ErrCaptchaFailed
		}
	}

	roles := input.Roles
	if len(roles) == 0 {
		roles = []string{domain.RoleUser}
	}
	for _, role := range roles {
		if role == domain.RoleAdmin && !s.cfg.App.AllowAdminBootstrap {
			return nil, ErrCannotAssignAdmin
		}
	}

	if err := s.validator.Validate(input.Password); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	// Proactive lookups give precise duplicate errors; the unique indexes
	// remain the backstop for races.
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateKey
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}
	phone := strings.TrimSpace(input.Phone)
	if phone != "" {
		if _, err := s.users.GetByPhone(ctx, phone); err == nil {
			return nil, ErrDuplicateKey
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("check phone: %w", err)
		}
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Roles:        roles,
		Source:       domain.SourceLocal,
		Preferences:  input.Preferences,
		RegisteredAt: now,
	}
	if first := strings.TrimSpace(input.FirstName); first != "" {
		user.FirstName = &first
	}
	if last := strings.TrimSpace(input.LastName); last != "" {
		user.LastName = &last
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.publishRegistered(ctx, user)

	s.logger.Info("account registered",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username))

	sanitized := user
	sanitized.PasswordHash = ""

	return &sanitized, nil
}

// AuthenticateExternal logs a user in via a Facebook access token,
// provisioning an account on first contact. Provisioned accounts carry no
// local password and can only authenticate externally.
func (s *AccountService) AuthenticateExternal(ctx context.Context, accessToken string) (*LoginResult, error) {
	if s.identity == nil {
		return nil, ErrExternalProfile
	}

	profile, err := s.identity.Resolve(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalProfile, err)
	}
	if profile.Email == "" {
		return nil, ErrExternalEmailMissing
	}

	user, err := s.users.GetByEmail(ctx, profile.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup user by email: %w", err)
		}
		user, err = s.provisionExternal(ctx, profile)
		if err != nil {
			return nil, err
		}
	}

	pair, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	s.logger.Info("external login succeeded",
		zap.String("user_id", user.ID),
		zap.String("source", user.Source))

	return &LoginResult{User: sanitized, Tokens: *pair}, nil
}

func (s *AccountService) provisionExternal(ctx context.Context, profile port.ExternalIdentity) (*domain.User, error) {
	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     synthesizeUsername(profile),
		Email:        profile.Email,
		Roles:        []string{domain.RoleUser},
		Source:       domain.SourceFacebook,
		RegisteredAt: now,
	}
	if name := strings.TrimSpace(profile.Name); name != "" {
		parts := strings.Fields(name)
		first := parts[0]
		user.FirstName = &first
		if len(parts) > 1 {
			last := strings.Join(parts[1:], " ")
			user.LastName = &last
		}
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Username collision with an existing local account. Retry once
			// with the provider ID as suffix, which is unique per profile.
			user.Username = user.Username + "_" + profile.ID
			if err := s.users.Create(ctx, user); err != nil {
				return nil, fmt.Errorf("provision external account: %w", err)
			}
		} else {
			return nil, fmt.Errorf("provision external account: %w", err)
		}
	}

	s.publishRegistered(ctx, user)

	s.logger.Info("external account provisioned",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)))

	return &user, nil
}

// synthesizeUsername derives a username from the profile name, falling back
// to the provider ID when the name yields nothing usable.
func synthesizeUsername(profile port.ExternalIdentity) string {
	var b strings.Builder
	for _, r := range strings.ToLower(profile.Name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('.')
		}
	}
	if b.Len() == 0 {
		return "fb_" + profile.ID
	}
	return b.String()
}

// Get loads a single account by ID. Every authenticated caller may read any
// profile; password hashes never leave the service.
func (s *AccountService) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
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

// List returns accounts whose username contains the search text, ordered
// by username. An empty search returns everyone.
func (s *AccountService) List(ctx context.Context, searchText string) ([]domain.User, error) {
	users, err := s.users.List(ctx, strings.TrimSpace(searchText))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	for i := range users {
		users[i].PasswordHash = ""
	}

	return users, nil
}

// UpdateInput carries an edit payload. Fields holds the raw key/value pairs
// from the request body; anything outside the allow list is rejected as a
// whole before any write.
type UpdateInput struct {
	TargetID        string
	Fields          map[string]any
	CurrentPassword string
}

// Update applies a profile edit. Non-admin local actors must present their
// current password; a newPassword field triggers a rehash.
func (s *AccountService) Update(ctx context.Context, actor domain.User, input UpdateInput) (*domain.User, error) {
	target, err := s.users.GetByID(ctx, input.TargetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !domain.CanModify(actor, *target) {
		return nil, ErrUnauthorizedEdit
	}

	if domain.RequiresPasswordReentry(actor) {
		if input.CurrentPassword == "" {
			return nil, ErrMissingPassword
		}
		// The actor proves knowledge of their own password, not the
		// target's. For self edits these are the same account.
		credentialed, err := s.users.GetByID(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("lookup actor: %w", err)
		}
		ok, err := security.VerifyPassword(input.CurrentPassword, credentialed.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("verify password: %w", err)
		}
		if !ok {
			return nil, ErrUnauthorizedEdit
		}
	}

	newPassword, err := s.applyFields(actor, target, input.Fields)
	if err != nil {
		return nil, err
	}

	// Validate and hash the new password before touching the row, so a weak
	// password rejects the whole edit.
	var newHash string
	if newPassword != "" {
		if err := s.validator.Validate(newPassword); err != nil {
			return nil, err
		}
		newHash, err = security.HashPassword(newPassword)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	if err := s.users.Update(ctx, *target); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	if newHash != "" {
		if err := s.users.UpdatePassword(ctx, target.ID, newHash); err != nil {
			return nil, fmt.Errorf("update password: %w", err)
		}

		if s.events != nil {
			event := domain.PasswordChangedEvent{
				EventID:   uuid.NewString(),
				UserID:    target.ID,
				ChangedAt: s.now().UTC(),
				ChangedBy: actor.ID,
				Reason:    "password_change",
			}
			if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
				s.logger.Warn("publish password changed event failed", zap.Error(err))
			}
		}
	}

	s.logger.Info("account updated",
		zap.String("user_id", target.ID),
		zap.String("actor_id", actor.ID))

	sanitized := *target
	sanitized.PasswordHash = ""

	return &sanitized, nil
}

// applyFields mutates target from the allow-listed payload fields. It
// returns the new password when one was supplied.
func (s *AccountService) applyFields(actor domain.User, target *domain.User, fields map[string]any) (string, error) {
	var newPassword string

	for key, value := range fields {
		switch key {
		case "username":
			str, ok := value.(string)
			if !ok || strings.TrimSpace(str) == "" {
				return "", fmt.Errorf("%w: username", ErrUnknownField)
			}
			target.Username = strings.TrimSpace(str)
		case "email":
			str, ok := value.(string)
			if !ok || strings.TrimSpace(str) == "" {
				return "", fmt.Errorf("%w: email", ErrUnknownField)
			}
			target.Email = strings.TrimSpace(str)
		case "phone":
			str, ok := value.(string)
			if !ok {
				return "", fmt.Errorf("%w: phone", ErrUnknownField)
			}
			target.Phone = strings.TrimSpace(str)
		case "first_name":
			str, ok := value.(string)
			if !ok {
				return "", fmt.Errorf("%w: first_name", ErrUnknownField)
			}
			trimmed := strings.TrimSpace(str)
			target.FirstName = &trimmed
		case "last_name":
			str, ok := value.(string)
			if !ok {
				return "", fmt.Errorf("%w: last_name", ErrUnknownField)
			}
			trimmed := strings.TrimSpace(str)
			target.LastName = &trimmed
		case "preferences":
			prefs, ok := value.(map[string]any)
			if !ok {
				return "", fmt.Errorf("%w: preferences", ErrUnknownField)
			}
			target.Preferences = prefs
		case "roles":
			roles, err := coerceRoles(value)
			if err != nil {
				return "", err
			}
			for _, role := range roles {
				if role == domain.RoleAdmin && !actor.IsAdmin() {
					return "", ErrCannotAssignAdmin
				}
			}
			target.Roles = roles
		case "newPassword":
			str, ok := value.(string)
			if !ok || str == "" {
				return "", fmt.Errorf("%w: newPassword", ErrUnknownField)
			}
			newPassword = str
		default:
			return "", fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
	}

	return newPassword, nil
}

func coerceRoles(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: roles", ErrUnknownField)
			}
			roles = append(roles, str)
		}
		return roles, nil
	case string:
		return domain.SplitRoles(v), nil
	default:
		return nil, fmt.Errorf("%w: roles", ErrUnknownField)
	}
}

// Delete removes an account. Self-removal and admin removal are both
// allowed; the policy is the same as for edits.
func (s *AccountService) Delete(ctx context.Context, actor domain.User, targetID string) error {
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if !domain.CanModify(actor, *target) {
		return ErrUnauthorizedEdit
	}

	if err := s.users.Delete(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	if s.events != nil {
		event := domain.UserDeletedEvent{
			EventID:   uuid.NewString(),
			UserID:    targetID,
			DeletedBy: actor.ID,
			DeletedAt: s.now().UTC(),
		}
		if err := s.events.PublishUserDeleted(ctx, event); err != nil {
			s.logger.Warn("publish user deleted event failed", zap.Error(err))
		}
	}

	s.logger.Info("account deleted",
		zap.String("user_id", targetID),
		zap.String("actor_id", actor.ID))

	return nil
}

func (s *AccountService) publishRegistered(ctx context.Context, user domain.User) {
	if s.events == nil {
		return
	}

	event := domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Source:       user.Source,
		RegisteredAt: user.RegisteredAt,
	}
	if err := s.events.PublishUserRegistered(ctx, event); err != nil {
		s.logger.Warn("publish user registered event failed", zap.Error(err))
	}
}
