package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
	"github.com/Wittle-South-LLC/olsnet/internal/core/port"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/security"
	"github.com/Wittle-South-LLC/olsnet/internal/repository"
)

// userRepoMock is an in-memory port.UserRepository backed by maps, with
// error overrides per operation.
type userRepoMock struct {
	byID       map[string]domain.User
	byUsername map[string]domain.User
	byEmail    map[string]domain.User
	byPhone    map[string]domain.User

	created          []domain.User
	createErr        error
	updated          *domain.User
	updatedPasswords map[string]string
	deletedIDs       []string

	challengeID      string
	challengeCode    string
	challengeExpires time.Time
	setChallengeErr  error

	completedID     string
	completedHash   string
	completeErr     error
	listResult      []domain.User
	lastSearchText  string
}

func newUserRepoMock(users ...domain.User) *userRepoMock {
	m := &userRepoMock{
		byID:             make(map[string]domain.User),
		byUsername:       make(map[string]domain.User),
		byEmail:          make(map[string]domain.User),
		byPhone:          make(map[string]domain.User),
		updatedPasswords: make(map[string]string),
	}
	for _, u := range users {
		m.add(u)
	}
	return m
}

func (m *userRepoMock) add(u domain.User) {
	m.byID[u.ID] = u
	m.byUsername[u.Username] = u
	m.byEmail[u.Email] = u
	if u.Phone != "" {
		m.byPhone[u.Phone] = u
	}
}

func (m *userRepoMock) Create(_ context.Context, user domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.byUsername[user.Username]; exists {
		return repository.ErrDuplicate
	}
	m.created = append(m.created, user)
	m.add(user)
	return nil
}

func (m *userRepoMock) GetByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := m.byID[id]; ok {
		u := user
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	if user, ok := m.byUsername[username]; ok {
		u := user
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if user, ok := m.byEmail[email]; ok {
		u := user
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	if user, ok := m.byPhone[phone]; ok {
		u := user
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) List(_ context.Context, searchText string) ([]domain.User, error) {
	m.lastSearchText = searchText
	return m.listResult, nil
}

func (m *userRepoMock) Update(_ context.Context, user domain.User) error {
	u := user
	m.updated = &u
	m.add(user)
	return nil
}

func (m *userRepoMock) UpdatePassword(_ context.Context, id string, passwordHash string) error {
	m.updatedPasswords[id] = passwordHash
	return nil
}

func (m *userRepoMock) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	m.deletedIDs = append(m.deletedIDs, id)
	delete(m.byID, id)
	return nil
}

func (m *userRepoMock) SetResetChallenge(_ context.Context, id string, code string, expires time.Time, _ time.Time) error {
	if m.setChallengeErr != nil {
		return m.setChallengeErr
	}
	m.challengeID = id
	m.challengeCode = code
	m.challengeExpires = expires
	return nil
}

func (m *userRepoMock) CompleteReset(_ context.Context, id string, code string, passwordHash string) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	user, ok := m.byID[id]
	if !ok || user.ResetCode == nil || *user.ResetCode != code {
		return repository.ErrNotFound
	}
	m.completedID = id
	m.completedHash = passwordHash
	user.PasswordHash = passwordHash
	user.ResetCode = nil
	user.ResetExpires = nil
	m.byID[id] = user
	return nil
}

// rateLimitStoreMock counts attempts in memory.
type rateLimitStoreMock struct {
	attempts map[string][]time.Time
	failAll  bool
}

func newRateLimitStoreMock() *rateLimitStoreMock {
	return &rateLimitStoreMock{attempts: make(map[string][]time.Time)}
}

func (m *rateLimitStoreMock) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	if m.failAll {
		return errors.New("store unavailable")
	}
	cutoff := reference.Add(-window)
	kept := m.attempts[identifier][:0]
	for _, at := range m.attempts[identifier] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *rateLimitStoreMock) CountAttempts(_ context.Context, identifier string, _ time.Duration, _ time.Time) (int, error) {
	if m.failAll {
		return 0, errors.New("store unavailable")
	}
	return len(m.attempts[identifier]), nil
}

func (m *rateLimitStoreMock) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	if m.failAll {
		return errors.New("store unavailable")
	}
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *rateLimitStoreMock) OldestAttempt(_ context.Context, identifier string, _ time.Duration, _ time.Time) (time.Time, bool, error) {
	if m.failAll {
		return time.Time{}, false, errors.New("store unavailable")
	}
	if len(m.attempts[identifier]) == 0 {
		return time.Time{}, false, nil
	}
	return m.attempts[identifier][0], true, nil
}

// eventPublisherMock records published events.
type eventPublisherMock struct {
	registered      []domain.UserRegisteredEvent
	resetsRequested []domain.PasswordResetRequestedEvent
	passwordChanged []domain.PasswordChangedEvent
	deleted         []domain.UserDeletedEvent
}

func (m *eventPublisherMock) PublishUserRegistered(_ context.Context, e domain.UserRegisteredEvent) error {
	m.registered = append(m.registered, e)
	return nil
}

func (m *eventPublisherMock) PublishPasswordResetRequested(_ context.Context, e domain.PasswordResetRequestedEvent) error {
	m.resetsRequested = append(m.resetsRequested, e)
	return nil
}

func (m *eventPublisherMock) PublishPasswordChanged(_ context.Context, e domain.PasswordChangedEvent) error {
	m.passwordChanged = append(m.passwordChanged, e)
	return nil
}

func (m *eventPublisherMock) PublishUserDeleted(_ context.Context, e domain.UserDeletedEvent) error {
	m.deleted = append(m.deleted, e)
	return nil
}

// mailerMock records outbound mail.
type mailerMock struct {
	to       []string
	subjects []string
	bodies   []string
	sendErr  error
}

func (m *mailerMock) Send(_ context.Context, to, subject, text, _ string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.to = append(m.to, to)
	m.subjects = append(m.subjects, subject)
	m.bodies = append(m.bodies, text)
	return nil
}

// captchaMock verifies according to its configured outcome.
type captchaMock struct {
	pass bool
	err  error
}

func (m *captchaMock) Verify(context.Context, string, string) (bool, error) {
	return m.pass, m.err
}

// identityMock resolves a fixed external profile.
type identityMock struct {
	profile    port.ExternalIdentity
	resolveErr error
}

func (m *identityMock) Resolve(context.Context, string) (port.ExternalIdentity, error) {
	return m.profile, m.resolveErr
}

func testTokenService(t *testing.T) *TokenService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	provider := &security.StaticKeyProvider{KID: "test-kid", Key: key}
	return NewTokenService(provider, provider.KID, config.JWTSettings{
		Issuer:          "olsnet",
		AccessTokenTTL:  10 * time.Minute,
		RefreshTokenTTL: 720 * time.Hour,
	})
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Name: "olsnet-accounts", Env: "test"},
		JWT: config.JWTSettings{
			Issuer:          "olsnet",
			AccessTokenTTL:  10 * time.Minute,
			RefreshTokenTTL: 720 * time.Hour,
		},
		RateLimit: config.RateLimitSettings{
			WindowDuration:           time.Minute,
			LoginMaxAttempts:         5,
			PasswordResetMaxAttempts: 3,
		},
	}
}
