package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/security"
	"github.com/Wittle-South-LLC/olsnet/internal/repository"
)

func newResetFixture(t *testing.T, users *userRepoMock) (*PasswordResetService, *mailerMock, *eventPublisherMock, *TokenService) {
	t.Helper()
	mailer := &mailerMock{}
	events := &eventPublisherMock{}
	tokens := testTokenService(t)
	svc := NewPasswordResetService(testConfig(), users, tokens, newRateLimitStoreMock(), mailer, events, nil, zaptest.NewLogger(t))
	return svc, mailer, events, tokens
}

func TestStartResetOpensChallenge(t *testing.T) {
	user := domain.User{ID: "u1", Username: "frodo", Email: "frodo@shire.example", Source: domain.SourceLocal}
	users := newUserRepoMock(user)
	svc, mailer, events, tokens := newResetFixture(t, users)

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	result, err := svc.Start(context.Background(), "frodo@shire.example", "10.0.0.1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if users.challengeID != "u1" {
		t.Fatalf("challenge stored for wrong user %q", users.challengeID)
	}
	if len(users.challengeCode) != 6 {
		t.Fatalf("unexpected code length %d", len(users.challengeCode))
	}
	if !users.challengeExpires.Equal(fixed.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", users.challengeExpires)
	}

	if len(mailer.to) != 1 || mailer.to[0] != "frodo@shire.example" {
		t.Fatalf("unexpected mail recipients %v", mailer.to)
	}
	if mailer.subjects[0] != "OurLifeStories.net Password Reset Code" {
		t.Fatalf("unexpected subject %q", mailer.subjects[0])
	}
	if !strings.Contains(mailer.bodies[0], users.challengeCode) {
		t.Fatal("mail body does not carry the reset code")
	}

	claims, err := tokens.VerifyRefresh(result.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.UserID() != "u1" {
		t.Fatalf("refresh token bound to wrong user %q", claims.UserID())
	}

	if len(events.resetsRequested) != 1 {
		t.Fatalf("expected one reset requested event, got %d", len(events.resetsRequested))
	}
	if strings.Contains(events.resetsRequested[0].MaskedEmail, "frodo@shire.example") {
		t.Fatal("event carries the unmasked email")
	}
}

func TestStartResetUnknownEmail(t *testing.T) {
	svc, _, _, _ := newResetFixture(t, newUserRepoMock())

	if _, err := svc.Start(context.Background(), "nobody@nowhere.example", "10.0.0.1"); !errors.Is(err, ErrEmailNotFound) {
		t.Fatalf("expected ErrEmailNotFound, got %v", err)
	}
}

func TestStartResetConflictWhenChallengeOpen(t *testing.T) {
	user := domain.User{ID: "u1", Username: "frodo", Email: "frodo@shire.example"}
	users := newUserRepoMock(user)
	users.setChallengeErr = repository.ErrConflict
	svc, mailer, _, _ := newResetFixture(t, users)

	if _, err := svc.Start(context.Background(), "frodo@shire.example", "10.0.0.1"); !errors.Is(err, ErrResetInFlight) {
		t.Fatalf("expected ErrResetInFlight, got %v", err)
	}
	if len(mailer.to) != 0 {
		t.Fatal("no mail may be sent when the challenge is rejected")
	}
}

func TestStartResetSurvivesMailFailure(t *testing.T) {
	user := domain.User{ID: "u1", Username: "frodo", Email: "frodo@shire.example"}
	users := newUserRepoMock(user)
	svc, mailer, _, _ := newResetFixture(t, users)
	mailer.sendErr = errors.New("relay down")

	if _, err := svc.Start(context.Background(), "frodo@shire.example", "10.0.0.1"); err != nil {
		t.Fatalf("expected start to succeed despite mail failure, got %v", err)
	}
	if users.challengeID != "u1" {
		t.Fatal("challenge must persist even when delivery fails")
	}
}

func resetChallengedUser(code string, expires time.Time) domain.User {
	return domain.User{
		ID:           "u1",
		Username:     "frodo",
		Email:        "frodo@shire.example",
		Source:       domain.SourceLocal,
		Roles:        []string{domain.RoleUser},
		ResetCode:    &code,
		ResetExpires: &expires,
	}
}

func refreshClaimsFor(t *testing.T, tokens *TokenService, user domain.User) *security.SessionClaims {
	t.Helper()
	raw, _, err := tokens.IssueResetToken(user)
	if err != nil {
		t.Fatalf("IssueResetToken: %v", err)
	}
	claims, err := tokens.VerifyRefresh(raw)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	return claims
}

func TestFinishResetSuccess(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := resetChallengedUser("123456", now.Add(10*time.Minute))
	users := newUserRepoMock(user)
	svc, _, events, tokens := newResetFixture(t, users)
	svc.WithClock(func() time.Time { return now })

	claims := refreshClaimsFor(t, tokens, user)

	if err := svc.Finish(context.Background(), claims, "frodo@shire.example", "123456", "green-dragon-ale-7"); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if users.completedID != "u1" {
		t.Fatal("expected reset completion for u1")
	}
	ok, err := security.VerifyPassword("green-dragon-ale-7", users.completedHash)
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify new password: ok=%v err=%v", ok, err)
	}

	if len(events.passwordChanged) != 1 || events.passwordChanged[0].Reason != "password_reset" {
		t.Fatalf("unexpected password changed events %+v", events.passwordChanged)
	}
}

func TestFinishResetEmailMismatch(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := resetChallengedUser("123456", now.Add(10*time.Minute))
	users := newUserRepoMock(user)
	svc, _, _, tokens := newResetFixture(t, users)
	svc.WithClock(func() time.Time { return now })

	claims := refreshClaimsFor(t, tokens, user)

	err := svc.Finish(context.Background(), claims, "other@shire.example", "123456", "green-dragon-ale-7")
	if !errors.Is(err, ErrResetEmailMismatch) {
		t.Fatalf("expected ErrResetEmailMismatch, got %v", err)
	}
}

func TestFinishResetWrongCode(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := resetChallengedUser("123456", now.Add(10*time.Minute))
	users := newUserRepoMock(user)
	svc, _, _, tokens := newResetFixture(t, users)
	svc.WithClock(func() time.Time { return now })

	claims := refreshClaimsFor(t, tokens, user)

	err := svc.Finish(context.Background(), claims, "frodo@shire.example", "654321", "green-dragon-ale-7")
	if !errors.Is(err, ErrResetCodeInvalid) {
		t.Fatalf("expected ErrResetCodeInvalid, got %v", err)
	}
}

func TestFinishResetExpiredCode(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := resetChallengedUser("123456", now.Add(-time.Second))
	users := newUserRepoMock(user)
	svc, _, _, tokens := newResetFixture(t, users)
	svc.WithClock(func() time.Time { return now })

	claims := refreshClaimsFor(t, tokens, user)

	err := svc.Finish(context.Background(), claims, "frodo@shire.example", "123456", "green-dragon-ale-7")
	if !errors.Is(err, ErrResetCodeInvalid) {
		t.Fatalf("expected ErrResetCodeInvalid for expired challenge, got %v", err)
	}
}

func TestFinishResetReplayRejected(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := resetChallengedUser("123456", now.Add(10*time.Minute))
	users := newUserRepoMock(user)
	svc, _, _, tokens := newResetFixture(t, users)
	svc.WithClock(func() time.Time { return now })

	claims := refreshClaimsFor(t, tokens, user)

	if err := svc.Finish(context.Background(), claims, "frodo@shire.example", "123456", "green-dragon-ale-7"); err != nil {
		t.Fatalf("first Finish: %v", err)
	}

	err := svc.Finish(context.Background(), claims, "frodo@shire.example", "123456", "bag-end-garden-22")
	if !errors.Is(err, ErrResetCodeInvalid) {
		t.Fatalf("expected replay to be rejected, got %v", err)
	}
}

func TestFinishResetWeakPasswordRejected(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := resetChallengedUser("123456", now.Add(10*time.Minute))
	users := newUserRepoMock(user)
	svc, _, _, tokens := newResetFixture(t, users)
	svc.WithClock(func() time.Time { return now })

	claims := refreshClaimsFor(t, tokens, user)

	err := svc.Finish(context.Background(), claims, "frodo@shire.example", "123456", "abc")
	var weak *security.PasswordValidationError
	if !errors.As(err, &weak) {
		t.Fatalf("expected PasswordValidationError, got %v", err)
	}
	if users.completedID != "" {
		t.Fatal("weak password must not reach the repository")
	}
}

func TestFinishResetRejectsUnscopedRefreshToken(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := resetChallengedUser("123456", now.Add(10*time.Minute))
	users := newUserRepoMock(user)
	svc, _, _, tokens := newResetFixture(t, users)
	svc.WithClock(func() time.Time { return now })

	pair, err := tokens.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := tokens.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}

	err = svc.Finish(context.Background(), claims, "frodo@shire.example", "123456", "green-dragon-ale-7")
	if !errors.Is(err, security.ErrTokenInvalid) {
		t.Fatalf("ordinary refresh token must not finish a reset, got %v", err)
	}
	if users.completedID != "" {
		t.Fatal("reset must not complete for an unscoped token")
	}
}
