package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
	"github.com/Wittle-South-LLC/olsnet/internal/repository"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *UserRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewUserRepository(mock)
}

func userRows(user domain.User) *pgxmock.Rows {
	var phone, hash, resetCode, resetExpires, firstName, lastName any
	if user.Phone != "" {
		phone = user.Phone
	}
	if user.PasswordHash != "" {
		hash = user.PasswordHash
	}
	if user.ResetCode != nil {
		resetCode = *user.ResetCode
	}
	if user.ResetExpires != nil {
		resetExpires = *user.ResetExpires
	}
	if user.FirstName != nil {
		firstName = user.FirstName
	}
	if user.LastName != nil {
		lastName = user.LastName
	}
	return pgxmock.NewRows([]string{
		"id", "username", "email", "phone", "password_hash", "roles", "source",
		"preferences", "reset_code", "reset_expires", "first_name", "last_name", "registered_at",
	}).AddRow(
		user.ID, user.Username, user.Email, phone, hash, domain.JoinRoles(user.Roles), user.Source,
		nil, resetCode, resetExpires, firstName, lastName, user.RegisteredAt,
	)
}

func TestUserRepository_GetByID(t *testing.T) {
	mock, repo := newMockRepo(t)

	registered := time.Now().UTC().Truncate(time.Second)
	stored := domain.User{
		ID:           "user-1",
		Username:     "frodo",
		Email:        "frodo@shire.example",
		PasswordHash: "argon2id$hash",
		Roles:        []string{domain.RoleUser, domain.RoleAdmin},
		Source:       domain.SourceLocal,
		RegisteredAt: registered,
	}

	mock.ExpectQuery(`SELECT .*FROM users WHERE id = \$1`).
		WithArgs("user-1").
		WillReturnRows(userRows(stored))

	user, err := repo.GetByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if user.Username != "frodo" {
		t.Fatalf("expected username frodo, got %s", user.Username)
	}
	if len(user.Roles) != 2 || user.Roles[1] != domain.RoleAdmin {
		t.Fatalf("roles not split from stored string: %v", user.Roles)
	}
	if user.Phone != "" {
		t.Fatalf("expected empty phone for NULL column, got %q", user.Phone)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery(`SELECT .*FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected repository.ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	mock, repo := newMockRepo(t)

	user := domain.User{
		ID:           "user-1",
		Username:     "frodo",
		Email:        "frodo@shire.example",
		PasswordHash: "argon2id$hash",
		Roles:        []string{domain.RoleUser},
		Source:       domain.SourceLocal,
		RegisteredAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(
			user.ID,
			user.Username,
			user.Email,
			nil,
			user.PasswordHash,
			domain.JoinRoles(user.Roles),
			user.Source,
			user.Preferences,
			user.ResetCode,
			user.ResetExpires,
			user.FirstName,
			user.LastName,
			user.RegisteredAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	if err := repo.Create(context.Background(), user); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected repository.ErrDuplicate for 23505, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_ListSearchPattern(t *testing.T) {
	mock, repo := newMockRepo(t)

	stored := domain.User{
		ID:           "user-1",
		Username:     "frodo",
		Email:        "frodo@shire.example",
		Roles:        []string{domain.RoleUser},
		Source:       domain.SourceLocal,
		RegisteredAt: time.Now().UTC(),
	}

	mock.ExpectQuery(`SELECT .*FROM users WHERE username ILIKE \$1 ORDER BY username ASC`).
		WithArgs("%fro%").
		WillReturnRows(userRows(stored))

	users, err := repo.List(context.Background(), "fro")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(users) != 1 || users[0].Username != "frodo" {
		t.Fatalf("unexpected list result: %+v", users)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_SetResetChallengeConflict(t *testing.T) {
	mock, repo := newMockRepo(t)

	now := time.Now().UTC()
	expires := now.Add(15 * time.Minute)

	mock.ExpectExec(`UPDATE users SET reset_code = \$1, reset_expires = \$2 WHERE id = \$3 AND \(reset_code IS NULL OR reset_expires < \$4\)`).
		WithArgs("123456", expires, "user-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SetResetChallenge(context.Background(), "user-1", "123456", expires, now)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected repository.ErrConflict when a challenge is open, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_SetResetChallenge(t *testing.T) {
	mock, repo := newMockRepo(t)

	now := time.Now().UTC()
	expires := now.Add(15 * time.Minute)

	mock.ExpectExec(`UPDATE users SET reset_code = \$1, reset_expires = \$2 WHERE id = \$3`).
		WithArgs("123456", expires, "user-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.SetResetChallenge(context.Background(), "user-1", "123456", expires, now); err != nil {
		t.Fatalf("SetResetChallenge returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CompleteResetReplay(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectExec(`UPDATE users SET password_hash = \$1, reset_code = \$2, reset_expires = \$3 WHERE id = \$4 AND reset_code = \$5`).
		WithArgs("argon2id$newhash", nil, nil, "user-1", "123456").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.CompleteReset(context.Background(), "user-1", "123456", "argon2id$newhash")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected repository.ErrNotFound for stale code, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_DeleteNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected repository.ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectExec(`UPDATE users SET password_hash = \$1 WHERE id = \$2`).
		WithArgs("argon2id$newhash", "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdatePassword(context.Background(), "user-1", "argon2id$newhash"); err != nil {
		t.Fatalf("UpdatePassword returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
