package port

import (
	"context"
	"time"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
)

// UserRepository exposes persistence behavior for user records. Uniqueness of
// username, email, and phone is enforced at the storage layer; violations
// surface as repository.ErrDuplicate.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	List(ctx context.Context, searchText string) ([]domain.User, error)
	Update(ctx context.Context, user domain.User) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	Delete(ctx context.Context, id string) error

	// SetResetChallenge opens a reset challenge with a single conditional
	// update. It fails with repository.ErrConflict when an unexpired
	// challenge already exists for the user.
	SetResetChallenge(ctx context.Context, id string, code string, expires time.Time, now time.Time) error

	// CompleteReset stores the new password hash and clears the challenge in
	// one statement, conditional on the stored code still matching. A replay
	// or stale code yields repository.ErrNotFound.
	CompleteReset(ctx context.Context, id string, code string, passwordHash string) error
}
