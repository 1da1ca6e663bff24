package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
	"github.com/Wittle-South-LLC/olsnet/internal/core/port"
	"github.com/Wittle-South-LLC/olsnet/internal/repository"
)

const usersTable = "users"

var userColumns = []string{
	"id",
	"username",
	"email",
	"phone",
	"password_hash",
	"roles",
	"source",
	"preferences",
	"reset_code",
	"reset_expires",
	"first_name",
	"last_name",
	"registered_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	db      DB
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row. Unique-constraint violations on username,
// email, or phone surface as repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	var phoneValue any
	if user.Phone != "" {
		phoneValue = user.Phone
	}

	var hashValue any
	if user.PasswordHash != "" {
		hashValue = user.PasswordHash
	}

	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.Username,
			user.Email,
			phoneValue,
			hashValue,
			domain.JoinRoles(user.Roles),
			user.Source,
			user.Preferences,
			user.ResetCode,
			user.ResetExpires,
			user.FirstName,
			user.LastName,
			user.RegisteredAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", translateError(err))
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"username": username})
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"email": email})
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"phone": phone})
}

func (r *UserRepository) getBy(ctx context.Context, pred any) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.db.QueryRow(ctx, stmt, args...)

	user, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return user, nil
}

// List returns all users ordered by username ascending, optionally filtered
// by a substring match on username.
func (r *UserRepository) List(ctx context.Context, searchText string) ([]domain.User, error) {
	query := r.builder.
		Select(userColumns...).
		From(usersTable).
		OrderBy("username ASC")

	if searchText != "" {
		query = query.Where(squirrel.ILike{"username": "%" + searchText + "%"})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// Update overwrites the mutable profile fields of an existing user.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	var phoneValue any
	if user.Phone != "" {
		phoneValue = user.Phone
	}

	stmt, args, err := r.builder.Update(usersTable).
		Set("username", user.Username).
		Set("email", user.Email).
		Set("phone", phoneValue).
		Set("roles", domain.JoinRoles(user.Roles)).
		Set("preferences", user.Preferences).
		Set("first_name", user.FirstName).
		Set("last_name", user.LastName).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", translateError(err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("password_hash", passwordHash).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a user row.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(usersTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetResetChallenge opens a reset challenge with a single conditional update
// so two concurrent starts cannot both succeed. Zero affected rows means an
// unexpired challenge is already open.
func (r *UserRepository) SetResetChallenge(ctx context.Context, id string, code string, expires time.Time, now time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("reset_code", code).
		Set("reset_expires", expires).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Or{
			squirrel.Eq{"reset_code": nil},
			squirrel.Lt{"reset_expires": now},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set reset challenge sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set reset challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}

	return nil
}

// CompleteReset writes the new hash and clears the challenge in one
// statement, conditional on the stored code still matching. A replayed code
// matches zero rows.
func (r *UserRepository) CompleteReset(ctx context.Context, id string, code string, passwordHash string) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("password_hash", passwordHash).
		Set("reset_code", nil).
		Set("reset_expires", nil).
		Where(squirrel.Eq{"id": id, "reset_code": code}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build complete reset sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("complete reset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user         domain.User
		phone        sql.NullString
		passwordHash sql.NullString
		roles        string
		resetCode    sql.NullString
		resetExpires sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&phone,
		&passwordHash,
		&roles,
		&user.Source,
		&user.Preferences,
		&resetCode,
		&resetExpires,
		&user.FirstName,
		&user.LastName,
		&user.RegisteredAt,
	); err != nil {
		return nil, err
	}

	if phone.Valid {
		user.Phone = phone.String
	}
	if passwordHash.Valid {
		user.PasswordHash = passwordHash.String
	}
	user.Roles = domain.SplitRoles(roles)
	if resetCode.Valid {
		code := resetCode.String
		user.ResetCode = &code
	}
	if resetExpires.Valid {
		expires := resetExpires.Time
		user.ResetExpires = &expires
	}

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
