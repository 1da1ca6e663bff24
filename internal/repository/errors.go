package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a unique-constraint violation on username,
	// email, or phone.
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrConflict indicates a conditional update matched no rows because the
	// record is in a conflicting state.
	ErrConflict = errors.New("repository: state conflict")
)
