package domain

import "time"

// UserRegisteredEvent is emitted after a new account is persisted.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Username     string
	Email        string
	Source       string
	RegisteredAt time.Time
}

// PasswordResetRequestedEvent is emitted when a reset challenge is opened.
type PasswordResetRequestedEvent struct {
	EventID     string
	UserID      string
	RequestedAt time.Time
	ExpiresAt   time.Time
	MaskedEmail string
}

// PasswordChangedEvent is emitted after a password is re-hashed, whether via
// self-service edit or reset redemption.
type PasswordChangedEvent struct {
	EventID   string
	UserID    string
	ChangedAt time.Time
	ChangedBy string
	Reason    string
}

// UserDeletedEvent is emitted after an account is removed.
type UserDeletedEvent struct {
	EventID   string
	UserID    string
	DeletedBy string
	DeletedAt time.Time
}
