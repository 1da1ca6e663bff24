package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates the username or password is wrong. The
	// two cases are indistinguishable on purpose.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound indicates the referenced account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailNotFound indicates no account matches the reset email.
	ErrEmailNotFound = errors.New("email not found")
	// ErrResetInFlight indicates an unexpired reset challenge already exists.
	ErrResetInFlight = errors.New("reset code already current")
	// ErrResetCodeInvalid indicates a wrong, expired, or already used code.
	ErrResetCodeInvalid = errors.New("reset code invalid or expired")
	// ErrResetEmailMismatch indicates the finish email does not belong to the
	// challenged account.
	ErrResetEmailMismatch = errors.New("reset email mismatch")
	// ErrDuplicateUsername indicates the username is taken.
	ErrDuplicateUsername = errors.New("duplicate username")
	// ErrDuplicateKey indicates the email or phone is taken.
	ErrDuplicateKey = errors.New("duplicate email or phone")
	// ErrCannotAssignAdmin indicates a registration attempted to claim the
	// Admin role.
	ErrCannotAssignAdmin = errors.New("cannot assign admin role")
	// ErrCaptchaFailed indicates the registration challenge was rejected.
	ErrCaptchaFailed = errors.New("captcha verification failed")
	// ErrCaptchaUnavailable indicates the verification service could not be
	// reached. Distinct from a rejection so callers can return 5xx.
	ErrCaptchaUnavailable = errors.New("captcha verification unavailable")
	// ErrMissingPassword indicates a local-account edit arrived without the
	// current password.
	ErrMissingPassword = errors.New("current password required for edit")
	// ErrUnauthorizedEdit indicates the actor may not modify the target or
	// presented a wrong current password.
	ErrUnauthorizedEdit = errors.New("unauthorized edit")
	// ErrUnknownField indicates an edit payload contained a field outside the
	// allow list.
	ErrUnknownField = errors.New("unknown field in payload")
	// ErrExternalProfile indicates the external identity provider rejected or
	// could not serve the profile lookup.
	ErrExternalProfile = errors.New("external profile unavailable")
	// ErrExternalEmailMissing indicates the external profile carries no email
	// address, so no account can be matched or provisioned.
	ErrExternalEmailMissing = errors.New("external profile has no email")
)

// RateLimitExceededError reports a tripped sliding-window limit along with
// how long the caller should wait.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
}
