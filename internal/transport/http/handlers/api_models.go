package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
)

// Stable error keys returned to clients. The key enables localization on
// the client; the text is the default English message.
const (
	KeyInvalidUsernamePassword = "INVALID_USERNAME_PASSWORD"
	KeyEmailNotFound           = "EMAIL_NOT_FOUND"
	KeyResetCodeCurrent        = "RESET_CODE_CURRENT"
	KeyResetCodeInvalid        = "RESET_CODE_INVALID_OR_EXPIRED"
	KeyResetEmailMismatch      = "RESET_EMAIL_MISMATCH"
	KeyDuplicateUserName       = "DUPLICATE_USER_NAME"
	KeyDuplicateUserKey        = "DUPLICATE_USER_KEY"
	KeyCannotAssignAdmin       = "CANNOT_ASSIGN_ADMIN"
	KeyRecaptchaFails          = "API_RECAPTCHA_FAILS"
	KeyUserIDNotFound          = "USER_ID_NOT_FOUND"
	KeyMissingPasswordEdit     = "MISSING_PASSWORD_EDIT"
	KeyUnauthorizedUserEdit    = "UNAUTHORIZED_USER_EDIT"
	KeyFacebookProfile         = "ERROR_FACEBOOK_PROFILE"
	KeyFacebookPrivileges      = "ERROR_FACEBOOK_PRIVILEGES"
	KeyWeakPassword            = "WEAK_PASSWORD"
	KeyValidationFailed        = "VALIDATION_FAILED"
	KeyRateLimited             = "RATE_LIMITED"
	KeyInternalError           = "INTERNAL_ERROR"
)

// ErrorResponse is the structured error payload: a stable key for client
// localization, the default English text, and the trace ID for support.
type ErrorResponse struct {
	ErrorCode int    `json:"error_code"`
	Key       string `json:"key"`
	Text      string `json:"text,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// NewErrorResponse builds an error payload carrying the trace ID from the
// request context.
func NewErrorResponse(c *gin.Context, status int, key, text string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		ErrorCode: status,
		Key:       key,
		Text:      text,
		TraceID:   traceIDStr,
	}
}

// MessageResponse is a simple confirmation payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterUserRequest is the registration payload. Recaptcha carries the
// raw challenge response token from the client widget.
type RegisterUserRequest struct {
	Username    string         `json:"username" binding:"required"`
	Password    string         `json:"password" binding:"required"`
	Email       string         `json:"email" binding:"required,email"`
	Phone       string         `json:"phone"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	Roles       string         `json:"roles"`
	Preferences map[string]any `json:"preferences"`
	Recaptcha   string         `json:"reCaptchaResponse" binding:"required"`
}

// LoginRequest is the credential login payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// FacebookLoginRequest carries the Facebook access token obtained by the
// client SDK.
type FacebookLoginRequest struct {
	AccessToken string `json:"accessToken" binding:"required"`
}

// ResetStartRequest opens a password reset challenge.
type ResetStartRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetFinishRequest redeems a password reset challenge.
type ResetFinishRequest struct {
	Email     string `json:"email" binding:"required,email"`
	ResetCode string `json:"reset_code" binding:"required"`
	Password  string `json:"password" binding:"required"`
}

// UserResponse is the public view of an account. The password hash and any
// open reset challenge never appear here.
type UserResponse struct {
	ID           string         `json:"user_id"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	FirstName    *string        `json:"first_name,omitempty"`
	LastName     *string        `json:"last_name,omitempty"`
	Roles        string         `json:"roles"`
	Source       string         `json:"source"`
	Preferences  map[string]any `json:"preferences,omitempty"`
	RegisteredAt time.Time      `json:"registered_at"`
}

// NewUserResponse maps a domain user onto the wire shape. Roles travel as a
// comma-joined string for client compatibility.
func NewUserResponse(user domain.User) UserResponse {
	return UserResponse{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Phone:        user.Phone,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Roles:        domain.JoinRoles(user.Roles),
		Source:       user.Source,
		Preferences:  user.Preferences,
		RegisteredAt: user.RegisteredAt,
	}
}

// NewUserListResponse maps a slice of domain users. Search results travel
// as a bare JSON array.
func NewUserListResponse(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, user := range users {
		out = append(out, NewUserResponse(user))
	}
	return out
}

func splitRolesField(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return domain.SplitRoles(raw)
}
