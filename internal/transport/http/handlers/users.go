package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/transport/http/middleware"
	"github.com/Wittle-South-LLC/olsnet/internal/usecase"
)

// UserHandler serves registration and the authenticated user CRUD surface.
type UserHandler struct {
	cfg      *config.AppConfig
	accounts *usecase.AccountService
	auth     *usecase.AuthService
	logger   *zap.Logger
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(cfg *config.AppConfig, accounts *usecase.AccountService, auth *usecase.AuthService, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{cfg: cfg, accounts: accounts, auth: auth, logger: log}
}

var registerErrorCases = []ErrorCase{
	{Err: usecase.ErrDuplicateUsername, Status: http.StatusConflict, Key: KeyDuplicateUserName, Text: "User name is already in use"},
	{Err: usecase.ErrDuplicateKey, Status: http.StatusConflict, Key: KeyDuplicateUserKey, Text: "Key value (e.g. email, phone) is already in use for another user"},
	{Err: usecase.ErrCannotAssignAdmin, Status: http.StatusBadRequest, Key: KeyCannotAssignAdmin, Text: "Cannot assign Admin role during user creation"},
	{Err: usecase.ErrCaptchaFailed, Status: http.StatusUnauthorized, Key: KeyRecaptchaFails, Text: "ReCaptcha check failed"},
	{Err: usecase.ErrCaptchaUnavailable, Status: http.StatusUnauthorized, Key: KeyRecaptchaFails, Text: "ReCaptcha check failed"},
}

// Register handles POST /users. Registration is unauthenticated but gated
// by the captcha challenge.
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, http.StatusBadRequest, KeyValidationFailed, err.Error()))
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), usecase.RegisterInput{
		Username:        req.Username,
		Password:        req.Password,
		Email:           req.Email,
		Phone:           req.Phone,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Roles:           splitRolesField(req.Roles),
		Preferences:     req.Preferences,
		CaptchaResponse: req.Recaptcha,
		IP:              c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, registerErrorCases)
		return
	}

	c.JSON(http.StatusCreated, NewUserResponse(*user))
}

// List handles GET /users. The search_text query filters by substring on
// username.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.accounts.List(c.Request.Context(), c.Query("search_text"))
	if err != nil {
		RespondWithMappedError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, NewUserListResponse(users))
}

// Get handles GET /users/:user_id.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.accounts.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		RespondWithMappedError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, NewUserResponse(*user))
}

var updateErrorCases = []ErrorCase{
	{Err: usecase.ErrMissingPassword, Status: http.StatusBadRequest, Key: KeyMissingPasswordEdit, Text: "Current password must be provided to edit user data"},
	{Err: usecase.ErrUnauthorizedEdit, Status: http.StatusUnauthorized, Key: KeyUnauthorizedUserEdit, Text: "Cannot edit other users data unless you have the Admin role"},
	{Err: usecase.ErrCannotAssignAdmin, Status: http.StatusBadRequest, Key: KeyCannotAssignAdmin, Text: "Cannot assign Admin role"},
	{Err: usecase.ErrUnknownField, Status: http.StatusBadRequest, Key: KeyValidationFailed, Text: "Payload contains an unknown or malformed field"},
	{Err: usecase.ErrDuplicateKey, Status: http.StatusConflict, Key: KeyDuplicateUserKey, Text: "Key value (e.g. email, phone) is already in use for another user"},
}

// Update handles PUT /users/:user_id. The body is a raw field map checked
// against the allow list; the password field is consumed here as proof of
// identity for non-admin local actors.
func (h *UserHandler) Update(c *gin.Context) {
	actor, ok := h.currentActor(c)
	if !ok {
		return
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, http.StatusBadRequest, KeyValidationFailed, "malformed request body"))
		return
	}

	currentPassword, _ := body["password"].(string)
	delete(body, "password")

	user, err := h.accounts.Update(c.Request.Context(), actor, usecase.UpdateInput{
		TargetID:        c.Param("user_id"),
		Fields:          body,
		CurrentPassword: currentPassword,
	})
	if err != nil {
		RespondWithMappedError(c, err, updateErrorCases)
		return
	}

	c.JSON(http.StatusOK, NewUserResponse(*user))
}

// Delete handles DELETE /users/:user_id.
func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := h.currentActor(c)
	if !ok {
		return
	}

	if err := h.accounts.Delete(c.Request.Context(), actor, c.Param("user_id")); err != nil {
		RespondWithMappedError(c, err, updateErrorCases)
		return
	}

	c.Status(http.StatusNoContent)
}

// currentActor rebuilds the acting user from the verified claims. Policy
// checks need the role set and source, both carried in the token.
func (h *UserHandler) currentActor(c *gin.Context) (domain.User, bool) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, http.StatusUnauthorized, "NOT_AUTHORIZED", "Missing session"))
		return domain.User{}, false
	}

	return domain.User{
		ID:       claims.UserID(),
		Username: claims.Username,
		Roles:    claims.Roles,
		Source:   claims.Source,
	}, true
}
