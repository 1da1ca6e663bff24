package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/telemetry"
	"github.com/Wittle-South-LLC/olsnet/internal/transport/http/middleware"
	"github.com/Wittle-South-LLC/olsnet/internal/usecase"
)

// LoginHandler serves credential login, rehydrate, logout, and the external
// Facebook login.
type LoginHandler struct {
	cfg      *config.AppConfig
	auth     *usecase.AuthService
	accounts *usecase.AccountService
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// NewLoginHandler constructs a LoginHandler.
func NewLoginHandler(cfg *config.AppConfig, auth *usecase.AuthService, accounts *usecase.AccountService, metrics *telemetry.Metrics, log *zap.Logger) *LoginHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginHandler{cfg: cfg, auth: auth, accounts: accounts, metrics: metrics, logger: log}
}

var loginErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Key: KeyInvalidUsernamePassword, Text: "Invalid username / password combination"},
}

// Login handles POST /login. Success sets the four session cookies and
// returns the account so the client can hydrate without a second call.
func (h *LoginHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, http.StatusBadRequest, KeyValidationFailed, "username and password are required"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		h.countLogin("failure")
		RespondWithMappedError(c, err, loginErrorCases)
		return
	}

	h.countLogin("success")

	accessMaxAge, refreshMaxAge := sessionCookieAges(h.cfg.JWT)
	setSessionCookies(c, h.cfg.JWT, result.Tokens, accessMaxAge, refreshMaxAge)

	c.JSON(http.StatusOK, NewUserResponse(result.User))
}

// Rehydrate handles GET /login. The refresh cookie proves identity; the
// response re-issues a fresh token pair along with current account state.
func (h *LoginHandler) Rehydrate(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, http.StatusUnauthorized, "NOT_AUTHORIZED", "Missing session"))
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), claims)
	if err != nil {
		RespondWithMappedError(c, err, nil)
		return
	}

	accessMaxAge, refreshMaxAge := sessionCookieAges(h.cfg.JWT)
	setSessionCookies(c, h.cfg.JWT, result.Tokens, accessMaxAge, refreshMaxAge)

	c.JSON(http.StatusOK, NewUserResponse(result.User))
}

// Logout handles POST /logout by expiring all session cookies.
func (h *LoginHandler) Logout(c *gin.Context) {
	clearSessionCookies(c, h.cfg.JWT)
	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

var facebookErrorCases = []ErrorCase{
	{Err: usecase.ErrExternalProfile, Status: http.StatusUnauthorized, Key: KeyFacebookProfile, Text: "Unable to get profile from Facebook with provided api key"},
	{Err: usecase.ErrExternalEmailMissing, Status: http.StatusUnauthorized, Key: KeyFacebookPrivileges, Text: "This app must have privilege to access your e-mail address"},
}

// FacebookLogin handles POST /fb_login. First contact provisions an
// account bound to the Facebook identity.
func (h *LoginHandler) FacebookLogin(c *gin.Context) {
	var req FacebookLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, http.StatusBadRequest, KeyValidationFailed, "accessToken is required"))
		return
	}

	result, err := h.accounts.AuthenticateExternal(c.Request.Context(), req.AccessToken)
	if err != nil {
		h.countLogin("failure")
		RespondWithMappedError(c, err, facebookErrorCases)
		return
	}

	h.countLogin("success")

	accessMaxAge, refreshMaxAge := sessionCookieAges(h.cfg.JWT)
	setSessionCookies(c, h.cfg.JWT, result.Tokens, accessMaxAge, refreshMaxAge)

	c.JSON(http.StatusOK, NewUserResponse(result.User))
}

func (h *LoginHandler) countLogin(outcome string) {
	if h.metrics == nil || h.metrics.LoginsTotal == nil {
		return
	}
	h.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
}
