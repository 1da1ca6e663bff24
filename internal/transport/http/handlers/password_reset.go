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

// PasswordResetHandler serves the two-step reset flow.
type PasswordResetHandler struct {
	cfg     *config.AppConfig
	resets  *usecase.PasswordResetService
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// NewPasswordResetHandler constructs a PasswordResetHandler.
func NewPasswordResetHandler(cfg *config.AppConfig, resets *usecase.PasswordResetService, metrics *telemetry.Metrics, log *zap.Logger) *PasswordResetHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordResetHandler{cfg: cfg, resets: resets, metrics: metrics, logger: log}
}

var resetStartErrorCases = []ErrorCase{
	{Err: usecase.ErrEmailNotFound, Status: http.StatusNotFound, Key: KeyEmailNotFound, Text: "Email not found"},
	{Err: usecase.ErrResetInFlight, Status: http.StatusConflict, Key: KeyResetCodeCurrent, Text: "There is already a valid reset code for this user"},
}

// Start handles POST /pw_reset. Success emails the code and sets the
// refresh cookie pair that the finish step must present.
func (h *PasswordResetHandler) Start(c *gin.Context) {
	var req ResetStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, http.StatusBadRequest, KeyValidationFailed, "email is required"))
		return
	}

	result, err := h.resets.Start(c.Request.Context(), req.Email, c.ClientIP())
	if err != nil {
		h.countReset("start", "failure")
		RespondWithMappedError(c, err, resetStartErrorCases)
		return
	}

	h.countReset("start", "success")

	_, refreshMaxAge := sessionCookieAges(h.cfg.JWT)
	setRefreshCookies(c, h.cfg.JWT, result.RefreshToken, result.RefreshCSRF, refreshMaxAge)

	c.JSON(http.StatusOK, MessageResponse{Message: "reset code sent"})
}

var resetFinishErrorCases = []ErrorCase{
	{Err: usecase.ErrResetCodeInvalid, Status: http.StatusBadRequest, Key: KeyResetCodeInvalid, Text: "The reset code provided is invalid or expired"},
	{Err: usecase.ErrResetEmailMismatch, Status: http.StatusBadRequest, Key: KeyResetEmailMismatch, Text: "The email provided for reset does not match the email of the user"},
}

// Finish handles PUT /pw_reset. Identity comes from the refresh cookie set
// at start time, never from the payload.
func (h *PasswordResetHandler) Finish(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, http.StatusUnauthorized, "NOT_AUTHORIZED", "Missing reset session"))
		return
	}

	var req ResetFinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, http.StatusBadRequest, KeyValidationFailed, "email, reset_code, and password are required"))
		return
	}

	if err := h.resets.Finish(c.Request.Context(), claims, req.Email, req.ResetCode, req.Password); err != nil {
		h.countReset("finish", "failure")
		RespondWithMappedError(c, err, resetFinishErrorCases)
		return
	}

	h.countReset("finish", "success")

	// The new password invalidates the old session material on the client.
	clearSessionCookies(c, h.cfg.JWT)

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}

func (h *PasswordResetHandler) countReset(stage, outcome string) {
	if h.metrics == nil || h.metrics.ResetEventsTotal == nil {
		return
	}
	h.metrics.ResetEventsTotal.WithLabelValues(stage, outcome).Inc()
}
