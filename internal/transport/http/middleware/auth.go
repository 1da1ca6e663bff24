package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wittle-South-LLC/olsnet/internal/infra/security"
	"github.com/Wittle-South-LLC/olsnet/internal/usecase"
)

// Cookie names shared by the middleware and the handlers that set them. The
// token cookies are HTTP-only; the CSRF cookies are readable by scripts so
// the client can echo the value back in the CSRF header.
const (
	AccessTokenCookie  = "access_token_cookie"
	RefreshTokenCookie = "refresh_token_cookie"
	CSRFAccessCookie   = "csrf_access_token"
	CSRFRefreshCookie  = "csrf_refresh_token"

	// CSRFHeader carries the double-submit value on every protected call.
	CSRFHeader = "X-CSRF-TOKEN"
)

type errorResponse struct {
	Key     string `json:"key"`
	Text    string `json:"text"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, key, text string) errorResponse {
	return errorResponse{Key: key, Text: text, TraceID: GetTraceID(c)}
}

func abortUnauthorized(c *gin.Context, key, text string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, key, text))
}

// RequireSession authenticates the access token cookie and enforces the
// CSRF double-submit check. Identity comes only from the verified token;
// the CSRF header must match the csrf claim bound into that same token.
func RequireSession(tokens *usecase.TokenService, csrfProtectReads bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(AccessTokenCookie)
		if err != nil || raw == "" {
			abortUnauthorized(c, "NOT_AUTHORIZED", "Missing session token")
			return
		}

		claims, parseErr := tokens.VerifyAccess(raw)
		if parseErr != nil {
			respondTokenError(c, parseErr)
			return
		}

		if !csrfCheckPasses(c, claims, csrfProtectReads) {
			abortUnauthorized(c, "CSRF_FAILED", "CSRF token missing or invalid")
			return
		}

		bindClaims(c, claims)
		c.Next()
	}
}

// RequireRefresh authenticates the refresh token cookie for the login
// rehydrate path. Scoped tokens, such as the password reset refresh token,
// are rejected: they carry no session privileges.
func RequireRefresh(tokens *usecase.TokenService, csrfProtectReads bool) gin.HandlerFunc {
	return requireRefreshScope(tokens, csrfProtectReads, "")
}

// RequireResetToken authenticates the refresh token cookie handed out by the
// password reset start step. Only reset-scoped tokens pass; an ordinary
// session refresh token cannot finish a reset.
func RequireResetToken(tokens *usecase.TokenService, csrfProtectReads bool) gin.HandlerFunc {
	return requireRefreshScope(tokens, csrfProtectReads, security.ScopePasswordReset)
}

func requireRefreshScope(tokens *usecase.TokenService, csrfProtectReads bool, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(RefreshTokenCookie)
		if err != nil || raw == "" {
			abortUnauthorized(c, "NOT_AUTHORIZED", "Missing refresh token")
			return
		}

		claims, parseErr := tokens.VerifyRefresh(raw)
		if parseErr != nil {
			respondTokenError(c, parseErr)
			return
		}

		if claims.Scope != scope {
			abortUnauthorized(c, "NOT_AUTHORIZED", "Invalid session token")
			return
		}

		if !csrfCheckPasses(c, claims, csrfProtectReads) {
			abortUnauthorized(c, "CSRF_FAILED", "CSRF token missing or invalid")
			return
		}

		bindClaims(c, claims)
		c.Next()
	}
}

func respondTokenError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		abortUnauthorized(c, "TOKEN_EXPIRED", "Session token expired")
	default:
		abortUnauthorized(c, "NOT_AUTHORIZED", "Invalid session token")
	}
}

// csrfCheckPasses applies the double-submit rule. Unsafe methods are always
// checked; safe methods only when protected reads are configured.
func csrfCheckPasses(c *gin.Context, claims *security.SessionClaims, protectReads bool) bool {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		if !protectReads {
			return true
		}
	}

	header := c.GetHeader(CSRFHeader)
	if header == "" || claims.CSRF == "" {
		return false
	}
	return security.ConstantTimeEquals(header, claims.CSRF)
}

func bindClaims(c *gin.Context, claims *security.SessionClaims) {
	c.Set(UserIDKey, claims.UserID())
	c.Set(ClaimsKey, claims)

	if reqCtx := GetRequestContext(c); reqCtx != nil {
		reqCtx.UserID = claims.UserID()
	}
}

// CurrentClaims retrieves the verified session claims bound by RequireSession
// or RequireRefresh.
func CurrentClaims(c *gin.Context) (*security.SessionClaims, bool) {
	value, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*security.SessionClaims)
	return claims, ok
}
