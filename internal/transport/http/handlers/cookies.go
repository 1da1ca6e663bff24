package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/transport/http/middleware"
	"github.com/Wittle-South-LLC/olsnet/internal/usecase"
)

// sessionCookieAges derives the cookie max ages in seconds from the token
// lifetimes so cookies and tokens expire together.
func sessionCookieAges(cfg config.JWTSettings) (accessMaxAge, refreshMaxAge int) {
	return int(cfg.AccessTokenTTL.Seconds()), int(cfg.RefreshTokenTTL.Seconds())
}

// setSessionCookies writes the four session cookies: the two tokens as
// HTTP-only cookies and their CSRF twins as script-readable cookies.
func setSessionCookies(c *gin.Context, cfg config.JWTSettings, pair usecase.TokenPair, accessMaxAge, refreshMaxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, pair.AccessToken, accessMaxAge, "/", cfg.CookieDomain, cfg.CookieSecure, true)
	c.SetCookie(middleware.CSRFAccessCookie, pair.CSRFAccess, accessMaxAge, "/", cfg.CookieDomain, cfg.CookieSecure, false)
	setRefreshCookies(c, cfg, pair.RefreshToken, pair.CSRFRefresh, refreshMaxAge)
}

// setRefreshCookies writes only the refresh pair. The password reset start
// path uses this so the finish step can prove continuity of client.
func setRefreshCookies(c *gin.Context, cfg config.JWTSettings, refreshToken, refreshCSRF string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.RefreshTokenCookie, refreshToken, maxAge, "/", cfg.CookieDomain, cfg.CookieSecure, true)
	c.SetCookie(middleware.CSRFRefreshCookie, refreshCSRF, maxAge, "/", cfg.CookieDomain, cfg.CookieSecure, false)
}

// clearSessionCookies expires all four cookies. Logout is purely
// client-side state removal; tokens are not tracked server-side.
func clearSessionCookies(c *gin.Context, cfg config.JWTSettings) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", cfg.CookieDomain, cfg.CookieSecure, true)
	c.SetCookie(middleware.CSRFAccessCookie, "", -1, "/", cfg.CookieDomain, cfg.CookieSecure, false)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, "/", cfg.CookieDomain, cfg.CookieSecure, true)
	c.SetCookie(middleware.CSRFRefreshCookie, "", -1, "/", cfg.CookieDomain, cfg.CookieSecure, false)
}
