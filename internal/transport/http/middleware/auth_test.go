package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/security"
	"github.com/Wittle-South-LLC/olsnet/internal/usecase"
)

func testTokens(t *testing.T) *usecase.TokenService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	provider := &security.StaticKeyProvider{KID: "test-kid", Key: key}
	return usecase.NewTokenService(provider, provider.KID, config.JWTSettings{
		Issuer:          "olsnet",
		AccessTokenTTL:  10 * time.Minute,
		RefreshTokenTTL: 720 * time.Hour,
	})
}

func sessionUser() domain.User {
	return domain.User{
		ID:       "user-1",
		Username: "frodo",
		Roles:    []string{domain.RoleUser},
		Source:   domain.SourceLocal,
	}
}

func newSessionRouter(tokens *usecase.TokenService, protectReads bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	guarded := engine.Group("/", RequireSession(tokens, protectReads))
	guarded.GET("/profile", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey)})
	})
	guarded.POST("/profile", func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "claims not bound"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": claims.Username})
	})
	return engine
}

func doRequest(engine *gin.Engine, method, path string, cookies map[string]string, csrfHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if csrfHeader != "" {
		req.Header.Set(CSRFHeader, csrfHeader)
	}
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	return recorder
}

func responseKey(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body.Key
}

func TestRequireSessionMissingCookie(t *testing.T) {
	engine := newSessionRouter(testTokens(t), false)

	recorder := doRequest(engine, http.MethodPost, "/profile", nil, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if key := responseKey(t, recorder); key != "NOT_AUTHORIZED" {
		t.Fatalf("expected NOT_AUTHORIZED, got %s", key)
	}
}

func TestRequireSessionValidTokenAndCSRF(t *testing.T) {
	tokens := testTokens(t)
	engine := newSessionRouter(tokens, false)

	pair, err := tokens.Issue(sessionUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	recorder := doRequest(engine, http.MethodPost, "/profile",
		map[string]string{AccessTokenCookie: pair.AccessToken}, pair.CSRFAccess)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var body struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	if body.Username != "frodo" {
		t.Fatalf("claims not bound to context, got username %q", body.Username)
	}
}

func TestRequireSessionCSRFMismatch(t *testing.T) {
	tokens := testTokens(t)
	engine := newSessionRouter(tokens, false)

	pair, err := tokens.Issue(sessionUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for _, header := range []string{"", "not-the-right-value"} {
		recorder := doRequest(engine, http.MethodPost, "/profile",
			map[string]string{AccessTokenCookie: pair.AccessToken}, header)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, recorder.Code)
		}
		if key := responseKey(t, recorder); key != "CSRF_FAILED" {
			t.Fatalf("header %q: expected CSRF_FAILED, got %s", header, key)
		}
	}
}

func TestRequireSessionReadProtection(t *testing.T) {
	tokens := testTokens(t)

	pair, err := tokens.Issue(sessionUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	cookies := map[string]string{AccessTokenCookie: pair.AccessToken}

	relaxed := newSessionRouter(tokens, false)
	if recorder := doRequest(relaxed, http.MethodGet, "/profile", cookies, ""); recorder.Code != http.StatusOK {
		t.Fatalf("unprotected read should pass without CSRF header, got %d", recorder.Code)
	}

	strict := newSessionRouter(tokens, true)
	recorder := doRequest(strict, http.MethodGet, "/profile", cookies, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("protected read without CSRF header should fail, got %d", recorder.Code)
	}
	if key := responseKey(t, recorder); key != "CSRF_FAILED" {
		t.Fatalf("expected CSRF_FAILED, got %s", key)
	}

	if recorder := doRequest(strict, http.MethodGet, "/profile", cookies, pair.CSRFAccess); recorder.Code != http.StatusOK {
		t.Fatalf("protected read with CSRF header should pass, got %d", recorder.Code)
	}
}

func TestRequireSessionExpiredToken(t *testing.T) {
	tokens := testTokens(t)
	engine := newSessionRouter(tokens, false)

	tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	pair, err := tokens.Issue(sessionUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	recorder := doRequest(engine, http.MethodPost, "/profile",
		map[string]string{AccessTokenCookie: pair.AccessToken}, pair.CSRFAccess)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if key := responseKey(t, recorder); key != "TOKEN_EXPIRED" {
		t.Fatalf("expected TOKEN_EXPIRED, got %s", key)
	}
}

func TestRequireSessionRejectsRefreshToken(t *testing.T) {
	tokens := testTokens(t)
	engine := newSessionRouter(tokens, false)

	pair, err := tokens.Issue(sessionUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	recorder := doRequest(engine, http.MethodPost, "/profile",
		map[string]string{AccessTokenCookie: pair.RefreshToken}, pair.CSRFRefresh)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if key := responseKey(t, recorder); key != "NOT_AUTHORIZED" {
		t.Fatalf("expected NOT_AUTHORIZED, got %s", key)
	}
}

func TestRequireRefresh(t *testing.T) {
	tokens := testTokens(t)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.PUT("/pw_reset", RequireRefresh(tokens, false), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey)})
	})

	pair, err := tokens.Issue(sessionUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	recorder := doRequest(engine, http.MethodPut, "/pw_reset",
		map[string]string{RefreshTokenCookie: pair.RefreshToken}, pair.CSRFRefresh)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	if body.UserID != "user-1" {
		t.Fatalf("expected bound user id, got %q", body.UserID)
	}

	if recorder := doRequest(engine, http.MethodPut, "/pw_reset",
		map[string]string{RefreshTokenCookie: pair.AccessToken}, pair.CSRFAccess); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("access token in refresh cookie should fail, got %d", recorder.Code)
	}
}

func TestRequireRefreshRejectsResetToken(t *testing.T) {
	tokens := testTokens(t)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/login", RequireRefresh(tokens, false), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey)})
	})

	reset, csrf, err := tokens.IssueResetToken(sessionUser())
	if err != nil {
		t.Fatalf("IssueResetToken: %v", err)
	}

	recorder := doRequest(engine, http.MethodGet, "/login",
		map[string]string{RefreshTokenCookie: reset}, csrf)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("reset token must not rehydrate a session, got %d", recorder.Code)
	}
	if key := responseKey(t, recorder); key != "NOT_AUTHORIZED" {
		t.Fatalf("expected NOT_AUTHORIZED, got %s", key)
	}
}

func TestRequireResetToken(t *testing.T) {
	tokens := testTokens(t)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.PUT("/pw_reset", RequireResetToken(tokens, false), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey)})
	})

	reset, csrf, err := tokens.IssueResetToken(sessionUser())
	if err != nil {
		t.Fatalf("IssueResetToken: %v", err)
	}

	recorder := doRequest(engine, http.MethodPut, "/pw_reset",
		map[string]string{RefreshTokenCookie: reset}, csrf)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	pair, err := tokens.Issue(sessionUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	recorder = doRequest(engine, http.MethodPut, "/pw_reset",
		map[string]string{RefreshTokenCookie: pair.RefreshToken}, pair.CSRFRefresh)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("session refresh token must not finish a reset, got %d", recorder.Code)
	}
	if key := responseKey(t, recorder); key != "NOT_AUTHORIZED" {
		t.Fatalf("expected NOT_AUTHORIZED, got %s", key)
	}
}
