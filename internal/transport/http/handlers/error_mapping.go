package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wittle-South-LLC/olsnet/internal/infra/security"
	"github.com/Wittle-South-LLC/olsnet/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status, stable key, and text.
type ErrorCase struct {
	Err    error
	Status int
	Key    string
	Text   string
}

// RespondWithMappedError resolves the error against the provided cases,
// then the shared cases, then a generic 500. Infrastructure details never
// reach the client.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var rateErr *usecase.RateLimitExceededError
	if errors.As(err, &rateErr) {
		respondRateLimited(c, rateErr)
		return
	}

	var weakErr *security.PasswordValidationError
	if errors.As(err, &weakErr) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, http.StatusBadRequest, KeyWeakPassword, weakErr.Error()))
		return
	}

	for _, cs := range append(cases, sharedErrorCases...) {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Status, cs.Key, cs.Text))
			return
		}
	}

	c.JSON(http.StatusInternalServerError,
		NewErrorResponse(c, http.StatusInternalServerError, KeyInternalError, "An internal error occurred"))
}

// sharedErrorCases cover sentinels that can surface from any operation.
var sharedErrorCases = []ErrorCase{
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Key: KeyUserIDNotFound, Text: "User ID not found"},
	{Err: security.ErrTokenExpired, Status: http.StatusUnauthorized, Key: "TOKEN_EXPIRED", Text: "Session token expired"},
	{Err: security.ErrTokenInvalid, Status: http.StatusUnauthorized, Key: "NOT_AUTHORIZED", Text: "Invalid session token"},
}

func respondRateLimited(c *gin.Context, rateErr *usecase.RateLimitExceededError) {
	retryAfter := int(rateErr.RetryAfter / time.Second)
	if rateErr.RetryAfter%time.Second != 0 {
		retryAfter++
	}
	if retryAfter < 0 {
		retryAfter = 0
	}

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests,
		NewErrorResponse(c, http.StatusTooManyRequests, KeyRateLimited, "Too many attempts, slow down"))
}
