package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/gatekeeper/core"
)

var descriptions = map[core.Reason]string{
	core.ReasonCaptchaInvalidOrExpired: "Captcha is invalid or has expired",
	core.ReasonInvalidCredentials:      "Invalid account name or password",
	core.ReasonTokenMalformed:          "Token is malformed",
	core.ReasonTokenExpired:            "Token has expired",
	core.ReasonTokenSignatureInvalid:   "Token signature is invalid",
	core.ReasonRefreshTokenMismatch:    "Refresh token has been revoked or replaced",
	core.ReasonRefreshRecordAbsent:     "Session has ended",
	core.ReasonPrincipalNotFound:       "Account no longer exists",
	core.ReasonUnauthorized:            "Missing or invalid authorization header",
	core.ReasonInternal:                "Internal server error",
}

var errInvalidRequest = errors.New("invalid request")

// abortWithError writes the error body for err and stops the handler chain.
// Auth failures map to 401, anything else to 500.
func abortWithError(c *gin.Context, err error) {
	reason := core.ReasonOf(err)
	status := http.StatusUnauthorized
	if reason == core.ReasonInternal {
		status = http.StatusInternalServerError
		_ = c.Error(err)
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":             reason,
		"error_description": descriptions[reason],
	})
}

func abortInvalidRequest(c *gin.Context, err error) {
	_ = c.Error(errors.Join(errInvalidRequest, err))
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":             "invalid_request",
		"error_description": "Invalid request",
	})
}
