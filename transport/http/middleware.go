package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/service"
	"go.uber.org/zap"
)

const (
	HeaderRefreshToken   = "X-Refresh-Token"
	HeaderNewAccessToken = "X-New-Access-Token"
	HeaderTokenRefreshed = "X-Token-Refreshed"

	accessTokenQueryParam = "access_token"
	ctxKeyClaims          = "claims"
)

// AuthMiddleware verifies the access token of every request. When the
// token fails verification and the caller sent X-Refresh-Token, a new
// access token is minted inline and echoed in X-New-Access-Token.
func AuthMiddleware(authService *service.AuthService, metrics *Metrics, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var (
			claims *core.Claims
			err    = core.ErrUnauthorized
		)
		if token := accessToken(c); token != "" {
			claims, err = authService.ValidateAccessToken(ctx, token)
		}
		if err == nil {
			metrics.Observe(OpAuthenticate, nil)
			c.Set(ctxKeyClaims, claims)
			c.Next()
			return
		}

		refreshToken := strings.TrimSpace(c.GetHeader(HeaderRefreshToken))
		if refreshToken == "" {
			metrics.Observe(OpAuthenticate, err)
			abortWithError(c, err)
			return
		}

		access, err := authService.RecoverAccess(ctx, refreshToken)
		if err == nil {
			claims, err = authService.ValidateAccessToken(ctx, access.Value)
		}
		metrics.Observe(OpRecover, err)
		if err != nil {
			logger.Warn("inline token recovery failed", zap.String("reason", string(core.ReasonOf(err))))
			abortWithError(c, err)
			return
		}

		c.Header(HeaderNewAccessToken, access.Value)
		c.Header(HeaderTokenRefreshed, "true")
		c.Set(ctxKeyClaims, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the claims stored by AuthMiddleware
func ClaimsFromContext(c *gin.Context) (*core.Claims, bool) {
	v, ok := c.Get(ctxKeyClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*core.Claims)
	return claims, ok && claims != nil
}

func accessToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(c.Query(accessTokenQueryParam))
}
