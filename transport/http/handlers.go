package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/service"
	"go.uber.org/zap"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	metrics     *Metrics
	logger      *zap.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, metrics *Metrics, logger *zap.Logger) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{
		authService: authService,
		metrics:     metrics,
		logger:      logger,
	}
}

// Captcha issues a new challenge
func (h *AuthHandlers) Captcha(c *gin.Context) {
	challenge, err := h.authService.Challenges().Issue(c.Request.Context())
	h.metrics.Observe(OpCaptchaIssue, err)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, challengeResponse(challenge))
}

// VerifyCaptcha checks an answer without logging in. A correct answer
// consumes the challenge.
func (h *AuthHandlers) VerifyCaptcha(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		Answer    string `json:"answer" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, err)
		return
	}

	valid, err := h.authService.Challenges().Verify(c.Request.Context(), req.SessionID, req.Answer)
	h.metrics.Observe(OpCaptchaVerify, err)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// RefreshCaptcha replaces a challenge with a new one
func (h *AuthHandlers) RefreshCaptcha(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
	}

	// The body is optional
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			abortInvalidRequest(c, err)
			return
		}
	}

	challenge, err := h.authService.Challenges().Refresh(c.Request.Context(), req.SessionID)
	h.metrics.Observe(OpCaptchaRefresh, err)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, challengeResponse(challenge))
}

// Login handles the login request
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		AccountName     string `json:"account_name" binding:"required"`
		Password        string `json:"password" binding:"required"`
		ChallengeAnswer string `json:"challenge_answer" binding:"required"`
		SessionID       string `json:"session_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, err)
		return
	}

	pair, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		AccountName:     req.AccountName,
		Password:        req.Password,
		ChallengeAnswer: req.ChallengeAnswer,
		SessionID:       req.SessionID,
	})
	h.metrics.Observe(OpLogin, err)
	if err != nil {
		h.logger.Warn("login failed", zap.String("reason", string(core.ReasonOf(err))))
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortInvalidRequest(c, err)
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	h.metrics.Observe(OpRefresh, err)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Logout ends the caller's session
func (h *AuthHandlers) Logout(c *gin.Context) {
	claims, ok := ClaimsFromContext(c)
	if !ok {
		abortWithError(c, core.ErrUnauthorized)
		return
	}

	err := h.authService.Logout(c.Request.Context(), claims.PrincipalID)
	h.metrics.Observe(OpLogout, err)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the claims of the authenticated principal
func (h *AuthHandlers) Me(c *gin.Context) {
	claims, ok := ClaimsFromContext(c)
	if !ok {
		abortWithError(c, core.ErrUnauthorized)
		return
	}

	scopes := claims.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"principal_id": claims.PrincipalID,
		"account_name": claims.AccountName,
		"scopes":       scopes,
		"issued_at":    claims.IssuedAt.Unix(),
		"expires_at":   claims.ExpiresAt.Unix(),
	})
}

// Authorize confirms the access token is valid
func (h *AuthHandlers) Authorize(c *gin.Context) {
	// Reaching this handler means the middleware accepted the token
	claims, ok := ClaimsFromContext(c)
	if !ok {
		abortWithError(c, core.ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized":   true,
		"principal_id": claims.PrincipalID,
	})
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func challengeResponse(ch *core.IssuedChallenge) gin.H {
	return gin.H{
		"session_id":      ch.SessionID,
		"challenge_image": ch.Image,
		"expires_in":      ch.ExpiresIn,
	}
}

func tokenResponse(pair core.TokenPair) gin.H {
	return gin.H{
		"access_token":  pair.Access.Value,
		"refresh_token": pair.Refresh.Value,
		"token_type":    "Bearer",
		"expires_in":    pair.ExpiresIn(),
	}
}
