package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/gatekeeper/service"
	"go.uber.org/zap"
)

// RouterOptions carries the optional collaborators of the router
type RouterOptions struct {
	Logger      *zap.Logger
	Metrics     *Metrics
	RateLimiter *RateLimiter
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewAuthHandlers(authService, opts.Metrics, logger)
	authenticate := AuthMiddleware(authService, opts.Metrics, logger)

	router.GET("/healthz", handlers.Health)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	// Auth routes
	auth := router.Group("/auth")
	auth.Use(opts.RateLimiter.Handler())
	{
		auth.POST("/captcha", handlers.Captcha)
		auth.POST("/captcha/verify", handlers.VerifyCaptcha)
		auth.POST("/captcha/refresh", handlers.RefreshCaptcha)
		auth.POST("/login", handlers.Login)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", authenticate, handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(authenticate)
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	return router
}
