package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/socialhub/backend/internal/config"
	"github.com/socialhub/backend/internal/metrics"
	"github.com/socialhub/backend/internal/service"
)

// NewRouter wires middleware and every route onto a fresh gin engine.
func NewRouter(cfg config.ServerConfig, authService *service.AuthService, m *metrics.Registry, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		Recovery(logger),
		RequestLogger(logger),
		m.GinMiddleware(),
		SecurityHeaders(),
		CORSMiddleware(cfg.AllowedOrigins, true),
	)

	router.GET("/ping", Ping)
	router.GET("/", Root)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/openapi.json", OpenAPIDoc)

	extractor := NewTokenExtractor(authService.Transport(), authService.CookieConfig().Name)
	authHandler := NewAuthHandler(authService, extractor, m, logger)
	requireAuth := AuthMiddleware(authService, extractor, m, logger)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/password/forgot", authHandler.ForgotPassword)
		auth.POST("/password/reset", authHandler.ResetPassword)
		auth.POST("/email/verify", authHandler.VerifyEmail)

		protected := auth.Group("", requireAuth)
		protected.GET("/me", authHandler.Me)
		protected.PATCH("/me", authHandler.UpdateMe)
		protected.POST("/password", authHandler.ChangePassword)
		protected.POST("/email/verify/request", authHandler.RequestEmailVerification)
	}

	return router
}
