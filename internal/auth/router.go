package auth

import (
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupAuthRoutes(router *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	auth := router.Group("/auth")
	{
		auth.POST("/register", controller.Register) // POST /api/v1/auth/register
		auth.POST("/login", controller.Login)       // POST /api/v1/auth/login
		auth.POST("/refresh", controller.RefreshToken)

		protected := auth.Group("")
		protected.Use(middleware.JWTAuthWithConfig(cfg))
		{
			protected.PUT("/change-password", controller.ChangePassword)
			protected.GET("/me", controller.GetMe) // GET /api/v1/auth/me
		}
	}
}
