package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/survey-api/internal/middleware"
)

// Routes зависимости HTTP-маршрутов сервиса аутентификации
type Routes struct {
	Auth           *AuthHandler
	Users          *UserHandler
	AuthMiddleware *middleware.AuthMiddleware
	// LoginLimit и ResetLimit необязательны; nil отключает ограничение
	LoginLimit gin.HandlerFunc
	ResetLimit gin.HandlerFunc
}

// RegisterRoutes регистрирует маршруты /health, /api/auth и /api/users
func RegisterRoutes(router *gin.Engine, r Routes) {
	router.GET("/health", Health)

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/signup", r.Auth.Signup)
			authGroup.POST("/login", withLimit(r.LoginLimit, r.Auth.Login)...)
			authGroup.POST("/forgot-password", withLimit(r.ResetLimit, r.Auth.ForgotPassword)...)
			authGroup.POST("/reset-password", withLimit(r.ResetLimit, r.Auth.ResetPassword)...)

			authedAuth := authGroup.Group("")
			authedAuth.Use(r.AuthMiddleware.RequireAuth())
			{
				authedAuth.POST("/logout", r.Auth.Logout)
				authedAuth.POST("/verify", r.Auth.Verify)
				authedAuth.POST("/change-password", r.Auth.ChangePassword)
			}
		}

		users := api.Group("/users")
		users.Use(r.AuthMiddleware.RequireAuth())
		{
			users.GET("/me", r.Users.GetMe)
			users.DELETE("/me", r.Users.DeleteMe)
		}
	}
}

func withLimit(limit gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{limit, h}
}
