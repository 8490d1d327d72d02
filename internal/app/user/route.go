package user

import (
	"gamezone/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(api *gin.RouterGroup, handler Handler, auth gin.HandlerFunc) {
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", handler.Login)
		authGroup.POST("/logout", handler.Logout)
		authGroup.GET("/me", auth, handler.Me)
	}

	admin := api.Group("/admin/users", auth, middleware.RequireRole(middleware.RoleAdmin))
	{
		admin.POST("", handler.CreateUser)
		admin.DELETE("/:id", handler.DeleteUser)
	}
}
