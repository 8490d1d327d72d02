package session

import (
	"gamezone/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the session API under api. auth identifies the caller; cron guards the sweep trigger.
func RegisterRoutes(api *gin.RouterGroup, handler Handler, auth gin.HandlerFunc, cron gin.HandlerFunc) {
	api.GET("/exit", handler.Exit)
	api.POST("/exit", handler.Exit)
	api.POST("/cron/auto-extend", cron, handler.AutoExtend)

	sessions := api.Group("/sessions", auth)
	staff := middleware.RequireRole(middleware.RoleAdmin, middleware.RoleAssistant)
	{
		sessions.POST("", handler.CreateSession)
		sessions.GET("", staff, handler.ListSessions)
		sessions.GET("/:id", handler.GetSession)
		sessions.POST("/:id/end", staff, handler.EndSession)
		sessions.POST("/:id/exit-credential", handler.IssueExitCredential)
	}

	admin := api.Group("/admin/sessions", auth, middleware.RequireRole(middleware.RoleAdmin))
	{
		admin.DELETE("/:id", handler.DeleteSession)
		admin.POST("/export", handler.ExportSessions)
	}
}
