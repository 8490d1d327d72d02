package game

import "github.com/gin-gonic/gin"

func RegisterRoutes(public gin.IRoutes, admin gin.IRoutes, handler Handler) {
	public.GET("/games", handler.ListGames)
	public.GET("/games/:id", handler.GetGame)

	admin.POST("/games", handler.CreateGame)
	admin.PATCH("/games/:id", handler.UpdateGame)
}
