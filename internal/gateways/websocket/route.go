package websocket

import "github.com/gin-gonic/gin"

func RegisterRoutes(rg gin.IRoutes, hub *Hub, allowedOrigin string) {
	rg.GET("/ws", hub.ServeWS(allowedOrigin))
}
