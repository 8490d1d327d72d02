package websocket

import (
	"net/http"
	"time"

	"gamezone/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

func newUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "" || origin == "" || origin == allowedOrigin
		},
	}
}

// ServeWS expects the auth middleware to have run; only staff reach it.
func (h *Hub) ServeWS(allowedOrigin string) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigin)

	return func(c *gin.Context) {
		userID, _ := middleware.CurrentUser(c)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Errorw("Failed to upgrade connection",
				"user_id", userID,
				"error", err,
			)
			return
		}

		client := &Client{
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, clientBuffer),
			ID:     generateClientID(),
			UserID: userID,
		}

		h.logger.Infow("WebSocket connection established",
			"client_id", client.ID,
			"user_id", client.UserID,
			"client_ip", c.ClientIP(),
			"user_agent", c.GetHeader("User-Agent"),
		)

		if !h.add(client) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			conn.Close()
			return
		}
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer c.hub.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if conn, ok := c.conn.(*websocket.Conn); ok {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.hub.logger.Debugw("Write failed", "client_id", c.ID, "error", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
