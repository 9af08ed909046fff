package ports

import "github.com/gin-gonic/gin"

type AuthHTTPHandler interface {
	Login(c *gin.Context)
	Refresh(c *gin.Context)
}

type RoomHTTPHandler interface {
	ListRooms(c *gin.Context)
	GetRoom(c *gin.Context)
}

// WebSocketHandler upgrades and serves one client connection.
type WebSocketHandler interface {
	HandleWebSocket(c *gin.Context)
}
