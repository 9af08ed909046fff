package http

import (
	"net/http"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/pkg/errors"
	"livecast/pkg/validation"

	"github.com/gin-gonic/gin"
)

// RoomHandler serves read-only room statistics.
type RoomHandler struct {
	service ports.BroadcastService
}

var _ ports.RoomHTTPHandler = (*RoomHandler)(nil)

func NewRoomHandler(service ports.BroadcastService) *RoomHandler {
	return &RoomHandler{service: service}
}

func (h *RoomHandler) SetupRoutes(group gin.IRouter) {
	group.GET("/rooms", h.ListRooms)
	group.GET("/rooms/:id", h.GetRoom)
}

type roomListResponse struct {
	Rooms    []domain.RoomSnapshot `json:"rooms"`
	Sessions int                   `json:"sessions"`
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.service.Rooms(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if rooms == nil {
		rooms = []domain.RoomSnapshot{}
	}
	c.JSON(http.StatusOK, roomListResponse{
		Rooms:    rooms,
		Sessions: h.service.SessionCount(),
	})
}

// GetRoom reports zeros for rooms nobody has joined.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room := c.Param("id")
	if err := validation.ValidateRoomID(room); err != nil {
		_ = c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	snapshot, err := h.service.Room(c.Request.Context(), domain.RoomID(room))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
