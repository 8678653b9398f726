package handler

import (
	"Bridgeup/internal/hub"
	"net/http"

	"github.com/gin-gonic/gin"
)

type PresenceHandler interface {
	GetOnlineUsers(c *gin.Context)
	GetUserPresence(c *gin.Context)
}

type presenceHandler struct {
	hub *hub.Hub
}

func NewPresenceHandler(h *hub.Hub) PresenceHandler {
	return &presenceHandler{hub: h}
}

func (h *presenceHandler) GetOnlineUsers(c *gin.Context) {
	users := h.hub.OnlineUserIDs()
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"onlineUsers": users,
		"count":       len(users),
	})
}

func (h *presenceHandler) GetUserPresence(c *gin.Context) {
	userID := c.Param("userId")
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"userId":      userID,
		"isOnline":    h.hub.IsOnline(userID),
		"connections": h.hub.ConnectionCount(userID),
		"inCall":      h.hub.Calls().Registry().IsBusy(userID),
	})
}
