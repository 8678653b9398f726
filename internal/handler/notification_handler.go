package handler

import (
	"Bridgeup/internal/event"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserNotifier is the hub's per-user delivery primitive.
type UserNotifier interface {
	SendToUser(userID string, ev event.WsEvent) bool
}

// NotificationHandler lets other services push an event to a user's sockets.
type NotificationHandler interface {
	Deliver(c *gin.Context)
}

type notificationHandler struct {
	notifier UserNotifier
	logger   *zap.Logger
}

func NewNotificationHandler(notifier UserNotifier, logger *zap.Logger) NotificationHandler {
	return &notificationHandler{
		notifier: notifier,
		logger:   logger,
	}
}

type deliverRequest struct {
	RecipientID string          `json:"recipientId"`
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload"`
}

// Deliver reports delivered=false when the recipient is offline; that is not
// an error, the caller owns any durable copy.
func (h *notificationHandler) Deliver(c *gin.Context) {
	var req deliverRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RecipientID == "" {
		fail(c, http.StatusBadRequest, "recipientId is required")
		return
	}
	if req.Event == "" {
		req.Event = event.EventNotification
	}
	if !event.IsNotificationKind(req.Event) {
		fail(c, http.StatusBadRequest, "event not allowed: "+req.Event)
		return
	}

	delivered := h.notifier.SendToUser(req.RecipientID, event.WsEvent{Event: req.Event, Payload: req.Payload})
	h.logger.Debug("notification relayed",
		zap.String("recipient_id", req.RecipientID),
		zap.String("event", req.Event),
		zap.Bool("delivered", delivered),
	)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"delivered": delivered,
	})
}
