package handler

import (
	"Bridgeup/internal/middleware"
	"Bridgeup/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type MessageHandler interface {
	SendMessage(c *gin.Context)
	GetMessages(c *gin.Context)
	GetUnreadCount(c *gin.Context)
	GetMessageSummary(c *gin.Context)
	MarkAsRead(c *gin.Context)
}

type messageHandler struct {
	service service.MessageService
	logger  *zap.Logger
}

func NewMessageHandler(service service.MessageService, logger *zap.Logger) MessageHandler {
	return &messageHandler{
		service: service,
		logger:  logger,
	}
}

type sendMessageRequest struct {
	ReceiverID   string `json:"receiverId"`
	Content      string `json:"content"`
	ConnectionID string `json:"connectionId"`
}

type markReadRequest struct {
	ConnectionID string   `json:"connectionId"`
	MessageIDs   []string `json:"messageIds"`
}

func (h *messageHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ReceiverID == "" || req.Content == "" || req.ConnectionID == "" {
		fail(c, http.StatusBadRequest, "Missing required fields: receiverId, content, connectionId")
		return
	}

	msg, err := h.service.Send(c.Request.Context(), middleware.MustUserID(c), req.ReceiverID, req.ConnectionID, req.Content)
	if err != nil {
		respondError(c, h.logger, "send message", err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// GetMessages returns the conversation oldest first and marks everything the
// requester received on it as read.
func (h *messageHandler) GetMessages(c *gin.Context) {
	connectionID := c.Param("connectionId")
	if !primitive.IsValidObjectID(connectionID) {
		fail(c, http.StatusBadRequest, "Invalid connection ID format")
		return
	}
	userID := middleware.MustUserID(c)

	msgs, err := h.service.ListForConnection(c.Request.Context(), connectionID, userID)
	if err != nil {
		respondError(c, h.logger, "get messages", err)
		return
	}

	if _, err := h.service.MarkRead(c.Request.Context(), connectionID, userID, nil); err != nil {
		h.logger.Warn("failed to mark conversation read",
			zap.String("connection_id", connectionID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": msgs,
		"count":    len(msgs),
	})
}

func (h *messageHandler) GetUnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(c.Request.Context(), middleware.MustUserID(c))
	if err != nil {
		respondError(c, h.logger, "unread count", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"count":       count,
		"unreadCount": count,
	})
}

func (h *messageHandler) GetMessageSummary(c *gin.Context) {
	connectionID := c.Param("connectionId")
	if !primitive.IsValidObjectID(connectionID) {
		fail(c, http.StatusBadRequest, "Invalid connection ID format")
		return
	}

	summary, err := h.service.ConversationSummary(c.Request.Context(), connectionID, middleware.MustUserID(c))
	if err != nil {
		respondError(c, h.logger, "message summary", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"lastMessage":  summary.LastMessage,
		"unreadCount":  summary.UnreadCount,
		"connectionId": summary.ConnectionID,
	})
}

func (h *messageHandler) MarkAsRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ConnectionID == "" {
		fail(c, http.StatusBadRequest, "Connection ID is required")
		return
	}

	modified, err := h.service.MarkRead(c.Request.Context(), req.ConnectionID, middleware.MustUserID(c), req.MessageIDs)
	if err != nil {
		respondError(c, h.logger, "mark read", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Messages marked as read",
		"modifiedCount": modified,
	})
}
