package handler

import (
	"Bridgeup/internal/hub"
	"Bridgeup/internal/middleware"
	"Bridgeup/internal/repo"
	"Bridgeup/internal/signaling"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VideoCallHandler exposes live call state and call history over HTTP.
// Call setup itself only happens over the socket.
type VideoCallHandler interface {
	GetCallStatus(c *gin.Context)
	GetCallHistory(c *gin.Context)
	EndCall(c *gin.Context)
}

type videoCallHandler struct {
	calls   *hub.CallHandler
	history repo.CallRepository
	logger  *zap.Logger
}

func NewVideoCallHandler(calls *hub.CallHandler, history repo.CallRepository, logger *zap.Logger) VideoCallHandler {
	return &videoCallHandler{
		calls:   calls,
		history: history,
		logger:  logger,
	}
}

func (h *videoCallHandler) GetCallStatus(c *gin.Context) {
	s, ok := h.calls.Registry().Get(c.Param("callId"))
	if !ok {
		fail(c, http.StatusNotFound, "Call not found")
		return
	}
	if !s.IsParticipant(middleware.MustUserID(c)) {
		respondError(c, h.logger, "call status", signaling.ErrNotParticipant)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"call":    s,
	})
}

func (h *videoCallHandler) GetCallHistory(c *gin.Context) {
	page, err := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	if err != nil || page < 1 {
		fail(c, http.StatusBadRequest, "Invalid page number")
		return
	}

	result, err := h.history.History(c.Request.Context(), middleware.MustUserID(c), page)
	if err != nil {
		respondError(c, h.logger, "call history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"callHistory": result.Data,
		"page":        result.Page,
		"total":       result.Total,
		"totalPages":  result.TotalPages,
	})
}

func (h *videoCallHandler) EndCall(c *gin.Context) {
	s, err := h.calls.EndCall(c.Param("callId"), middleware.MustUserID(c))
	if err != nil {
		respondError(c, h.logger, "end call", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Call ended successfully",
		"duration": s.Duration(),
	})
}
