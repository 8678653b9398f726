package handler

import (
	"Bridgeup/internal/service"
	"Bridgeup/internal/signaling"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// respondError maps domain errors onto HTTP status codes. Anything unknown is
// logged and reported as a server error.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, service.ErrForbidden), errors.Is(err, signaling.ErrNotParticipant):
		fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, signaling.ErrCallNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidArgument):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, signaling.ErrInvalidTransition):
		fail(c, http.StatusConflict, err.Error())
	default:
		logger.Error(op+" failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error")
	}
}
