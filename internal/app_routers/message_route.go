package approuters

import (
	"Bridgeup/internal/configuration"
	"Bridgeup/internal/middleware"

	"github.com/gin-gonic/gin"
)

func MessageRouters(router *gin.Engine, container *configuration.Container) {
	messageRoute := router.Group("/api/messages", middleware.AuthMiddleware(container.Config.Auth.JwtSecret))
	{
		messageRoute.POST("", container.MessageHandler.SendMessage)
		messageRoute.GET("/connection/:connectionId", container.MessageHandler.GetMessages)
		messageRoute.GET("/unread-count", container.MessageHandler.GetUnreadCount)
		messageRoute.GET("/summary/:connectionId", container.MessageHandler.GetMessageSummary)
		messageRoute.POST("/mark-read", container.MessageHandler.MarkAsRead)
	}
}
