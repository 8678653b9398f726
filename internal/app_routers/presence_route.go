package approuters

import (
	"Bridgeup/internal/configuration"
	"Bridgeup/internal/middleware"

	"github.com/gin-gonic/gin"
)

func PresenceRouters(router *gin.Engine, container *configuration.Container) {
	presenceRoute := router.Group("/api/presence", middleware.AuthMiddleware(container.Config.Auth.JwtSecret))
	{
		presenceRoute.GET("/online", container.PresenceHandler.GetOnlineUsers)
		presenceRoute.GET("/:userId", container.PresenceHandler.GetUserPresence)
	}
}

func NotificationRouters(router *gin.Engine, container *configuration.Container) {
	notificationRoute := router.Group("/api/notifications", middleware.AuthMiddleware(container.Config.Auth.JwtSecret))
	{
		notificationRoute.POST("/deliver", container.NotificationHandler.Deliver)
	}
}
