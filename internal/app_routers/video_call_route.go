package approuters

import (
	"Bridgeup/internal/configuration"
	"Bridgeup/internal/middleware"

	"github.com/gin-gonic/gin"
)

func VideoCallRouters(router *gin.Engine, container *configuration.Container) {
	callRoute := router.Group("/api/video-call", middleware.AuthMiddleware(container.Config.Auth.JwtSecret))
	{
		callRoute.GET("/status/:callId", container.VideoCallHandler.GetCallStatus)
		callRoute.GET("/history", container.VideoCallHandler.GetCallHistory)
		callRoute.POST("/end/:callId", container.VideoCallHandler.EndCall)
	}
}
