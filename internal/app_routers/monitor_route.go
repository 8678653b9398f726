package approuters

import (
	"Bridgeup/internal/configuration"

	"github.com/gin-gonic/gin"
)

// MonitorRouters sets up health and monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	router.GET("/api/health", container.MonitorHandler.GetHealth)

	// Monitor API group
	monitorGroup := router.Group("/api/monitor")
	{
		// GET /api/monitor/stats - Get hub statistics
		monitorGroup.GET("/stats", container.MonitorHandler.GetHubStats)
	}
}
