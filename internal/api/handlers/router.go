package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 设备
		api.GET("/status", h.GetStatus)
		api.GET("/battery", h.GetBattery)
		api.GET("/tracker", h.GetTrackerInfo)
		api.GET("/stats", h.GetStats)

		// 位置
		api.GET("/location", h.GetLocation)
		api.GET("/home", h.GetHome)
		api.GET("/history", h.GetHistory)
		api.GET("/archive", h.GetArchive)
		api.GET("/export.csv", h.ExportCSV)

		// 宠物
		api.GET("/pet", h.GetPet)

		// 分享
		api.GET("/shares", h.ListShares)
		api.POST("/shares", h.CreateShare)
		api.DELETE("/shares/:id", h.DeactivateShare)

		// 控制
		api.POST("/command", h.SendCommand)
		api.POST("/live", h.LiveLocation)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}
