package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/models"
)

// GetStatus 获取设备状态
// GET /api/status?partial=true 只用硬件报告
func (h *Handler) GetStatus(c *gin.Context) {
	partial := c.Query("partial") == "true"

	status, err := h.tracker.DeviceStatus(c.Request.Context(), partial)
	if err != nil {
		h.fail(c, err, "Failed to get device status")
		return
	}

	h.wsHub.BroadcastStatus(status)
	c.JSON(http.StatusOK, gin.H{
		"data":            status,
		"battery_health":  status.BatteryHealth(),
		"needs_attention": status.NeedsAttention(),
		"online":          status.IsOnline(),
	})
}

// GetBattery 电量，配置归档时附带历史曲线
func (h *Handler) GetBattery(c *gin.Context) {
	hours, ok := queryInt(c, "hours", 24)
	if !ok {
		return
	}

	// 省电模式只在完整状态里有
	ctx := c.Request.Context()
	status, err := h.tracker.DeviceStatus(ctx, false)
	if err != nil {
		h.fail(c, err, "Failed to get battery level")
		return
	}

	resp := gin.H{
		"battery_level": status.BatteryLevel,
		"health":        status.BatteryHealth(),
		"low":           status.IsLowBattery(),
		"critical":      status.IsCriticalBattery(),
		"save_mode":     status.BatterySaveMode,
	}
	if h.archive != nil {
		since := time.Now().Add(-time.Duration(hours) * time.Hour)
		history, err := h.archive.BatteryHistory(ctx, h.tracker.TrackerID(), since)
		if err != nil {
			h.logger.Warn("Failed to load battery history", zap.Error(err))
		} else {
			resp["history"] = history
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetTrackerInfo 追踪器硬件信息
func (h *Handler) GetTrackerInfo(c *gin.Context) {
	info, err := h.tracker.TrackerInfo(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to get tracker info")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}

// GetStats 请求统计
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.tracker.Stats()})
}

// GetLocation 获取当前位置
// GET /api/location?max_age=60&address=true
func (h *Handler) GetLocation(c *gin.Context) {
	maxAge, ok := queryInt(c, "max_age", 0)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	fix, err := h.tracker.CurrentLocation(ctx, time.Duration(maxAge)*time.Second)
	if err != nil {
		h.fail(c, err, "Failed to get current location")
		return
	}

	resp := gin.H{
		"location": fix,
		"accuracy": fix.AccuracyLevel(),
		"moving":   fix.IsMoving(),
	}
	if h.geocoder != nil && c.Query("address") == "true" {
		addr, err := h.geocoder.ReverseGeocode(ctx, fix.Latitude(), fix.Longitude())
		if err != nil {
			h.logger.Warn("Reverse geocoding failed", zap.Error(err))
		} else {
			resp["address"] = addr
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetHome 与家的距离
// GET /api/home?threshold=100
func (h *Handler) GetHome(c *gin.Context) {
	var threshold float64
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid threshold"})
			return
		}
		threshold = v
	}

	home, err := h.tracker.HomeStatus(c.Request.Context(), threshold)
	if err != nil {
		h.fail(c, err, "Failed to get home status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": home})
}

// GetHistory 历史轨迹
// GET /api/history?hours=24&analytics=false
func (h *Handler) GetHistory(c *gin.Context) {
	hours, ok := queryInt(c, "hours", 24)
	if !ok {
		return
	}
	analytics := c.Query("analytics") != "false"

	history, err := h.tracker.History(c.Request.Context(), hours, analytics)
	if err != nil {
		h.fail(c, err, "Failed to get location history")
		return
	}

	_, empty := history.(models.EmptyHistory)
	c.JSON(http.StatusOK, gin.H{
		"data":           history,
		"location_count": history.LocationCount(),
		"empty":          empty,
	})
}

// GetArchive 归档中的位置
// GET /api/archive?hours=24
func (h *Handler) GetArchive(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive not configured"})
		return
	}
	hours, ok := queryInt(c, "hours", 24)
	if !ok {
		return
	}

	to := time.Now()
	from := to.Add(-time.Duration(hours) * time.Hour)
	positions, err := h.archive.ListPositions(c.Request.Context(), h.tracker.TrackerID(), from, to)
	if err != nil {
		h.logger.Error("Failed to list archived positions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list archived positions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": positions, "count": len(positions)})
}

// GetPet 宠物资料
func (h *Handler) GetPet(c *gin.Context) {
	pet, err := h.tracker.PetData(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to get pet data")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":                pet,
		"profile_picture_url": pet.ProfilePictureURL(h.tracker.BaseURL()),
	})
}
