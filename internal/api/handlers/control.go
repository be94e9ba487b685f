package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/models"
)

// ListShares 分享链接列表
func (h *Handler) ListShares(c *gin.Context) {
	shares, err := h.tracker.ListShares(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to list shares")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": shares})
}

// CreateShare 创建分享链接
// POST /api/shares {"message": "..."}
func (h *Handler) CreateShare(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	share, err := h.tracker.CreateShare(c.Request.Context(), req.Message)
	if err != nil {
		h.fail(c, err, "Failed to create share")
		return
	}

	h.logger.Info("Share created via API", zap.String("share_id", share.ShareID))
	c.JSON(http.StatusCreated, gin.H{"data": share})
}

// DeactivateShare 停用分享链接
func (h *Handler) DeactivateShare(c *gin.Context) {
	id := c.Param("id")
	if err := h.tracker.DeactivateShare(c.Request.Context(), id); err != nil {
		h.fail(c, err, "Failed to deactivate share")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Share deactivated", "share_id": id})
}

// SendCommand 发送远程命令
// POST /api/command {"command": "led_control", "on": true}
func (h *Handler) SendCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
		On      bool   `json:"on"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	cmd, err := models.ParseCommandType(req.Command)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.tracker.SendCommand(c.Request.Context(), cmd, req.On); err != nil {
		h.fail(c, err, "Failed to send command")
		return
	}

	h.logger.Info("Command sent via API", zap.String("command", string(cmd)), zap.Bool("on", req.On))
	c.JSON(http.StatusOK, gin.H{
		"message": "Command sent",
		"command": cmd,
		"on":      req.On,
	})
}

// LiveLocation 打开实时追踪，等待一次新定位
func (h *Handler) LiveLocation(c *gin.Context) {
	fix, err := h.tracker.LiveLocation(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to get live location")
		return
	}
	h.wsHub.BroadcastLocation(models.LocationUpdate{Fix: fix, RecordedAt: fix.Timestamp()})
	c.JSON(http.StatusOK, gin.H{"data": fix})
}
