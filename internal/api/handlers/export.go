package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/export"
)

// ExportCSV 导出最近几天的轨迹为 CSV
// GET /api/export.csv?days=7&datetime=true
func (h *Handler) ExportCSV(c *gin.Context) {
	days, ok := queryInt(c, "days", 7)
	if !ok {
		return
	}
	withDatetime := c.Query("datetime") != "false"

	to := time.Now()
	from := to.AddDate(0, 0, -days)
	points, err := h.tracker.HistoryPoints(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err, "Failed to export history")
		return
	}

	rows := export.Annotate(points)
	filename := fmt.Sprintf("%s_%s.csv", h.tracker.TrackerID(), to.UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)

	if err := export.Write(c.Writer, rows, withDatetime); err != nil {
		h.logger.Error("Failed to write csv", zap.Error(err))
		return
	}
	if l, ok := h.tracker.(export.Listener); ok {
		l.DataExported(filename, len(rows), len(rows))
	}
}
