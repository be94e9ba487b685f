package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/clock"
	"github.com/langchou/petgazer/internal/models"
)

// HistoryAPI 历史轨迹依赖的接口
type HistoryAPI interface {
	LocationAPI
}

// HistoryEngine 历史轨迹查询与统计
type HistoryEngine struct {
	api       HistoryAPI
	trackerID string
	clock     clock.Clock
	logger    *zap.Logger
}

// NewHistoryEngine 创建历史轨迹引擎
func NewHistoryEngine(api HistoryAPI, trackerID string, clk clock.Clock, logger *zap.Logger) *HistoryEngine {
	return &HistoryEngine{api: api, trackerID: trackerID, clock: clk, logger: logger}
}

// History 获取最近 hoursBack 小时的轨迹
func (e *HistoryEngine) History(ctx context.Context, hoursBack int, withAnalytics bool) (models.LocationHistory, error) {
	now := e.clock.Now()
	points, err := e.Points(ctx, now.Add(-time.Duration(hoursBack)*time.Hour), now)
	if err != nil {
		return nil, err
	}
	return BuildHistory(points, hoursBack, withAnalytics), nil
}

// Points 拉取区间内所有有效点，按时间升序
func (e *HistoryEngine) Points(ctx context.Context, from, to time.Time) ([]models.GPSFix, error) {
	segments, err := e.api.GetPositions(ctx, e.trackerID, from, to)
	if err != nil {
		return nil, err
	}

	var points []models.GPSFix
	skipped := 0
	for _, segment := range segments {
		for _, rec := range segment {
			fix, err := models.ParseGPSFix(rec)
			if err != nil {
				skipped++
				continue
			}
			points = append(points, fix)
		}
	}
	if skipped > 0 {
		e.logger.Debug("Skipped malformed positions", zap.Int("count", skipped))
	}
	return SortFixes(points), nil
}

// SortFixes 按时间升序稳定排序，保留时间相同的点
func SortFixes(points []models.GPSFix) []models.GPSFix {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp() < points[j].Timestamp()
	})
	return points
}

// BuildHistory 由已排序的点构造结果，没有点时返回 EmptyHistory
func BuildHistory(points []models.GPSFix, hoursBack int, withAnalytics bool) models.LocationHistory {
	if len(points) == 0 {
		return models.EmptyHistory{RequestedHours: hoursBack}
	}

	first, last := points[0], points[len(points)-1]
	h := models.PopulatedHistory{
		Locations:         points,
		StartTime:         first.Time(),
		EndTime:           last.Time(),
		TimeSpanHours:     float64(last.Timestamp()-first.Timestamp()) / 3600,
		AnalyticsIncluded: withAnalytics,
	}
	if withAnalytics {
		h.TotalDistance, h.MaxSpeed, h.AverageSpeed = models.Aggregate(models.PairwiseMetrics(points))
	}
	return h
}
