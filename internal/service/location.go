package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/api/tractive"
	"github.com/langchou/petgazer/internal/clock"
	"github.com/langchou/petgazer/internal/models"
)

// ErrGPSDataUnavailable 回溯到上限仍没有可用定位
var ErrGPSDataUnavailable = errors.New("gps data unavailable")

// LocationAPI 定位依赖的接口
type LocationAPI interface {
	GetPositionReport(ctx context.Context, trackerID string) (map[string]any, error)
	GetPositions(ctx context.Context, trackerID string, from, to time.Time) (tractive.PositionSegments, error)
}

// LocationResolver 当前位置解析：主接口失败后按小时回溯历史位置
type LocationResolver struct {
	api               LocationAPI
	trackerID         string
	clock             clock.Clock
	events            *EventBus
	logger            *zap.Logger
	fallbackHours     int
	accuracyThreshold float64

	mu   sync.Mutex
	last *models.GPSFix
}

// NewLocationResolver 创建位置解析器
func NewLocationResolver(api LocationAPI, trackerID string, clk clock.Clock, events *EventBus, logger *zap.Logger, fallbackHours int, accuracyThreshold float64) *LocationResolver {
	if fallbackHours <= 0 {
		fallbackHours = 24
	}
	return &LocationResolver{
		api:               api,
		trackerID:         trackerID,
		clock:             clk,
		events:            events,
		logger:            logger,
		fallbackHours:     fallbackHours,
		accuracyThreshold: accuracyThreshold,
	}
}

// CurrentLocation 返回当前定位；上次结果不超过 maxAge 时直接返回
func (r *LocationResolver) CurrentLocation(ctx context.Context, maxAge time.Duration) (models.GPSFix, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if r.last != nil && maxAge > 0 && now.Sub(r.last.Time()) <= maxAge {
		return *r.last, nil
	}

	report, err := r.api.GetPositionReport(ctx, r.trackerID)
	if err != nil {
		return models.GPSFix{}, err
	}

	fix, err := models.ParseGPSFix(report)
	if err != nil {
		r.logger.Info("Primary position unusable, searching history", zap.Error(err))

		fix, err = r.fallback(ctx, now)
		if err != nil {
			return models.GPSFix{}, err
		}
	}

	if r.accuracyThreshold > 0 && fix.Uncertainty() > r.accuracyThreshold {
		r.events.Emit(EventPoorGPSAccuracy, map[string]any{
			"uncertainty": fix.Uncertainty(),
			"threshold":   r.accuracyThreshold,
		})
	}

	r.last = &fix
	return fix, nil
}

// fallback hours_back = 1..N，每个窗口取第一段中时间最新的记录
func (r *LocationResolver) fallback(ctx context.Context, now time.Time) (models.GPSFix, error) {
	for hours := 1; hours <= r.fallbackHours; hours++ {
		from := now.Add(-time.Duration(hours) * time.Hour)
		segments, err := r.api.GetPositions(ctx, r.trackerID, from, now)
		if err != nil {
			if _, limited := tractive.IsRateLimited(err); limited || tractive.IsAuthError(err) || ctx.Err() != nil {
				return models.GPSFix{}, err
			}
			r.logger.Debug("Position window failed", zap.Int("hours_back", hours), zap.Error(err))
			continue
		}
		if len(segments) == 0 || len(segments[0]) == 0 {
			continue
		}

		fix, err := models.ParseGPSFix(latestRecord(segments[0]))
		if err != nil {
			r.logger.Debug("Position window unparseable", zap.Int("hours_back", hours), zap.Error(err))
			continue
		}

		r.logger.Info("Using historical position",
			zap.Int("hours_back", hours),
			zap.Int64("timestamp", fix.Timestamp()))
		r.events.Emit(EventGPSFallbackUsed, map[string]any{
			"hours_back": hours,
			"timestamp":  fix.Timestamp(),
		})
		return fix, nil
	}

	return models.GPSFix{}, fmt.Errorf("%w: no position in the last %d hours", ErrGPSDataUnavailable, r.fallbackHours)
}

// latestRecord 段内 time 最大的记录，time 相同或缺失时取靠后的
func latestRecord(segment []map[string]any) map[string]any {
	best := len(segment) - 1
	bestTime := recordTime(segment[best])
	for i, rec := range segment {
		if t := recordTime(rec); t > bestTime {
			best, bestTime = i, t
		}
	}
	return segment[best]
}

func recordTime(rec map[string]any) float64 {
	if t, ok := rec["time"].(float64); ok {
		return t
	}
	return -1
}
