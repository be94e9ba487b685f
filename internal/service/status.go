package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/api/tractive"
	"github.com/langchou/petgazer/internal/models"
)

const statusCacheKey = "device_status"

// StatusAPI 设备状态依赖的接口
type StatusAPI interface {
	GetHardwareReport(ctx context.Context, trackerID string) (*tractive.HardwareReport, error)
	GetTracker(ctx context.Context, trackerID string) (*tractive.Tracker, error)
	RecordCacheHit()
}

// StatusReconciler 合并硬件报告和追踪器记录
type StatusReconciler struct {
	api        StatusAPI
	trackerID  string
	cache      *tractive.Cache
	events     *EventBus
	logger     *zap.Logger
	monitoring bool
}

// NewStatusReconciler 创建状态合并器
func NewStatusReconciler(api StatusAPI, trackerID string, cache *tractive.Cache, events *EventBus, logger *zap.Logger, monitoring bool) *StatusReconciler {
	return &StatusReconciler{
		api:        api,
		trackerID:  trackerID,
		cache:      cache,
		events:     events,
		logger:     logger,
		monitoring: monitoring,
	}
}

// DeviceStatus partial 为 true 时只取硬件报告，不走缓存
func (r *StatusReconciler) DeviceStatus(ctx context.Context, partial bool) (models.DeviceStatus, error) {
	if !partial {
		if cached, ok := r.cache.Get(statusCacheKey); ok {
			r.api.RecordCacheHit()
			return cached.(models.DeviceStatus), nil
		}
	}

	hw, err := r.api.GetHardwareReport(ctx, r.trackerID)
	if err != nil {
		return models.DeviceStatus{}, err
	}
	status := fromHardwareReport(hw)

	if partial {
		if err := status.Validate(); err != nil {
			return models.DeviceStatus{}, fmt.Errorf("device status: %w", err)
		}
		return status, nil
	}

	tracker, err := r.api.GetTracker(ctx, r.trackerID)
	if err != nil {
		return models.DeviceStatus{}, err
	}
	status.State = models.ParseDeviceState(tracker.State)
	if tracker.BatterySaveMode != nil {
		status.BatterySaveMode = *tracker.BatterySaveMode
	}

	if err := status.Validate(); err != nil {
		return models.DeviceStatus{}, fmt.Errorf("device status: %w", err)
	}
	r.cache.Set(statusCacheKey, status)

	if status.IsLowBattery() && r.monitoring {
		r.logger.Warn("Low battery", zap.Int("battery_level", status.BatteryLevel))
		r.events.Emit(EventLowBattery, map[string]any{
			"battery_level": status.BatteryLevel,
			"critical":      status.IsCriticalBattery(),
		})
	}
	return status, nil
}

// fromHardwareReport 硬件报告字段缺失时：电量 0，hw_status unknown
func fromHardwareReport(hw *tractive.HardwareReport) models.DeviceStatus {
	status := models.DeviceStatus{
		HardwareStatus:   "unknown",
		Timestamp:        hw.Time,
		TemperatureState: models.ParseTemperatureState(hw.TemperatureState),
		State:            models.DeviceUnknown,
	}
	if hw.BatteryLevel != nil {
		status.BatteryLevel = int(*hw.BatteryLevel)
	}
	if hw.HwStatus != nil {
		status.HardwareStatus = *hw.HwStatus
	}
	return status
}
