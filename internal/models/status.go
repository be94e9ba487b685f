package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidStatus 设备状态数据不合法
var ErrInvalidStatus = errors.New("invalid device status")

// TemperatureState 温度状态
type TemperatureState string

const (
	TemperatureNormal  TemperatureState = "normal"
	TemperatureHot     TemperatureState = "hot"
	TemperatureCold    TemperatureState = "cold"
	TemperatureUnknown TemperatureState = "unknown"
)

// ParseTemperatureState 不区分大小写，无法识别时返回 unknown
func ParseTemperatureState(s string) TemperatureState {
	switch t := TemperatureState(strings.ToLower(strings.TrimSpace(s))); t {
	case TemperatureNormal, TemperatureHot, TemperatureCold:
		return t
	default:
		return TemperatureUnknown
	}
}

// DeviceState 追踪器运行状态
type DeviceState string

const (
	DeviceActive      DeviceState = "active"
	DeviceInactive    DeviceState = "inactive"
	DeviceOperational DeviceState = "operational"
	DeviceUnknown     DeviceState = "unknown"
)

// ParseDeviceState 不区分大小写，无法识别时返回 unknown
func ParseDeviceState(s string) DeviceState {
	switch d := DeviceState(strings.ToLower(strings.TrimSpace(s))); d {
	case DeviceActive, DeviceInactive, DeviceOperational:
		return d
	default:
		return DeviceUnknown
	}
}

// BatteryHealth 电量等级
type BatteryHealth string

const (
	BatteryExcellent BatteryHealth = "excellent"
	BatteryGood      BatteryHealth = "good"
	BatteryFair      BatteryHealth = "fair"
	BatteryLow       BatteryHealth = "low"
	BatteryCritical  BatteryHealth = "critical"
)

var errorLikeHardwareStatus = map[string]bool{
	"error":   true,
	"fault":   true,
	"warning": true,
}

// DeviceStatus 设备状态快照（硬件报告 + 追踪器记录合并）
type DeviceStatus struct {
	BatteryLevel     int              `json:"battery_level"`
	HardwareStatus   string           `json:"hardware_status"`
	Timestamp        int64            `json:"timestamp"`
	TemperatureState TemperatureState `json:"temperature_state"`
	State            DeviceState      `json:"state"`
	BatterySaveMode  bool             `json:"battery_save_mode"`
}

// Validate 校验电量和时间戳
func (s DeviceStatus) Validate() error {
	if s.BatteryLevel < 0 || s.BatteryLevel > 100 {
		return fmt.Errorf("%w: battery level %d out of range", ErrInvalidStatus, s.BatteryLevel)
	}
	if s.Timestamp < 0 {
		return fmt.Errorf("%w: negative timestamp", ErrInvalidStatus)
	}
	return nil
}

func (s DeviceStatus) IsLowBattery() bool      { return s.BatteryLevel < 20 }
func (s DeviceStatus) IsCriticalBattery() bool { return s.BatteryLevel < 10 }
func (s DeviceStatus) IsOnline() bool          { return s.State == DeviceOperational }

// Time 报告时间
func (s DeviceStatus) Time() time.Time {
	return time.Unix(s.Timestamp, 0)
}

// BatteryHealth 按 80/60/40/20 分级
func (s DeviceStatus) BatteryHealth() BatteryHealth {
	switch {
	case s.BatteryLevel >= 80:
		return BatteryExcellent
	case s.BatteryLevel >= 60:
		return BatteryGood
	case s.BatteryLevel >= 40:
		return BatteryFair
	case s.BatteryLevel >= 20:
		return BatteryLow
	default:
		return BatteryCritical
	}
}

// NeedsAttention 电量低、温度异常、非 active 状态或硬件报错
func (s DeviceStatus) NeedsAttention() bool {
	if s.IsLowBattery() {
		return true
	}
	if s.TemperatureState == TemperatureHot || s.TemperatureState == TemperatureCold {
		return true
	}
	if s.State != DeviceActive {
		return true
	}
	return errorLikeHardwareStatus[strings.ToLower(s.HardwareStatus)]
}
