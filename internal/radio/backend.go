package radio

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoBackend 既没有可用的蓝牙适配器也没有 gatttool
var ErrNoBackend = errors.New("no bluetooth backend available")

// Device 扫描到的蓝牙设备
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
}

// Backend 蓝牙传输实现：BluetoothBackend 或 GatttoolBackend
type Backend interface {
	Name() string
	Discover(ctx context.Context, timeout time.Duration) ([]Device, error)
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context) error
	ReadCharacteristic(ctx context.Context, id uuid.UUID) ([]byte, error)
	WriteCharacteristic(ctx context.Context, id uuid.UUID, data []byte) error
}

// SelectBackend 优先使用跨平台蓝牙栈，Linux 下退回 gatttool
func SelectBackend(logger *zap.Logger) (Backend, error) {
	bt, err := NewBluetoothBackend()
	if err == nil {
		logger.Info("Using bluetooth adapter backend")
		return bt, nil
	}
	logger.Warn("Bluetooth adapter unavailable", zap.Error(err))

	if runtime.GOOS == "linux" {
		if _, lookErr := exec.LookPath("gatttool"); lookErr == nil {
			logger.Info("Using gatttool backend")
			return NewGatttoolBackend(logger), nil
		}
	}
	return nil, ErrNoBackend
}
