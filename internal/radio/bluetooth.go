package radio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// connectScanTimeout 连接未扫描过的地址前先扫描的时长
const connectScanTimeout = 5 * time.Second

var errUnknownCharacteristic = errors.New("characteristic not found")

// BluetoothBackend 基于 tinygo.org/x/bluetooth（BlueZ / CoreBluetooth / WinRT）
type BluetoothBackend struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	seen    map[string]bluetooth.Address
	chars   map[string]bluetooth.DeviceCharacteristic
	release func() error
}

// NewBluetoothBackend 启用默认适配器
func NewBluetoothBackend() (*BluetoothBackend, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}
	return &BluetoothBackend{
		adapter: adapter,
		seen:    make(map[string]bluetooth.Address),
	}, nil
}

func (b *BluetoothBackend) Name() string { return "bluetooth" }

// Discover 扫描 timeout 时长，按地址去重
func (b *BluetoothBackend) Discover(ctx context.Context, timeout time.Duration) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		devices []Device
		index   = make(map[string]int)
	)

	done := make(chan error, 1)
	go func() {
		done <- b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			addr := result.Address.String()
			dev := Device{Address: addr, Name: result.LocalName(), RSSI: int(result.RSSI)}

			mu.Lock()
			if i, ok := index[addr]; ok {
				if dev.Name == "" {
					dev.Name = devices[i].Name
				}
				devices[i] = dev
			} else {
				index[addr] = len(devices)
				devices = append(devices, dev)
			}
			mu.Unlock()

			b.mu.Lock()
			b.seen[strings.ToUpper(addr)] = result.Address
			b.mu.Unlock()
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
	case <-ctx.Done():
		if err := b.adapter.StopScan(); err != nil {
			return nil, fmt.Errorf("stop scan: %w", err)
		}
		if err := <-done; err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]Device(nil), devices...), nil
}

// Connect 连接并缓存所有特征值
func (b *BluetoothBackend) Connect(ctx context.Context, address string) error {
	addr, ok := b.lookup(address)
	if !ok {
		if _, err := b.Discover(ctx, connectScanTimeout); err != nil {
			return err
		}
		if addr, ok = b.lookup(address); !ok {
			return fmt.Errorf("device %s not found", address)
		}
	}

	device, err := b.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect %s: %w", address, err)
	}

	services, err := device.DiscoverServices(nil)
	if err != nil {
		_ = device.Disconnect()
		return fmt.Errorf("discover services: %w", err)
	}
	chars := make(map[string]bluetooth.DeviceCharacteristic)
	for _, svc := range services {
		found, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			_ = device.Disconnect()
			return fmt.Errorf("discover characteristics: %w", err)
		}
		for _, ch := range found {
			chars[strings.ToLower(ch.UUID().String())] = ch
		}
	}

	b.mu.Lock()
	b.chars = chars
	b.release = device.Disconnect
	b.mu.Unlock()
	return nil
}

func (b *BluetoothBackend) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	release := b.release
	b.release = nil
	b.chars = nil
	b.mu.Unlock()

	if release == nil {
		return nil
	}
	return release()
}

func (b *BluetoothBackend) ReadCharacteristic(ctx context.Context, id uuid.UUID) ([]byte, error) {
	ch, err := b.characteristic(id)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 64)
	n, err := ch.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (b *BluetoothBackend) WriteCharacteristic(ctx context.Context, id uuid.UUID, data []byte) error {
	ch, err := b.characteristic(id)
	if err != nil {
		return err
	}
	_, err = ch.WriteWithoutResponse(data)
	return err
}

func (b *BluetoothBackend) characteristic(id uuid.UUID) (bluetooth.DeviceCharacteristic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.chars[id.String()]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: %s", errUnknownCharacteristic, id)
	}
	return ch, nil
}

func (b *BluetoothBackend) lookup(address string) (bluetooth.Address, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	addr, ok := b.seen[strings.ToUpper(address)]
	return addr, ok
}
