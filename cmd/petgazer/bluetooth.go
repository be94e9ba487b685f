package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/radio"
)

// selectBackend 测试时替换
var selectBackend = radio.SelectBackend

func runBluetooth(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: bluetooth scan|battery|light|sound", errUsage)
	}
	action := args[0]

	fs := newFlagSet("bluetooth " + action)
	timeout := fs.Duration("timeout", 10*time.Second, "scan timeout")
	addr := fs.String("addr", "", "tracker address (default: first tracker found)")
	stateFlag := fs.String("state", "on", "on or off")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	var on bool
	switch action {
	case "scan", "battery":
	case "light", "sound":
		var err error
		if on, err = parseOnOff(*stateFlag); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown bluetooth action %q", errUsage, action)
	}

	backend, err := selectBackend(env.logger)
	if err != nil {
		return err
	}
	client := radio.NewClient(backend, env.logger.Named("radio"))
	client.OnConnectionChange(func(connected bool, address string) {
		if connected {
			env.logger.Info("Tracker connected", zap.String("address", address))
		}
	})

	if action == "scan" {
		devices, err := client.Discover(ctx, *timeout)
		if err != nil {
			return err
		}
		if env.json {
			return printJSON(env.out, devices)
		}
		printDevices(env.out, devices)
		return nil
	}

	address := *addr
	if address == "" {
		devices, err := client.Discover(ctx, *timeout)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return fmt.Errorf("no tracker found within %s", *timeout)
		}
		address = devices[0].Address
	}

	if err := client.Connect(ctx, address); err != nil {
		return err
	}
	defer func() {
		// ctx 可能已被中断，断开使用独立的超时
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(dctx); err != nil {
			env.logger.Warn("Disconnect failed", zap.Error(err))
		}
	}()

	if action == "battery" {
		level, err := client.BatteryLevel(ctx)
		if err != nil {
			return err
		}
		if env.json {
			return printJSON(env.out, map[string]any{"address": address, "battery_level": level})
		}
		fmt.Fprintf(env.out, "Battery: %d%%\n", level)
		return nil
	}

	if err := client.SendCommand(ctx, action, on); err != nil {
		return err
	}
	fmt.Fprintf(env.out, "Turned %s %s on %s\n", action, onOff(on), address)
	return nil
}

func printDevices(w io.Writer, devices []radio.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No trackers found")
		return
	}
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(w, "%s  %-20s  %d dBm\n", d.Address, name, d.RSSI)
	}
}
