package models

import "testing"

func TestDeviceStatusBattery(t *testing.T) {
	tests := []struct {
		level    int
		low      bool
		critical bool
		health   BatteryHealth
	}{
		{100, false, false, BatteryExcellent},
		{80, false, false, BatteryExcellent},
		{79, false, false, BatteryGood},
		{40, false, false, BatteryFair},
		{20, false, false, BatteryLow},
		{19, true, false, BatteryCritical},
		{15, true, false, BatteryCritical},
		{9, true, true, BatteryCritical},
	}
	for _, tt := range tests {
		s := DeviceStatus{BatteryLevel: tt.level, State: DeviceActive}
		if s.IsLowBattery() != tt.low || s.IsCriticalBattery() != tt.critical {
			t.Errorf("level %d: low=%v critical=%v", tt.level, s.IsLowBattery(), s.IsCriticalBattery())
		}
		if s.BatteryHealth() != tt.health {
			t.Errorf("level %d: health=%s, want %s", tt.level, s.BatteryHealth(), tt.health)
		}
	}
}

func TestDeviceStatusNeedsAttention(t *testing.T) {
	healthy := DeviceStatus{
		BatteryLevel:     90,
		HardwareStatus:   "OK",
		TemperatureState: TemperatureNormal,
		State:            DeviceActive,
	}

	tests := []struct {
		name   string
		mutate func(*DeviceStatus)
		want   bool
	}{
		{name: "healthy active", mutate: func(*DeviceStatus) {}, want: false},
		{name: "operational", mutate: func(s *DeviceStatus) { s.State = DeviceOperational }, want: true},
		{name: "low battery", mutate: func(s *DeviceStatus) { s.BatteryLevel = 15 }, want: true},
		{name: "hot", mutate: func(s *DeviceStatus) { s.TemperatureState = TemperatureHot }, want: true},
		{name: "inactive", mutate: func(s *DeviceStatus) { s.State = DeviceInactive }, want: true},
		{name: "unknown state", mutate: func(s *DeviceStatus) { s.State = DeviceUnknown }, want: true},
		{name: "hardware fault", mutate: func(s *DeviceStatus) { s.HardwareStatus = "FAULT" }, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := healthy
			tt.mutate(&s)
			if got := s.NeedsAttention(); got != tt.want {
				t.Errorf("NeedsAttention() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStates(t *testing.T) {
	if ParseTemperatureState(" Hot ") != TemperatureHot {
		t.Error("temperature not case insensitive")
	}
	if ParseTemperatureState("lukewarm") != TemperatureUnknown {
		t.Error("unrecognised temperature should be unknown")
	}
	if ParseDeviceState("OPERATIONAL") != DeviceOperational {
		t.Error("device state not case insensitive")
	}
	if ParseDeviceState("") != DeviceUnknown {
		t.Error("empty device state should be unknown")
	}
}

func TestDeviceStatusValidate(t *testing.T) {
	for _, level := range []int{-1, 101} {
		if err := (DeviceStatus{BatteryLevel: level}).Validate(); err == nil {
			t.Errorf("battery %d accepted", level)
		}
	}
	if err := (DeviceStatus{BatteryLevel: 0}).Validate(); err != nil {
		t.Errorf("battery 0 rejected: %v", err)
	}
}
