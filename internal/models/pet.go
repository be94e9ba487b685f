package models

import (
	"fmt"
	"strings"
	"time"
)

// PetData 宠物信息
type PetData struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	PetType          string    `json:"pet_type"`
	Breed            string    `json:"breed"`
	Gender           string    `json:"gender"`
	Neutered         bool      `json:"neutered"`
	ChipID           string    `json:"chip_id"`
	Birthday         time.Time `json:"birthday,omitempty"`
	Weight           float64   `json:"weight"`
	ProfilePictureID string    `json:"profile_picture_id"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// ProfilePictureURL 头像地址
func (p PetData) ProfilePictureURL(baseURL string) string {
	if p.ProfilePictureID == "" {
		return ""
	}
	return fmt.Sprintf("%s/media/resource/%s.96_96_1.jpg", strings.TrimRight(baseURL, "/"), p.ProfilePictureID)
}

// ShareInfo 公开分享链接
type ShareInfo struct {
	ShareID   string    `json:"share_id"`
	ShareLink string    `json:"share_link"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Active    bool      `json:"active"`
}

// TrackerInfo 追踪器硬件信息
type TrackerInfo struct {
	ID              string `json:"id"`
	ModelNumber     string `json:"model_number"`
	HardwareEdition string `json:"hw_edition"`
	FirmwareVersion string `json:"fw_version"`
}

// CommandType 远程命令
type CommandType string

const (
	CommandBatterySaver  CommandType = "battery_saver"
	CommandLiveTracking  CommandType = "live_tracking"
	CommandLEDControl    CommandType = "led_control"
	CommandBuzzerControl CommandType = "buzzer_control"
)

// ParseCommandType 只接受固定的命令集合
func ParseCommandType(s string) (CommandType, error) {
	switch c := CommandType(strings.ToLower(s)); c {
	case CommandBatterySaver, CommandLiveTracking, CommandLEDControl, CommandBuzzerControl:
		return c, nil
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// HomeStatus 与家的距离
type HomeStatus struct {
	Distance  float64 `json:"distance_meters"`
	Threshold float64 `json:"threshold_meters"`
	AtHome    bool    `json:"at_home"`
}

// LocationUpdate 监控循环推送的数据
type LocationUpdate struct {
	Fix          GPSFix   `json:"location"`
	BatteryLevel int      `json:"battery_level"`
	Distance     *float64 `json:"distance_from_home,omitempty"`
	Address      *Address `json:"address,omitempty"`
	RecordedAt   int64    `json:"recorded_at"`
}
