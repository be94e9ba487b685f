package tractive

// AuthRequest 账号密码登录
type AuthRequest struct {
	PlatformEmail string `json:"platform_email"`
	PlatformToken string `json:"platform_token"`
	GrantType     string `json:"grant_type"`
}

// AuthResponse 登录结果
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}

// ObjectRef 列表接口返回的对象引用
type ObjectRef struct {
	ID   string `json:"_id"`
	Type string `json:"_type,omitempty"`
}

// Tracker 追踪器记录
type Tracker struct {
	ID              string `json:"_id"`
	ModelNumber     string `json:"model_number"`
	HwEdition       string `json:"hw_edition"`
	FwVersion       string `json:"fw_version"`
	State           string `json:"state"`
	BatterySaveMode *bool  `json:"battery_save_mode"`
}

// HardwareReport 设备硬件报告
type HardwareReport struct {
	BatteryLevel     *float64 `json:"battery_level"`
	HwStatus         *string  `json:"hw_status"`
	Time             int64    `json:"time"`
	TemperatureState string   `json:"temperature_state"`
}

// PositionSegments 历史位置，按段返回，每段是若干位置记录
type PositionSegments [][]map[string]any

// Share 公开分享
type Share struct {
	ID        string `json:"_id"`
	ShareLink string `json:"share_link"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at"`
	Active    *bool  `json:"active"`
}

// TrackableObject 宠物档案
type TrackableObject struct {
	ID        string     `json:"_id"`
	CreatedAt int64      `json:"created_at"`
	UpdatedAt int64      `json:"updated_at"`
	Details   PetDetails `json:"details"`
}

// PetDetails 宠物档案详情
type PetDetails struct {
	Name             string   `json:"name"`
	PetType          string   `json:"pet_type"`
	Gender           string   `json:"gender"`
	Neutered         bool     `json:"neutered"`
	ChipID           string   `json:"chip_id"`
	Birthday         int64    `json:"birthday"`
	ProfilePictureID string   `json:"profile_picture_id"`
	Weight           *float64 `json:"weight"`
}

// ShareDetails 分享详情页数据，包含品种名
type ShareDetails struct {
	BreedNames []string `json:"breed_names"`
}
