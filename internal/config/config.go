package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid 配置不合法
var ErrInvalid = errors.New("configuration invalid")

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// Tractive 账号
	Email    string
	Password string
	HomeLat  *float64
	HomeLon  *float64

	// Tractive API
	APIBaseURL         string
	ClientID           string
	DefaultUserID      string
	RequestTimeout     time.Duration
	RetryAttempts      int
	RetryBackoffFactor float64
	RateLimit          int

	// 缓存
	CacheEnabled bool
	CacheTTL     time.Duration

	// GPS
	GPSFallbackHours     int
	GPSAccuracyThreshold float64

	// 监控
	BatteryMonitoring   bool
	MonitorInterval     time.Duration
	MonitorErrorBackoff time.Duration
	HomeThreshold       float64
	BatterySaverBelow   int

	// Token 存储路径
	TokenFile       string
	CredentialsFile string
	VaultPassphrase string

	// Database（可选，为空则不归档）
	DatabaseURL string

	// 消息推送（可选）
	MQTTBroker   string
	NATSURL      string
	PublishTopic string

	// 逆地理编码
	GeocoderEnabled  bool
	GeocoderURL      string
	GeocoderLanguage string

	// 告警
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	AlertEmail   string
	IFTTTKey     string
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:           getEnv("PORT", "4000"),
		Debug:                getEnvBool("DEBUG", false),
		Email:                getEnv("TRACTIVE_EMAIL", ""),
		Password:             getEnv("TRACTIVE_PASSWORD", ""),
		APIBaseURL:           getEnv("TRACTIVE_API_URL", "https://graph.tractive.com/3"),
		ClientID:             getEnv("TRACTIVE_CLIENT_ID", "5728aa1fc9077f7c32000186"),
		DefaultUserID:        getEnv("TRACTIVE_DEFAULT_USER_ID", "5f525ea6d3278b5d10e1442c"),
		RequestTimeout:       getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RetryAttempts:        getEnvInt("RETRY_ATTEMPTS", 3),
		RetryBackoffFactor:   getEnvFloat("RETRY_BACKOFF_FACTOR", 1.0),
		RateLimit:            getEnvInt("API_RATE_LIMIT", 60),
		CacheEnabled:         getEnvBool("CACHE_ENABLED", true),
		CacheTTL:             getEnvDuration("CACHE_TTL", 300*time.Second),
		GPSFallbackHours:     getEnvInt("GPS_FALLBACK_HOURS", 24),
		GPSAccuracyThreshold: getEnvFloat("GPS_ACCURACY_THRESHOLD", 100.0),
		BatteryMonitoring:    getEnvBool("BATTERY_MONITORING", true),
		MonitorInterval:      getEnvDuration("MONITOR_INTERVAL", 10*time.Second),
		MonitorErrorBackoff:  getEnvDuration("MONITOR_ERROR_BACKOFF", 5*time.Second),
		HomeThreshold:        getEnvFloat("HOME_THRESHOLD", 50),
		BatterySaverBelow:    getEnvInt("BATTERY_SAVER_BELOW", 30),
		TokenFile:            getEnv("TOKEN_FILE", "access_token.json"),
		CredentialsFile:      getEnv("CREDENTIALS_FILE", "login.conf"),
		VaultPassphrase:      getEnv("VAULT_PASSPHRASE", ""),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		MQTTBroker:           getEnv("MQTT_BROKER", ""),
		NATSURL:              getEnv("NATS_URL", ""),
		PublishTopic:         getEnv("PUBLISH_TOPIC", "petgazer/location"),
		GeocoderEnabled:      getEnvBool("GEOCODER_ENABLED", true),
		GeocoderURL:          getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderLanguage:     getEnv("GEOCODER_LANGUAGE", "en"),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             getEnv("SMTP_PORT", "587"),
		SMTPUser:             getEnv("SMTP_USER", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:             getEnv("SMTP_FROM", ""),
		AlertEmail:           getEnv("ALERT_EMAIL", ""),
		IFTTTKey:             getEnv("IFTTT_KEY", ""),
	}

	var err error
	if cfg.HomeLat, err = getEnvFloatPtr("TRACTIVE_HOME_LAT"); err != nil {
		return nil, err
	}
	if cfg.HomeLon, err = getEnvFloatPtr("TRACTIVE_HOME_LON"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 校验数值配置，账号和坐标由 session.Credentials 校验
func (c *Config) Validate() error {
	if c.RateLimit <= 0 {
		return fmt.Errorf("%w: API_RATE_LIMIT must be positive", ErrInvalid)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: RETRY_ATTEMPTS must not be negative", ErrInvalid)
	}
	if c.GPSFallbackHours <= 0 {
		return fmt.Errorf("%w: GPS_FALLBACK_HOURS must be positive", ErrInvalid)
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("%w: MONITOR_INTERVAL must be positive", ErrInvalid)
	}
	return nil
}

// HasHome 是否配置了家的坐标
func (c *Config) HasHome() bool {
	return c.HomeLat != nil && c.HomeLon != nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvFloatPtr(key string) (*float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, value)
	}
	return &f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
