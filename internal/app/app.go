package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/petgazer/internal/api/geocoder"
	"github.com/langchou/petgazer/internal/api/tractive"
	"github.com/langchou/petgazer/internal/clock"
	"github.com/langchou/petgazer/internal/config"
	"github.com/langchou/petgazer/internal/notifier"
	"github.com/langchou/petgazer/internal/publisher"
	"github.com/langchou/petgazer/internal/repository"
	"github.com/langchou/petgazer/internal/service"
	"github.com/langchou/petgazer/internal/session"
)

// App 进程级依赖，CLI 和 Web 服务共用
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Clock   clock.Clock
	Vault   *session.Vault
	Client  *tractive.Client
	Tracker *service.TrackerService
}

// New 组装客户端、缓存和会话，并完成认证
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clk := clock.Real()
	vault := session.NewVault(cfg.VaultPassphrase)

	creds, err := ResolveCredentials(cfg, vault)
	if err != nil {
		return nil, err
	}

	client := tractive.NewClient(tractive.Options{
		BaseURL:       cfg.APIBaseURL,
		ClientID:      cfg.ClientID,
		Timeout:       cfg.RequestTimeout,
		RetryAttempts: cfg.RetryAttempts,
		BackoffFactor: cfg.RetryBackoffFactor,
		RateLimit:     cfg.RateLimit,
		Clock:         clk,
	}, logger.Named("tractive"))
	cache := tractive.NewCache(cfg.CacheEnabled, cfg.CacheTTL, clk)
	sessions := session.NewManager(client, session.NewFileTokenStore(cfg.TokenFile, vault), creds, cfg.DefaultUserID, logger.Named("session"))

	tracker := service.NewTrackerService(service.Options{
		FallbackHours:     cfg.GPSFallbackHours,
		AccuracyThreshold: cfg.GPSAccuracyThreshold,
		BatteryMonitoring: cfg.BatteryMonitoring,
		HomeLat:           creds.HomeLat,
		HomeLon:           creds.HomeLon,
		HomeThreshold:     cfg.HomeThreshold,
	}, client, sessions, cache, clk, logger)

	if err := tracker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start tracker service: %w", err)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Clock:   clk,
		Vault:   vault,
		Client:  client,
		Tracker: tracker,
	}, nil
}

// ResolveCredentials 环境变量优先，缺失时读取凭据文件
func ResolveCredentials(cfg *config.Config, vault *session.Vault) (session.Credentials, error) {
	creds := session.Credentials{
		Email:    cfg.Email,
		Password: cfg.Password,
		HomeLat:  cfg.HomeLat,
		HomeLon:  cfg.HomeLon,
	}
	if creds.Email != "" && creds.Password != "" {
		return creds, creds.Validate()
	}

	stored, err := session.LoadCredentials(cfg.CredentialsFile, vault)
	if errors.Is(err, os.ErrNotExist) {
		return creds, creds.Validate()
	}
	if err != nil {
		return creds, err
	}
	if creds.HomeLat != nil && creds.HomeLon != nil {
		stored.HomeLat, stored.HomeLon = creds.HomeLat, creds.HomeLon
	}
	return stored, nil
}

// Geocoder 未启用时返回 nil
func (a *App) Geocoder() *geocoder.Client {
	if !a.Config.GeocoderEnabled {
		return nil
	}
	return geocoder.NewClient(a.Config.GeocoderURL, a.Config.GeocoderLanguage, a.Clock, a.Logger.Named("geocoder"))
}

// Notifier 邮件 / IFTTT 告警
func (a *App) Notifier() *notifier.Notifier {
	var to []string
	for _, addr := range strings.Split(a.Config.AlertEmail, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return notifier.New(notifier.Config{
		SMTPHost:     a.Config.SMTPHost,
		SMTPPort:     a.Config.SMTPPort,
		SMTPUser:     a.Config.SMTPUser,
		SMTPPassword: a.Config.SMTPPassword,
		From:         a.Config.SMTPFrom,
		To:           to,
		IFTTTKey:     a.Config.IFTTTKey,
	}, a.Logger.Named("notifier"))
}

// Publisher 未配置 broker 时返回 nil
func (a *App) Publisher() (publisher.Publisher, error) {
	return publisher.New(publisher.Config{
		MQTTBroker: a.Config.MQTTBroker,
		NATSURL:    a.Config.NATSURL,
		ClientID:   "petgazer-" + a.Tracker.TrackerID(),
	}, a.Logger.Named("publisher"))
}

// Archive 未配置数据库时返回 nil；调用方负责关闭返回的 DB
func (a *App) Archive(ctx context.Context) (*repository.Archive, *repository.DB, error) {
	if a.Config.DatabaseURL == "" {
		return nil, nil, nil
	}
	db, err := repository.New(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	a.Logger.Info("Database migrated successfully")
	return repository.NewArchive(db), db, nil
}

// MonitorConfig 由配置生成监控参数
func (a *App) MonitorConfig() service.MonitorConfig {
	return service.MonitorConfig{
		Interval:          a.Config.MonitorInterval,
		ErrorBackoff:      a.Config.MonitorErrorBackoff,
		HomeThreshold:     a.Config.HomeThreshold,
		BatterySaverBelow: a.Config.BatterySaverBelow,
		Topic:             a.Config.PublishTopic,
	}
}

// InitLogger 初始化日志
func InitLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
