package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/api/tractive"
	"github.com/langchou/petgazer/internal/clock"
	"github.com/langchou/petgazer/internal/models"
)

// Tracker 监控循环依赖的追踪接口
type Tracker interface {
	CurrentLocation(ctx context.Context, maxAge time.Duration) (models.GPSFix, error)
	DeviceStatus(ctx context.Context, partial bool) (models.DeviceStatus, error)
	DistanceFromHome(fix models.GPSFix) (float64, bool)
	SendCommand(ctx context.Context, cmd models.CommandType, on bool) error
	Refresh(ctx context.Context) error
	TrackerID() string
}

// Publisher 消息推送（MQTT / NATS）
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Archive 位置归档（Postgres）
type Archive interface {
	SavePositions(ctx context.Context, trackerID string, fixes []models.GPSFix) (int64, error)
	SaveStatus(ctx context.Context, trackerID string, status models.DeviceStatus) error
}

// AddressArchive 可选，归档支持写入地址时实现
type AddressArchive interface {
	SaveAddress(ctx context.Context, trackerID string, recordedAt time.Time, addr *models.Address) error
}

// Broadcaster 实时推送（WebSocket）
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
}

// Alerter 告警（邮件 / IFTTT）
type Alerter interface {
	Send(ctx context.Context, subject, message string) error
	Trigger(ctx context.Context, event string) error
}

// MonitorConfig 监控配置
type MonitorConfig struct {
	Interval          time.Duration
	ErrorBackoff      time.Duration
	HomeThreshold     float64
	StopAtHome        bool
	AutoBatterySaver  bool
	BatterySaverBelow int
	Topic             string
}

// Monitor 定时轮询位置并推送
type Monitor struct {
	cfg         MonitorConfig
	tracker     Tracker
	clock       clock.Clock
	logger      *zap.Logger
	events      *EventBus
	publisher   Publisher
	archive     Archive
	broadcaster Broadcaster
	alerter     Alerter
	geocoder    Geocoder
	statusLine  func(string)

	// 以下字段只在 Run 所在 goroutine 中访问
	lastDistance *float64
	lowAlerted   bool
	saverOn      bool
}

// Geocoder 逆地理编码
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*models.Address, error)
}

// MonitorOption 可选依赖
type MonitorOption func(*Monitor)

func WithPublisher(p Publisher) MonitorOption     { return func(m *Monitor) { m.publisher = p } }
func WithArchive(a Archive) MonitorOption         { return func(m *Monitor) { m.archive = a } }
func WithBroadcaster(b Broadcaster) MonitorOption { return func(m *Monitor) { m.broadcaster = b } }
func WithAlerter(a Alerter) MonitorOption         { return func(m *Monitor) { m.alerter = a } }
func WithGeocoder(g Geocoder) MonitorOption       { return func(m *Monitor) { m.geocoder = g } }
func WithEvents(e *EventBus) MonitorOption        { return func(m *Monitor) { m.events = e } }
func WithStatusLine(f func(string)) MonitorOption { return func(m *Monitor) { m.statusLine = f } }

// NewMonitor 创建监控
func NewMonitor(cfg MonitorConfig, tracker Tracker, clk clock.Clock, logger *zap.Logger, opts ...MonitorOption) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if cfg.HomeThreshold <= 0 {
		cfg.HomeThreshold = DefaultHomeThreshold
	}
	if cfg.BatterySaverBelow <= 0 {
		cfg.BatterySaverBelow = 30
	}
	if clk == nil {
		clk = clock.Real()
	}
	m := &Monitor{cfg: cfg, tracker: tracker, clock: clk, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run 运行直到 ctx 取消，或 StopAtHome 时到家
// 单次迭代出错只记录日志并短暂退避
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Monitor started",
		zap.Duration("interval", m.cfg.Interval),
		zap.Float64("home_threshold", m.cfg.HomeThreshold))

	for {
		home, err := m.iterate(ctx)
		if ctx.Err() != nil {
			m.logger.Info("Monitor stopped")
			return nil
		}

		wait := m.cfg.Interval
		if err != nil {
			m.logger.Warn("Monitor iteration failed", zap.Error(err))
			if tractive.IsAuthError(err) {
				if rerr := m.tracker.Refresh(ctx); rerr != nil {
					m.logger.Error("Re-authentication failed", zap.Error(rerr))
				}
			}
			wait = m.cfg.ErrorBackoff
		} else if home && m.cfg.StopAtHome {
			m.logger.Info("Pet is home, monitor finished")
			return nil
		}

		if err := m.clock.Sleep(ctx, wait); err != nil {
			m.logger.Info("Monitor stopped")
			return nil
		}
	}
}

// iterate 返回是否已到家
func (m *Monitor) iterate(ctx context.Context) (bool, error) {
	fix, err := m.tracker.CurrentLocation(ctx, 0)
	if err != nil {
		return false, fmt.Errorf("resolve location: %w", err)
	}
	status, err := m.tracker.DeviceStatus(ctx, true)
	if err != nil {
		return false, fmt.Errorf("device status: %w", err)
	}

	update := models.LocationUpdate{
		Fix:          fix,
		BatteryLevel: status.BatteryLevel,
		RecordedAt:   m.clock.Now().Unix(),
	}
	distance, hasHome := m.tracker.DistanceFromHome(fix)
	if hasHome {
		update.Distance = &distance
	}
	if m.geocoder != nil {
		if addr, err := m.geocoder.ReverseGeocode(ctx, fix.Latitude(), fix.Longitude()); err == nil {
			update.Address = addr
		}
	}

	m.fanOut(ctx, update, status)
	m.checkBattery(ctx, status)

	home := false
	if hasHome {
		home = distance <= m.cfg.HomeThreshold
		m.checkDistance(ctx, distance, home)
	}

	m.report(update, home)
	return home, nil
}

func (m *Monitor) fanOut(ctx context.Context, update models.LocationUpdate, status models.DeviceStatus) {
	if m.broadcaster != nil {
		m.broadcaster.BroadcastMessage("location_update", update)
	}
	if m.publisher != nil {
		payload, err := json.Marshal(update)
		if err == nil {
			err = m.publisher.Publish(ctx, m.cfg.Topic, payload)
		}
		if err != nil {
			m.logger.Warn("Failed to publish location", zap.Error(err))
		}
	}
	if m.archive != nil {
		trackerID := m.tracker.TrackerID()
		if _, err := m.archive.SavePositions(ctx, trackerID, []models.GPSFix{update.Fix}); err != nil {
			m.logger.Warn("Failed to archive position", zap.Error(err))
		}
		if aa, ok := m.archive.(AddressArchive); ok && update.Address != nil {
			if err := aa.SaveAddress(ctx, trackerID, update.Fix.Time(), update.Address); err != nil {
				m.logger.Warn("Failed to archive address", zap.Error(err))
			}
		}
		if err := m.archive.SaveStatus(ctx, trackerID, status); err != nil {
			m.logger.Warn("Failed to archive status", zap.Error(err))
		}
	}
}

func (m *Monitor) checkBattery(ctx context.Context, status models.DeviceStatus) {
	if status.IsLowBattery() {
		if !m.lowAlerted {
			m.lowAlerted = true
			m.events.Emit(EventLowBattery, map[string]any{"battery_level": status.BatteryLevel})
			m.alert(ctx, "Tracker battery low", fmt.Sprintf("Battery level is %d%%", status.BatteryLevel))
		}
	} else {
		m.lowAlerted = false
	}

	if m.cfg.AutoBatterySaver && !m.saverOn && status.BatteryLevel < m.cfg.BatterySaverBelow {
		if err := m.tracker.SendCommand(ctx, models.CommandBatterySaver, true); err != nil {
			m.logger.Warn("Failed to enable battery saver", zap.Error(err))
			return
		}
		m.saverOn = true
		m.logger.Info("Battery saver enabled", zap.Int("battery_level", status.BatteryLevel))
	}
}

func (m *Monitor) checkDistance(ctx context.Context, distance float64, home bool) {
	prev := m.lastDistance
	m.lastDistance = &distance

	if home {
		if prev == nil || *prev > m.cfg.HomeThreshold {
			m.events.Emit(EventPetAtHome, map[string]any{"distance": distance})
			m.alert(ctx, "Pet is home", fmt.Sprintf("Distance from home: %.0f m", distance))
			m.trigger(ctx, string(EventPetAtHome))
		}
		return
	}
	if prev != nil && distance < *prev {
		m.events.Emit(EventGettingCloser, map[string]any{"distance": distance, "previous": *prev})
		m.trigger(ctx, string(EventGettingCloser))
	}
}

func (m *Monitor) alert(ctx context.Context, subject, message string) {
	if m.alerter == nil {
		return
	}
	if err := m.alerter.Send(ctx, subject, message); err != nil {
		m.logger.Warn("Failed to send alert", zap.String("subject", subject), zap.Error(err))
	}
}

func (m *Monitor) trigger(ctx context.Context, event string) {
	if m.alerter == nil {
		return
	}
	if err := m.alerter.Trigger(ctx, event); err != nil {
		m.logger.Warn("Failed to trigger webhook", zap.String("event", event), zap.Error(err))
	}
}

func (m *Monitor) report(update models.LocationUpdate, home bool) {
	if m.statusLine == nil {
		return
	}
	line := fmt.Sprintf("Battery: %d%% | Location: %.6f, %.6f | Accuracy: %s",
		update.BatteryLevel, update.Fix.Latitude(), update.Fix.Longitude(), update.Fix.AccuracyLevel())
	if update.Distance != nil {
		line += fmt.Sprintf(" | Distance: %.0fm", *update.Distance)
	}
	if home {
		line += " | HOME"
	}
	m.statusLine(line)
}
