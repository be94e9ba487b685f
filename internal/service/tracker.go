package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/api/tractive"
	"github.com/langchou/petgazer/internal/clock"
	"github.com/langchou/petgazer/internal/models"
	"github.com/langchou/petgazer/internal/session"
)

// ErrNotStarted 服务尚未完成认证
var ErrNotStarted = errors.New("tracker service not started")

// DefaultHomeThreshold 判断到家的距离（米）
const DefaultHomeThreshold = 50.0

// Options 追踪服务配置
type Options struct {
	FallbackHours     int
	AccuracyThreshold float64
	BatteryMonitoring bool
	HomeLat           *float64
	HomeLon           *float64
	HomeThreshold     float64
}

// TrackerService 组合会话、定位、状态和历史轨迹
type TrackerService struct {
	opts     Options
	client   *tractive.Client
	sessions *session.Manager
	cache    *tractive.Cache
	clock    clock.Clock
	events   *EventBus
	logger   *zap.Logger

	mu       sync.RWMutex
	sess     session.Session
	location *LocationResolver
	status   *StatusReconciler
	history  *HistoryEngine
}

// NewTrackerService 创建追踪服务
func NewTrackerService(opts Options, client *tractive.Client, sessions *session.Manager, cache *tractive.Cache, clk clock.Clock, logger *zap.Logger) *TrackerService {
	if opts.HomeThreshold <= 0 {
		opts.HomeThreshold = DefaultHomeThreshold
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TrackerService{
		opts:     opts,
		client:   client,
		sessions: sessions,
		cache:    cache,
		clock:    clk,
		events:   NewEventBus(clk, logger),
		logger:   logger,
	}
}

// Start 建立会话并初始化各组件
func (s *TrackerService) Start(ctx context.Context) error {
	sess, err := s.sessions.Start(ctx)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	s.location = NewLocationResolver(s.client, sess.TrackerID, s.clock, s.events, s.logger, s.opts.FallbackHours, s.opts.AccuracyThreshold)
	s.status = NewStatusReconciler(s.client, sess.TrackerID, s.cache, s.events, s.logger, s.opts.BatteryMonitoring)
	s.history = NewHistoryEngine(s.client, sess.TrackerID, s.clock, s.logger)

	s.logger.Info("Tracker service started", zap.String("tracker_id", sess.TrackerID))
	return nil
}

// Refresh 重新登录，tracker_id 保持不变
func (s *TrackerService) Refresh(ctx context.Context) error {
	sess, err := s.sessions.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	return nil
}

// Events 事件注册表
func (s *TrackerService) Events() *EventBus {
	return s.events
}

// DataExported 导出完成后发出 data_exported 事件
func (s *TrackerService) DataExported(filename string, records, added int) {
	s.events.Emit(EventDataExported, map[string]any{
		"filename": filename,
		"records":  records,
		"added":    added,
	})
}

// On 注册事件回调
func (s *TrackerService) On(t EventType, h EventHandler) {
	s.events.On(t, h)
}

// Session 当前会话
func (s *TrackerService) Session() session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess
}

// TrackerID 追踪器 ID
func (s *TrackerService) TrackerID() string {
	return s.Session().TrackerID
}

// BaseURL API 根地址
func (s *TrackerService) BaseURL() string {
	return s.client.BaseURL()
}

// CurrentLocation 当前位置
func (s *TrackerService) CurrentLocation(ctx context.Context, maxAge time.Duration) (models.GPSFix, error) {
	s.mu.RLock()
	loc := s.location
	s.mu.RUnlock()
	if loc == nil {
		return models.GPSFix{}, ErrNotStarted
	}
	fix, err := loc.CurrentLocation(ctx, maxAge)
	return fix, s.guard(err)
}

// DeviceStatus 设备状态
func (s *TrackerService) DeviceStatus(ctx context.Context, partial bool) (models.DeviceStatus, error) {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	if st == nil {
		return models.DeviceStatus{}, ErrNotStarted
	}
	status, err := st.DeviceStatus(ctx, partial)
	return status, s.guard(err)
}

// History 历史轨迹
func (s *TrackerService) History(ctx context.Context, hoursBack int, withAnalytics bool) (models.LocationHistory, error) {
	s.mu.RLock()
	h := s.history
	s.mu.RUnlock()
	if h == nil {
		return nil, ErrNotStarted
	}
	history, err := h.History(ctx, hoursBack, withAnalytics)
	return history, s.guard(err)
}

// HistoryPoints 区间内所有有效点
func (s *TrackerService) HistoryPoints(ctx context.Context, from, to time.Time) ([]models.GPSFix, error) {
	s.mu.RLock()
	h := s.history
	s.mu.RUnlock()
	if h == nil {
		return nil, ErrNotStarted
	}
	points, err := h.Points(ctx, from, to)
	return points, s.guard(err)
}

// DistanceFromHome 到家的距离，未配置家时返回 false
func (s *TrackerService) DistanceFromHome(fix models.GPSFix) (float64, bool) {
	if s.opts.HomeLat == nil || s.opts.HomeLon == nil {
		return 0, false
	}
	return models.Haversine(fix.Latitude(), fix.Longitude(), *s.opts.HomeLat, *s.opts.HomeLon), true
}

// HomeStatus 是否在家，threshold <= 0 时使用默认阈值
func (s *TrackerService) HomeStatus(ctx context.Context, threshold float64) (models.HomeStatus, error) {
	if threshold <= 0 {
		threshold = s.opts.HomeThreshold
	}
	fix, err := s.CurrentLocation(ctx, 0)
	if err != nil {
		return models.HomeStatus{}, err
	}
	distance, ok := s.DistanceFromHome(fix)
	if !ok {
		return models.HomeStatus{}, fmt.Errorf("%w: home coordinates not configured", session.ErrConfigurationInvalid)
	}
	hs := models.HomeStatus{Distance: distance, Threshold: threshold, AtHome: distance <= threshold}
	if hs.AtHome {
		s.events.Emit(EventPetAtHome, map[string]any{"distance": distance})
	}
	return hs, nil
}

// Stats 请求统计
func (s *TrackerService) Stats() tractive.Stats {
	return s.client.Stats()
}

// ClearCache 清空响应缓存
func (s *TrackerService) ClearCache() {
	s.cache.Clear()
}

// guard 401 时把会话标记为失效，由调用方决定是否 Refresh
func (s *TrackerService) guard(err error) error {
	if err != nil && s.sessions.Invalidate(err) {
		s.logger.Warn("Access token rejected, re-authentication required")
	}
	return err
}
