package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/api/tractive"
	"github.com/langchou/petgazer/internal/state"
)

// ErrTrackerNotFound 账号下没有追踪器
var ErrTrackerNotFound = errors.New("no tracker found for account")

// ErrNotAuthenticated 会话尚未建立
var ErrNotAuthenticated = errors.New("session not authenticated")

// API 会话管理依赖的接口
type API interface {
	Authenticate(ctx context.Context, email, password string) (*tractive.AuthResponse, error)
	ListTrackers(ctx context.Context, userID string) ([]tractive.ObjectRef, error)
	SetToken(token string)
}

// Session 当前会话
type Session struct {
	Token     string `json:"-"`
	UserID    string `json:"user_id"`
	TrackerID string `json:"tracker_id"`
}

// Manager 获取和刷新访问令牌
type Manager struct {
	api           API
	store         TokenStore
	creds         Credentials
	defaultUserID string
	logger        *zap.Logger
	machine       *state.Machine

	mu      sync.Mutex
	session Session
}

// NewManager 创建会话管理器
// defaultUserID 用于只保存了令牌、没有用户 ID 的旧令牌文件
func NewManager(api API, store TokenStore, creds Credentials, defaultUserID string, logger *zap.Logger) *Manager {
	m := &Manager{
		api:           api,
		store:         store,
		creds:         creds,
		defaultUserID: defaultUserID,
		logger:        logger,
	}
	m.machine = state.NewSessionMachine(func(_, from, to string) {
		logger.Info("Session state changed", zap.String("from", from), zap.String("to", to))
	})
	return m
}

// Start 优先使用已保存的令牌，校验失败则用账号密码登录一次
func (m *Manager) Start(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.machine.Is(state.SessionAuthenticated) {
		return m.session, nil
	}

	if stored, err := m.store.Load(); err == nil && stored.AccessToken != "" {
		userID := stored.UserID
		if userID == "" {
			userID = m.defaultUserID
		}
		m.api.SetToken(stored.AccessToken)

		trackers, err := m.api.ListTrackers(ctx, userID)
		if err == nil {
			m.logger.Info("Using cached access token", zap.String("user_id", userID))
			return m.establish(stored.AccessToken, userID, trackers)
		}
		if !discardable(err) {
			m.api.SetToken("")
			return Session{}, fmt.Errorf("validate cached token: %w", err)
		}

		m.logger.Warn("Cached token rejected, logging in with credentials", zap.Error(err))
		m.api.SetToken("")
		if err := m.store.Clear(); err != nil {
			m.logger.Warn("Failed to clear token file", zap.Error(err))
		}
	}

	return m.login(ctx)
}

// Refresh 清除当前令牌后重新登录
func (m *Manager) Refresh(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invalidateLocked()
	return m.login(ctx)
}

// Invalidate 收到 401 时把会话标记为未认证，返回是否需要重新登录
func (m *Manager) Invalidate(err error) bool {
	if !tractive.IsAuthError(err) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked()
	return true
}

// Current 当前会话
func (m *Manager) Current() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.machine.Is(state.SessionAuthenticated) {
		return Session{}, ErrNotAuthenticated
	}
	return m.session, nil
}

// State 会话状态
func (m *Manager) State() string {
	return m.machine.CurrentState()
}

func (m *Manager) invalidateLocked() {
	m.api.SetToken("")
	m.session.Token = ""
	if m.machine.CanTransition(state.EventInvalidate) {
		_ = m.machine.Trigger(state.EventInvalidate)
	}
}

func (m *Manager) login(ctx context.Context) (Session, error) {
	if err := m.creds.Validate(); err != nil {
		return Session{}, err
	}

	resp, err := m.api.Authenticate(ctx, m.creds.Email, m.creds.Password)
	if err != nil {
		return Session{}, err
	}
	m.api.SetToken(resp.AccessToken)

	if err := m.store.Save(&StoredToken{AccessToken: resp.AccessToken, UserID: resp.UserID}); err != nil {
		m.logger.Warn("Failed to persist access token", zap.Error(err))
	}

	trackers, err := m.api.ListTrackers(ctx, resp.UserID)
	if err != nil {
		return Session{}, err
	}
	m.logger.Info("Authenticated with credentials", zap.String("user_id", resp.UserID))
	return m.establish(resp.AccessToken, resp.UserID, trackers)
}

// establish tracker_id 在整个进程生命周期内只解析一次
func (m *Manager) establish(token, userID string, trackers []tractive.ObjectRef) (Session, error) {
	trackerID := m.session.TrackerID
	if trackerID == "" {
		if len(trackers) == 0 || trackers[0].ID == "" {
			return Session{}, ErrTrackerNotFound
		}
		trackerID = trackers[0].ID
	}

	m.session = Session{Token: token, UserID: userID, TrackerID: trackerID}
	if m.machine.CanTransition(state.EventLogin) {
		if err := m.machine.Trigger(state.EventLogin); err != nil {
			return Session{}, err
		}
	}
	return m.session, nil
}

// discardable 认证错误或 API 错误时丢弃缓存令牌
func discardable(err error) bool {
	var apiErr *tractive.APIError
	return tractive.IsAuthError(err) || errors.As(err, &apiErr)
}
