package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/api/tractive"
	"github.com/langchou/petgazer/internal/models"
	"github.com/langchou/petgazer/internal/repository"
	"github.com/langchou/petgazer/internal/service"
	"github.com/langchou/petgazer/internal/session"
	"github.com/langchou/petgazer/pkg/ws"
)

// Tracker 处理器依赖的追踪服务
type Tracker interface {
	TrackerID() string
	BaseURL() string
	CurrentLocation(ctx context.Context, maxAge time.Duration) (models.GPSFix, error)
	DeviceStatus(ctx context.Context, partial bool) (models.DeviceStatus, error)
	PetData(ctx context.Context) (models.PetData, error)
	TrackerInfo(ctx context.Context) (models.TrackerInfo, error)
	Stats() tractive.Stats
	HomeStatus(ctx context.Context, threshold float64) (models.HomeStatus, error)
	History(ctx context.Context, hoursBack int, withAnalytics bool) (models.LocationHistory, error)
	HistoryPoints(ctx context.Context, from, to time.Time) ([]models.GPSFix, error)
	SendCommand(ctx context.Context, cmd models.CommandType, on bool) error
	CreateShare(ctx context.Context, message string) (models.ShareInfo, error)
	ListShares(ctx context.Context) ([]models.ShareInfo, error)
	DeactivateShare(ctx context.Context, shareID string) error
	LiveLocation(ctx context.Context) (models.GPSFix, error)
}

// Archive 可选的 Postgres 归档查询
type Archive interface {
	ListPositions(ctx context.Context, trackerID string, from, to time.Time) ([]models.GPSFix, error)
	BatteryHistory(ctx context.Context, trackerID string, since time.Time) ([]repository.BatteryPoint, error)
}

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	tracker  Tracker
	geocoder service.Geocoder
	archive  Archive
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// Option 可选依赖
type Option func(*Handler)

// WithGeocoder 位置接口附带地址
func WithGeocoder(g service.Geocoder) Option { return func(h *Handler) { h.geocoder = g } }

// WithArchive 启用归档查询
func WithArchive(a Archive) Option { return func(h *Handler) { h.archive = a } }

// NewHandler 创建处理器
func NewHandler(logger *zap.Logger, tracker Tracker, wsHub *ws.Hub, opts ...Option) *Handler {
	h := &Handler{
		logger:  logger,
		tracker: tracker,
		wsHub:   wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 本地面板，允许所有来源
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleWebSocket 处理 WebSocket 连接
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"tracker_id": h.tracker.TrackerID(),
		"ws_clients": h.wsHub.ClientCount(),
	})
}

// fail 把领域错误映射为 HTTP 状态码
func (h *Handler) fail(c *gin.Context, err error, message string) {
	status := http.StatusBadGateway
	if rl, ok := tractive.IsRateLimited(err); ok {
		status = http.StatusTooManyRequests
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
	} else {
		switch {
		case tractive.IsAuthError(err), errors.Is(err, session.ErrNotAuthenticated):
			status = http.StatusUnauthorized
		case errors.Is(err, service.ErrGPSDataUnavailable), errors.Is(err, session.ErrTrackerNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrNotStarted):
			status = http.StatusServiceUnavailable
		case errors.Is(err, session.ErrConfigurationInvalid):
			status = http.StatusConflict
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
	}

	h.logger.Error(message, zap.Error(err), zap.Int("status", status))
	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}

func queryInt(c *gin.Context, key string, defaultValue int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + key})
		return 0, false
	}
	return v, true
}
