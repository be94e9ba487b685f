package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/api/handlers"
	"github.com/langchou/petgazer/internal/app"
	"github.com/langchou/petgazer/internal/config"
	"github.com/langchou/petgazer/internal/service"
	"github.com/langchou/petgazer/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := app.InitLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Petgazer", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 认证并创建追踪服务
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start tracker service", zap.Error(err))
	}
	tracker := a.Tracker
	logger.Info("Tracker service started", zap.String("tracker_id", tracker.TrackerID()))

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	wsHub.SetInitDataProvider(func() *ws.InitData {
		initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
		defer initCancel()

		data := &ws.InitData{}
		if status, err := tracker.DeviceStatus(initCtx, true); err == nil {
			data.Status = status
		}
		// 允许使用一分钟内的缓存位置
		if fix, err := tracker.CurrentLocation(initCtx, time.Minute); err == nil {
			data.Location = fix
		}
		return data
	})
	go wsHub.Run(ctx)

	// 事件广播到 WebSocket
	events := tracker.Events().Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				wsHub.BroadcastEvent(ev)
			}
		}
	}()

	opts := []service.MonitorOption{
		service.WithBroadcaster(wsHub),
		service.WithEvents(tracker.Events()),
		service.WithAlerter(a.Notifier()),
	}
	var handlerOpts []handlers.Option

	// 数据库归档（可选）
	archive, db, err := a.Archive(ctx)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
		opts = append(opts, service.WithArchive(archive))
		handlerOpts = append(handlerOpts, handlers.WithArchive(archive))
	}

	// 消息推送（可选）
	pub, err := a.Publisher()
	if err != nil {
		logger.Fatal("Failed to connect message broker", zap.Error(err))
	}
	if pub != nil {
		defer pub.Close()
		opts = append(opts, service.WithPublisher(pub))
	}

	// 逆地理编码（可选）
	if geo := a.Geocoder(); geo != nil {
		opts = append(opts, service.WithGeocoder(geo))
		handlerOpts = append(handlerOpts, handlers.WithGeocoder(geo))
	}

	// 启动监控循环
	monitorDone := make(chan struct{})
	monitor := service.NewMonitor(a.MonitorConfig(), tracker, a.Clock, logger.Named("monitor"), opts...)
	go func() {
		defer close(monitorDone)
		if err := monitor.Run(ctx); err != nil {
			logger.Error("Monitor exited", zap.Error(err))
		}
	}()

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, tracker, wsHub, handlerOpts...)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止监控和 Hub
	cancel()
	<-monitorDone

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
