// @title           Rakhi Store API
// @version         1.0
// @description     订单生命周期服务：下单、支付回调、发货与通知
// @BasePath        /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "rakhi_store/docs"
	_ "rakhi_store/internal/domain/order"
	_ "rakhi_store/internal/domain/user"
	"rakhi_store/internal/pkg/config"
	"rakhi_store/internal/pkg/middleware"
	"rakhi_store/internal/pkg/registry"
	"rakhi_store/pkg/database"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/metrics"
	"rakhi_store/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	cfg := config.GlobalConfig

	logger.InitLogger(cfg.App.Env, cfg.Log.Level)
	defer logger.Sync()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Redis 不可用时退化为进程内推送
	var rdb *redis.Client
	if client, err := database.InitRedis(cfg.Redis); err != nil {
		logger.Log.Warn("Redis unavailable, falling back to in-process broker", zap.Error(err))
	} else {
		rdb = client
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if sqlDB, err := db.DB(); err == nil {
		reg.MustRegister(collectors.NewDBStatsCollector(sqlDB, cfg.Database.DBName))
	}
	collector := metrics.NewMetricsCollector(reg)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(
		middleware.MetricsMiddleware(collector),
		middleware.RecoveryMiddleware(),
		middleware.TraceMiddleware(),
		middleware.LoggerMiddleware(),
		middleware.CORSMiddleware(cfg.Server.AllowedOrigins),
		middleware.SecurityHeadersMiddleware(),
	)

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			response.Error(c, http.StatusServiceUnavailable, response.ErrServerInternal, "database unavailable")
			return
		}
		response.Success(c, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	if cfg.App.Debug {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	mctx := &registry.ModuleContext{
		DB:      db,
		Redis:   rdb,
		Router:  r,
		Config:  &cfg,
		Metrics: collector,
	}
	if err := registry.InitModules(mctx); err != nil {
		logger.Log.Fatal("Failed to initialize modules", zap.Error(err))
	}

	// 订单事件流是长连接，不设置 WriteTimeout；关闭时取消 baseCtx 让事件流退出
	baseCtx, stopStreams := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(stopStreams)

	go func() {
		logger.Log.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	// 先停止接收请求，再等待通知队列与回调归档完成
	if err := mctx.Shutdown(ctx); err != nil {
		logger.Log.Error("Module shutdown failed", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Log.Info("Server stopped")
}
