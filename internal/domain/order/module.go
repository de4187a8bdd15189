package order

import (
	"context"
	"fmt"

	"rakhi_store/internal/domain/delivery/courier"
	"rakhi_store/internal/domain/notification"
	"rakhi_store/internal/domain/notification/email"
	"rakhi_store/internal/domain/order/handler"
	"rakhi_store/internal/domain/order/model"
	"rakhi_store/internal/domain/order/repository"
	"rakhi_store/internal/domain/order/service"
	"rakhi_store/internal/domain/payment/gateway"
	productRepo "rakhi_store/internal/domain/product/repository"
	userRepo "rakhi_store/internal/domain/user/repository"
	userService "rakhi_store/internal/domain/user/service"
	"rakhi_store/internal/pkg/archive"
	"rakhi_store/internal/pkg/config"
	"rakhi_store/internal/pkg/middleware"
	"rakhi_store/internal/pkg/realtime"
	"rakhi_store/internal/pkg/registry"
	"rakhi_store/pkg/cache"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderModule 订单模块：结账、支付回调、发货和订单查询
type OrderModule struct{}

func init() {
	registry.Register(&OrderModule{})
}

func (m *OrderModule) Name() string {
	return "order"
}

func (m *OrderModule) Priority() int {
	// 依赖用户模块
	return 10
}

func (m *OrderModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config
	if err := security.RegisterBindings(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	// 1. 仓库
	defaults, err := deliveryDefaults(cfg.Checkout)
	if err != nil {
		return err
	}
	orders := repository.NewOrderRepository(ctx.DB)
	issues := repository.NewIssueRepository(ctx.DB)
	events := repository.NewEventRepository(ctx.DB)
	settings := repository.NewSettingsRepository(ctx.DB, defaults)
	products := productRepo.NewProductRepository(ctx.DB)

	var accounts userService.AccountService
	if cfg.Checkout.CreateGuestAccounts {
		accounts = userService.NewAccountService(userRepo.NewUserRepository(ctx.DB))
	}

	// 2. 外部集成，启动时按配置选择一次
	gw, err := gateway.New(context.Background(), cfg.Payment, ctx.Metrics)
	if err != nil {
		return fmt.Errorf("init payment gateway: %w", err)
	}
	couriers, err := courier.NewRegistryFromConfig(cfg.Delivery, ctx.Metrics)
	if err != nil {
		return fmt.Errorf("init couriers: %w", err)
	}
	sender, err := email.New(cfg.Email, ctx.Metrics)
	if err != nil {
		return fmt.Errorf("init email sender: %w", err)
	}
	archiver, err := archive.New(cfg.OSS)
	if err != nil {
		return fmt.Errorf("init webhook archive: %w", err)
	}

	// 3. 推送：多实例部署时通过 Redis 转发
	var broker realtime.Broker = realtime.NewMemoryBroker()
	var trackingCache cache.CacheService = cache.NewMemoryCache()
	if ctx.Redis != nil {
		broker = realtime.NewRedisBroker(ctx.Redis)
		trackingCache = cache.NewRedisCache(ctx.Redis, "rakhi:"+cfg.App.Env+":")
	}
	hub := realtime.NewHub(broker)
	var publisher service.Publisher = hub
	if cfg.Stream.Enabled() {
		stream := realtime.NewKafkaStream(realtime.NewKafkaWriter(cfg.Stream.Brokers, cfg.Stream.Topic))
		publisher = realtime.Fanout{hub, stream}
		ctx.OnShutdown(stream.Close)
	}

	// 4. 邮件队列，多次失败进入运营工单
	notifier := notification.NewNotifier(sender, cfg.Email, ctx.Metrics)
	var lifecycle *service.Lifecycle
	dispatcher := notification.NewDispatcher(notifier, cfg.Email, func(req notification.Request, err error) {
		lifecycle.RaiseIssue(context.Background(), model.IssueNotificationFailed, req.Data.OrderNumber,
			fmt.Sprintf("%s to %s: %v", req.Kind, req.To, err))
	})
	lifecycle = service.NewLifecycle(orders, issues, dispatcher, publisher, couriers, cfg.App, ctx.Metrics)

	checkout := service.NewCheckoutService(orders, settings, products, accounts, gw, lifecycle, cfg.Checkout, ctx.Metrics)
	reconciler := service.NewReconciler(gw, orders, events, lifecycle, archiver, ctx.Metrics)
	query := service.NewQueryService(orders, couriers, hub, trackingCache)
	admin := service.NewAdminService(orders, issues, couriers, notifier, lifecycle, cfg.Delivery)

	dispatcher.Start()
	ctx.OnShutdown(dispatcher.Stop)
	ctx.OnShutdown(reconciler.Wait)

	logger.Log.Info("Order module ready",
		zap.String("payment_provider", gw.Name()),
		zap.String("email_provider", sender.Name()),
		zap.String("delivery_provider", cfg.Delivery.Provider),
		zap.Bool("redis_fanout", ctx.Redis != nil),
		zap.Bool("kafka_stream", cfg.Stream.Enabled()))

	// 5. 路由注册
	setupRoutes(ctx.Router, cfg.Server,
		handler.NewOrderHandler(checkout, reconciler, query),
		handler.NewAdminHandler(admin))
	return nil
}

func deliveryDefaults(cfg config.CheckoutConfig) (model.DeliverySettings, error) {
	charge, err := decimal.NewFromString(cfg.DeliveryCharge)
	if err != nil {
		return model.DeliverySettings{}, fmt.Errorf("checkout.delivery_charge: %w", err)
	}
	threshold, err := decimal.NewFromString(cfg.FreeDeliveryThreshold)
	if err != nil {
		return model.DeliverySettings{}, fmt.Errorf("checkout.free_delivery_threshold: %w", err)
	}
	return model.DeliverySettings{FlatCharge: charge, FreeThreshold: threshold}, nil
}

func setupRoutes(r *gin.Engine, server config.ServerConfig, h *handler.OrderHandler, a *handler.AdminHandler) {
	api := r.Group("/api")

	// 结账 (可选登录，按 IP 限流)
	checkout := api.Group("/checkout")
	checkout.Use(middleware.RateLimitMiddleware(server.CheckoutQPS, server.CheckoutBurst), middleware.OptionalAuthMiddleware())
	{
		checkout.POST("", h.Checkout)
		checkout.POST("/:orderNumber/session", h.RetrySession)
	}

	// 支付回调 (无需鉴权，但需验签)
	api.POST("/payment/webhook", h.Webhook)

	// 订单号即查询凭证，登录后本人可见完整信息
	orders := api.Group("/orders")
	orders.Use(middleware.OptionalAuthMiddleware())
	{
		orders.GET("/:orderNumber", h.GetOrder)
		orders.GET("/:orderNumber/tracking", h.Tracking)
		orders.GET("/:orderNumber/events", h.Events)
	}

	me := api.Group("/me/orders")
	me.Use(middleware.AuthMiddleware())
	{
		me.GET("", h.ListMine)
		me.GET("/events", h.MyEvents)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.PATCH("/orders/:id/status", a.UpdateStatus)
		admin.POST("/orders/:id/shipment", a.AttachShipment)
		admin.POST("/orders/:id/sync-delivery", a.SyncDelivery)
		admin.POST("/orders/:id/notifications/:kind", a.ResendNotification)
		admin.GET("/issues", a.ListIssues)
		admin.POST("/issues/:id/resolve", a.ResolveIssue)
	}
}
