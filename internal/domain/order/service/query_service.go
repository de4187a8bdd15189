package service

import (
	"context"
	"time"

	"rakhi_store/internal/domain/delivery/courier"
	"rakhi_store/internal/domain/order/model"
	"rakhi_store/internal/domain/order/repository"
	"rakhi_store/internal/pkg/realtime"
	"rakhi_store/pkg/cache"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/utils"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Subscriber 订阅订单状态变化
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (realtime.Subscription, error)
}

// TrackingView 前台物流页
type TrackingView struct {
	OrderNumber       string                `json:"orderNumber"`
	Status            model.Status          `json:"status"`
	TrackingNumber    string                `json:"trackingNumber,omitempty"`
	AWBNumber         string                `json:"awbNumber,omitempty"`
	DeliveryPartner   string                `json:"deliveryPartner,omitempty"`
	TrackingURL       string                `json:"trackingUrl,omitempty"`
	EstimatedDelivery *time.Time            `json:"estimatedDelivery,omitempty"`
	ShippedAt         *time.Time            `json:"shippedAt,omitempty"`
	DeliveredAt       *time.Time            `json:"deliveredAt,omitempty"`
	Live              *courier.TrackingInfo `json:"live,omitempty"` // 物流商实时轨迹，查询失败时为空
}

// QueryService 订单只读查询
type QueryService interface {
	GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	Tracking(ctx context.Context, orderNumber string) (*TrackingView, error)
	ListMine(ctx context.Context, userID string, page *utils.Pagination) (utils.PageResult, error)
	// Subscribe 订阅单个订单的状态变化，订单不存在时返回 ErrOrderNotFound
	Subscribe(ctx context.Context, orderNumber string) (realtime.Subscription, error)
	// SubscribeUser 订阅用户全部订单的状态变化
	SubscribeUser(ctx context.Context, userID string) (realtime.Subscription, error)
}

// 实时轨迹缓存时间，避免前台刷新频繁调用物流商接口
const liveTrackingTTL = 5 * time.Minute

type queryService struct {
	orders     repository.OrderRepository
	couriers   *courier.Registry
	subscriber Subscriber
	cache      cache.CacheService // 可为 nil
}

func NewQueryService(orders repository.OrderRepository, couriers *courier.Registry, subscriber Subscriber, c cache.CacheService) QueryService {
	return &queryService{orders: orders, couriers: couriers, subscriber: subscriber, cache: c}
}

func (s *queryService) GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	return s.orders.GetByNumber(ctx, orderNumber)
}

func (s *queryService) Tracking(ctx context.Context, orderNumber string) (*TrackingView, error) {
	order, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	view := &TrackingView{
		OrderNumber:       order.OrderNumber,
		Status:            order.Status,
		EstimatedDelivery: order.EstimatedDelivery,
		ShippedAt:         order.ShippedAt,
		DeliveredAt:       order.DeliveredAt,
	}
	if order.TrackingNumber == nil || *order.TrackingNumber == "" {
		return view, nil
	}
	view.TrackingNumber = *order.TrackingNumber
	view.AWBNumber = lo.FromPtr(order.AWBNumber)
	view.DeliveryPartner = lo.FromPtr(order.DeliveryPartner)
	view.TrackingURL = s.couriers.TrackingURL(view.DeliveryPartner, view.TrackingNumber)

	// 实时轨迹只用于展示，失败时返回订单中已记录的信息
	if view.DeliveryPartner == "" || order.Status != model.StatusShipped {
		return view, nil
	}
	view.Live = s.liveTracking(ctx, order.OrderNumber, view.DeliveryPartner, view.TrackingNumber)
	return view, nil
}

func (s *queryService) liveTracking(ctx context.Context, orderNumber, partner, trackingNumber string) *courier.TrackingInfo {
	key := "tracking:" + partner + ":" + trackingNumber
	if s.cache != nil {
		var cached courier.TrackingInfo
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached
		}
	}

	c, err := s.couriers.Get(partner)
	if err != nil {
		return nil
	}
	info, err := c.TrackShipment(ctx, trackingNumber)
	if err != nil {
		logger.Log.Warn("Live tracking unavailable",
			zap.String("order_number", orderNumber),
			zap.String("courier", partner),
			zap.Error(err))
		return nil
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, info, liveTrackingTTL); err != nil {
			logger.Log.Warn("Cache live tracking failed", zap.String("key", key), zap.Error(err))
		}
	}
	return info
}

func (s *queryService) ListMine(ctx context.Context, userID string, page *utils.Pagination) (utils.PageResult, error) {
	offset, limit := page.GetPageOffset()
	orders, total, err := s.orders.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return utils.PageResult{}, err
	}
	return page.Result(orders, total), nil
}

func (s *queryService) Subscribe(ctx context.Context, orderNumber string) (realtime.Subscription, error) {
	if _, err := s.orders.GetByNumber(ctx, orderNumber); err != nil {
		return nil, err
	}
	return s.subscriber.Subscribe(ctx, NumberChannel(orderNumber))
}

func (s *queryService) SubscribeUser(ctx context.Context, userID string) (realtime.Subscription, error) {
	return s.subscriber.Subscribe(ctx, UserChannel(userID))
}
