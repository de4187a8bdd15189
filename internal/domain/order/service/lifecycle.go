package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"rakhi_store/internal/domain/delivery/courier"
	"rakhi_store/internal/domain/notification"
	"rakhi_store/internal/domain/notification/templates"
	"rakhi_store/internal/domain/order/model"
	"rakhi_store/internal/domain/order/repository"
	"rakhi_store/internal/domain/order/statemachine"
	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/metrics"

	"go.uber.org/zap"
)

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrProductNotFound     = errors.New("product not found or unavailable")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOrderNotPayable     = errors.New("order is not awaiting payment")
	ErrPaymentSession      = errors.New("payment session could not be created")
	ErrShipmentUnsupported = errors.New("no courier configured for shipment")
	ErrNoTracking          = errors.New("order has no tracking number")
	ErrConcurrentUpdate    = errors.New("order was changed concurrently")
	ErrNotificationState   = errors.New("order state does not match notification")
)

// 事件来源，用于指标
const (
	SourceWebhook  = "webhook"
	SourceAdmin    = "admin"
	SourceShipment = "shipment"
	SourceTracking = "tracking"
)

// Notifier 异步发送订单邮件
type Notifier interface {
	Enqueue(req notification.Request) error
}

// Publisher 推送订单状态变化
type Publisher interface {
	Publish(ctx context.Context, v interface{}, channels ...string)
}

// NumberChannel 按订单号订阅的频道
func NumberChannel(orderNumber string) string { return "orders:number:" + orderNumber }

// UserChannel 按用户订阅的频道
func UserChannel(userID string) string { return "orders:user:" + userID }

// Outcome 状态变更结果
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoOp    Outcome = "noop" // 状态机判定无需变更
	OutcomeLost    Outcome = "lost" // 并发写入时另一方先完成
)

// Lifecycle 订单状态变更的唯一入口，回调和后台操作共用
// 状态机判定 -> 条件更新 -> 推送 -> 邮件
type Lifecycle struct {
	orders    repository.OrderRepository
	issues    repository.IssueRepository
	notifier  Notifier
	publisher Publisher
	couriers  *courier.Registry
	site      config.AppConfig
	metrics   *metrics.MetricsCollector
	now       func() time.Time
}

func NewLifecycle(
	orders repository.OrderRepository,
	issues repository.IssueRepository,
	notifier Notifier,
	publisher Publisher,
	couriers *courier.Registry,
	site config.AppConfig,
	m *metrics.MetricsCollector,
) *Lifecycle {
	return &Lifecycle{
		orders:    orders,
		issues:    issues,
		notifier:  notifier,
		publisher: publisher,
		couriers:  couriers,
		site:      site,
		metrics:   m,
		now:       time.Now,
	}
}

// Transition 对订单应用事件
// 写库失败返回 error；条件不满足（并发）返回 OutcomeLost 和最新订单
func (l *Lifecycle) Transition(ctx context.Context, order *model.Order, ev statemachine.Event, source string) (*model.Order, Outcome, error) {
	if ev.At.IsZero() {
		ev.At = l.now()
	}

	tr, err := statemachine.Apply(*order, ev)
	if err != nil {
		return order, "", err
	}
	if tr.NoOp {
		logger.Ctx(ctx).Info("Order transition skipped",
			zap.String("order_number", order.OrderNumber),
			zap.String("event", string(ev.Kind)),
			zap.String("reason", tr.Reason))
		return order, OutcomeNoOp, nil
	}

	ok, err := l.orders.UpdateIf(ctx, order.OrderNumber, tr.Guard, tr.Patch)
	if err != nil {
		return order, "", err
	}
	if !ok {
		logger.Ctx(ctx).Info("Order changed concurrently, transition not applied",
			zap.String("order_number", order.OrderNumber),
			zap.String("event", string(ev.Kind)),
			zap.String("from", string(tr.From)))
		latest, gErr := l.orders.GetByNumber(ctx, order.OrderNumber)
		if gErr != nil {
			return order, OutcomeLost, nil
		}
		return latest, OutcomeLost, nil
	}

	updated := *order
	updated.Apply(tr.Patch)

	logger.Ctx(ctx).Info("Order transitioned",
		zap.String("order_number", updated.OrderNumber),
		zap.String("event", string(ev.Kind)),
		zap.String("from", string(tr.From)),
		zap.String("to", string(updated.Status)),
		zap.String("payment_status", string(updated.PaymentStatus)),
		zap.String("source", source))
	l.metrics.RecordTransition(string(tr.From), string(updated.Status), source)

	l.Publish(ctx, &updated)
	if kind, ok := templateFor(tr.Effect); ok {
		l.Notify(kind, &updated)
	}
	return &updated, OutcomeApplied, nil
}

// Publish 推送订单变化，失败不影响业务
func (l *Lifecycle) Publish(ctx context.Context, o *model.Order) {
	if l.publisher == nil {
		return
	}
	channels := []string{NumberChannel(o.OrderNumber)}
	if o.UserID != nil && *o.UserID != "" {
		channels = append(channels, UserChannel(*o.UserID))
	}
	l.publisher.Publish(context.WithoutCancel(ctx), model.ChangeOf(o), channels...)
}

// Notify 邮件放入发送队列，队列失败由 Dispatcher 记录工单
func (l *Lifecycle) Notify(kind templates.Kind, o *model.Order) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Enqueue(l.EmailRequest(kind, o)); err != nil {
		logger.Log.Warn("Failed to enqueue email",
			zap.String("order_number", o.OrderNumber),
			zap.String("template", string(kind)),
			zap.Error(err))
	}
}

// RaiseIssue 记录运营工单，写入失败只记日志
func (l *Lifecycle) RaiseIssue(ctx context.Context, kind model.IssueKind, orderNumber, detail string) {
	l.metrics.RecordIssue(string(kind))
	logger.Ctx(ctx).Warn("Operator issue raised",
		zap.String("kind", string(kind)),
		zap.String("order_number", orderNumber),
		zap.String("detail", detail))

	issue := &model.Issue{Kind: kind, OrderNumber: orderNumber, Detail: detail}
	if err := l.issues.Record(context.WithoutCancel(ctx), issue); err != nil {
		logger.Ctx(ctx).Error("Failed to record operator issue",
			zap.String("kind", string(kind)),
			zap.String("order_number", orderNumber),
			zap.Error(err))
	}
}

// EmailRequest 由订单生成邮件参数
func (l *Lifecycle) EmailRequest(kind templates.Kind, o *model.Order) notification.Request {
	items := make([]templates.Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, templates.Item{Name: it.ProductName, Quantity: it.Quantity, UnitPrice: it.Price})
	}

	data := templates.Data{
		StoreName:         l.site.StoreName,
		SupportEmail:      l.site.SupportEmail,
		OrderNumber:       o.OrderNumber,
		CustomerName:      o.CustomerName,
		Currency:          o.Currency,
		Items:             items,
		Subtotal:          o.Subtotal,
		Shipping:          o.ShippingCharge,
		Total:             o.TotalAmount,
		Address:           addressLines(o.ShippingAddress),
		EstimatedDelivery: o.EstimatedDelivery,
		DeliveredAt:       o.DeliveredAt,
	}
	if l.site.SiteURL != "" {
		data.OrderURL = strings.TrimRight(l.site.SiteURL, "/") + "/orders/" + o.OrderNumber
	}
	if o.TrackingNumber != nil {
		data.TrackingNumber = *o.TrackingNumber
		if o.DeliveryPartner != nil {
			data.DeliveryPartner = *o.DeliveryPartner
			data.TrackingURL = l.couriers.TrackingURL(*o.DeliveryPartner, *o.TrackingNumber)
		}
	}

	return notification.Request{Kind: kind, To: o.CustomerEmail, ToName: o.CustomerName, Data: data}
}

func templateFor(effect statemachine.Effect) (templates.Kind, bool) {
	switch effect {
	case statemachine.EffectConfirmationEmail:
		return templates.OrderConfirmation, true
	case statemachine.EffectShippingEmail:
		return templates.OrderShipped, true
	case statemachine.EffectDeliveredEmail:
		return templates.OrderDelivered, true
	}
	return "", false
}

func addressLines(a model.ShippingAddress) []string {
	lines := []string{a.Name, a.AddressLine1}
	if a.AddressLine2 != "" {
		lines = append(lines, a.AddressLine2)
	}
	lines = append(lines, strings.TrimSpace(a.City+", "+a.State+" "+a.PostalCode))
	if a.Country != "" {
		lines = append(lines, a.Country)
	}
	if a.Phone != "" {
		lines = append(lines, "Phone: "+a.Phone)
	}
	return lines
}
