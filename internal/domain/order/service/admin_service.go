package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rakhi_store/internal/domain/delivery/courier"
	"rakhi_store/internal/domain/notification"
	"rakhi_store/internal/domain/notification/templates"
	"rakhi_store/internal/domain/order/model"
	"rakhi_store/internal/domain/order/repository"
	"rakhi_store/internal/domain/order/statemachine"
	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/utils"

	"go.uber.org/zap"
)

// MailSender 同步发送邮件，后台补发时使用
type MailSender interface {
	Send(ctx context.Context, req notification.Request) notification.Result
}

// ShipmentInput 后台录入运单
// CreateWithCourier 为 true 时向物流商下单，运单号由物流商返回
type ShipmentInput struct {
	TrackingNumber    string
	AWBNumber         string
	Partner           string
	EstimatedDelivery *time.Time
	CreateWithCourier bool
}

// SyncResult 物流同步结果
type SyncResult struct {
	Order    *model.Order          `json:"order"`
	Tracking *courier.TrackingInfo `json:"tracking"`
	Changed  bool                  `json:"changed"`
}

// AdminService 后台订单操作
type AdminService interface {
	SetStatus(ctx context.Context, orderID string, status model.Status) (*model.Order, error)
	AttachShipment(ctx context.Context, orderID string, in ShipmentInput) (*model.Order, error)
	SyncDelivery(ctx context.Context, orderID string) (*SyncResult, error)
	ResendNotification(ctx context.Context, orderID, kind string) (notification.Result, error)
	ListIssues(ctx context.Context, onlyOpen bool, page *utils.Pagination) (utils.PageResult, error)
	ResolveIssue(ctx context.Context, id, note string) error
}

type adminService struct {
	orders    repository.OrderRepository
	issues    repository.IssueRepository
	couriers  *courier.Registry
	mail      MailSender
	lifecycle *Lifecycle
	delivery  config.DeliveryConfig
}

func NewAdminService(
	orders repository.OrderRepository,
	issues repository.IssueRepository,
	couriers *courier.Registry,
	mail MailSender,
	lifecycle *Lifecycle,
	delivery config.DeliveryConfig,
) AdminService {
	return &adminService{
		orders:    orders,
		issues:    issues,
		couriers:  couriers,
		mail:      mail,
		lifecycle: lifecycle,
		delivery:  delivery,
	}
}

func (s *adminService) SetStatus(ctx context.Context, orderID string, status model.Status) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, order, statemachine.Event{Kind: statemachine.AdminSetStatus, Target: status}, SourceAdmin)
}

func (s *adminService) AttachShipment(ctx context.Context, orderID string, in ShipmentInput) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	shipment := &statemachine.Shipment{
		TrackingNumber: in.TrackingNumber,
		AWBNumber:      in.AWBNumber,
		Partner:        in.Partner,
		EstimatedAt:    in.EstimatedDelivery,
	}
	if in.CreateWithCourier {
		if shipment, err = s.createShipment(ctx, order, in.Partner); err != nil {
			return nil, err
		}
	}

	return s.transition(ctx, order, statemachine.Event{Kind: statemachine.ShipmentCreated, Shipment: shipment}, SourceShipment)
}

// createShipment 向物流商下单，只允许已支付且未发货的订单
func (s *adminService) createShipment(ctx context.Context, order *model.Order, partner string) (*statemachine.Shipment, error) {
	if !order.Paid() {
		return nil, fmt.Errorf("%w: cannot ship %s order", statemachine.ErrPaymentNotCompleted, order.PaymentStatus)
	}
	if order.Status != model.StatusConfirmed && order.Status != model.StatusProcessing {
		return nil, fmt.Errorf("%w: cannot ship order in %s", statemachine.ErrInvalidTransition, order.Status)
	}

	c, err := s.couriers.Get(partner)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShipmentUnsupported, err)
	}

	res, err := c.CreateShipment(ctx, s.shipmentRequest(order))
	if err != nil {
		logger.Log.Error("Courier shipment failed",
			zap.String("order_number", order.OrderNumber),
			zap.String("courier", c.Name()),
			zap.Error(err))
		return nil, err
	}

	logger.Log.Info("Courier shipment created",
		zap.String("order_number", order.OrderNumber),
		zap.String("courier", c.Name()),
		zap.String("tracking_number", res.TrackingNumber))
	return &statemachine.Shipment{
		TrackingNumber: res.TrackingNumber,
		AWBNumber:      res.AWBNumber,
		Partner:        c.Name(),
		EstimatedAt:    res.EstimatedAt,
	}, nil
}

func (s *adminService) shipmentRequest(order *model.Order) courier.ShipmentRequest {
	items := make([]courier.Item, 0, len(order.Items))
	for _, it := range order.Items {
		weight := it.WeightGrams
		if weight <= 0 {
			weight = s.delivery.DefaultItemWeightGrams
		}
		items = append(items, courier.Item{
			Name:        it.ProductName,
			SKU:         it.ProductID,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
			WeightGrams: weight,
		})
	}

	a := order.ShippingAddress
	return courier.ShipmentRequest{
		OrderNumber: order.OrderNumber,
		OrderDate:   order.CreatedAt,
		PickupName:  s.delivery.Pickup.Name,
		Pickup:      courier.PickupAddress(s.delivery.Pickup),
		Delivery: courier.Address{
			Name:       a.Name,
			Phone:      a.Phone,
			Email:      order.CustomerEmail,
			Line1:      a.AddressLine1,
			Line2:      a.AddressLine2,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		},
		Items:         items,
		DeclaredValue: order.TotalAmount,
		PaymentMode:   courier.PaymentPrepaid,
	}
}

func (s *adminService) SyncDelivery(ctx context.Context, orderID string) (*SyncResult, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.StatusShipped {
		return nil, fmt.Errorf("%w: cannot sync order in %s", statemachine.ErrInvalidTransition, order.Status)
	}
	if order.TrackingNumber == nil || *order.TrackingNumber == "" {
		return nil, ErrNoTracking
	}

	partner := ""
	if order.DeliveryPartner != nil {
		partner = *order.DeliveryPartner
	}
	c, err := s.couriers.Get(partner)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShipmentUnsupported, err)
	}

	info, err := c.TrackShipment(ctx, *order.TrackingNumber)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{Order: order, Tracking: info}
	if !info.Delivered {
		return res, nil
	}

	ev := statemachine.Event{Kind: statemachine.DeliveryConfirmed}
	if info.UpdatedAt != nil {
		ev.At = *info.UpdatedAt
	}
	updated, outcome, err := s.lifecycle.Transition(ctx, order, ev, SourceTracking)
	if err != nil {
		return nil, err
	}
	res.Order = updated
	res.Changed = outcome == OutcomeApplied
	return res, nil
}

func (s *adminService) ResendNotification(ctx context.Context, orderID, kind string) (notification.Result, error) {
	k, err := templates.ParseKind(kind)
	if err != nil {
		return notification.Result{}, err
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return notification.Result{}, err
	}
	if !notifiable(k, order) {
		return notification.Result{}, fmt.Errorf("%w: %s for %s order", ErrNotificationState, k, order.Status)
	}

	res := s.mail.Send(ctx, s.lifecycle.EmailRequest(k, order))
	if !res.Success {
		return res, res.Err
	}
	logger.Log.Info("Notification resent",
		zap.String("order_number", order.OrderNumber),
		zap.String("template", string(k)),
		zap.String("message_id", res.MessageID))
	return res, nil
}

// notifiable 邮件内容需要与订单当前状态一致
func notifiable(k templates.Kind, o *model.Order) bool {
	switch k {
	case templates.OrderConfirmation:
		return o.Paid() && o.Status != model.StatusCancelled
	case templates.OrderShipped:
		return (o.Status == model.StatusShipped || o.Status == model.StatusDelivered) && o.TrackingNumber != nil
	case templates.OrderDelivered:
		return o.Status == model.StatusDelivered
	}
	return false
}

func (s *adminService) ListIssues(ctx context.Context, onlyOpen bool, page *utils.Pagination) (utils.PageResult, error) {
	offset, limit := page.GetPageOffset()
	issues, total, err := s.issues.List(ctx, onlyOpen, offset, limit)
	if err != nil {
		return utils.PageResult{}, err
	}
	return page.Result(issues, total), nil
}

func (s *adminService) ResolveIssue(ctx context.Context, id, note string) error {
	return s.issues.Resolve(ctx, id, note)
}

// transition 后台操作与回调竞争失败时返回 ErrConcurrentUpdate，由操作员刷新后重试
func (s *adminService) transition(ctx context.Context, order *model.Order, ev statemachine.Event, source string) (*model.Order, error) {
	updated, outcome, err := s.lifecycle.Transition(ctx, order, ev, source)
	if err != nil {
		return nil, err
	}
	if outcome == OutcomeLost {
		return updated, ErrConcurrentUpdate
	}
	return updated, nil
}

// IsCourierError 物流商调用失败
func IsCourierError(err error) bool {
	var cErr *courier.Error
	return errors.As(err, &cErr)
}
