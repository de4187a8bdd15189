// Package statemachine 订单状态机，纯函数：当前订单 + 事件 -> 状态变更或拒绝
package statemachine

import (
	"errors"
	"fmt"
	"time"

	"rakhi_store/internal/domain/order/model"
)

var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrMissingTracking     = errors.New("tracking number is required")
	ErrUnknownEvent        = errors.New("unknown event")
)

// EventKind 事件类型
type EventKind string

const (
	PaymentSucceeded  EventKind = "payment_succeeded"
	PaymentFailed     EventKind = "payment_failed"
	PaymentDropped    EventKind = "payment_dropped"
	AdminSetStatus    EventKind = "admin_set_status"
	ShipmentCreated   EventKind = "shipment_created"
	DeliveryConfirmed EventKind = "delivery_confirmed" // 物流轨迹显示已签收
)

// Effect 状态变更成功后需要执行的副作用
type Effect string

const (
	EffectNone              Effect = ""
	EffectConfirmationEmail Effect = "confirmation_email"
	EffectShippingEmail     Effect = "shipping_email"
	EffectDeliveredEmail    Effect = "delivered_email"
)

// Shipment 发货信息
type Shipment struct {
	TrackingNumber string
	AWBNumber      string
	Partner        string
	EstimatedAt    *time.Time
}

// Event 作用于订单的事件
type Event struct {
	Kind      EventKind
	PaymentID string
	Target    model.Status // AdminSetStatus 的目标状态
	Shipment  *Shipment
	At        time.Time
}

// Transition 状态机的判定结果
// NoOp 为 true 时调用方不应写库，也不应触发副作用
type Transition struct {
	From   model.Status
	To     model.Status
	Guard  model.Guard
	Patch  model.Patch
	Effect Effect
	NoOp   bool
	Reason string
}

// allowedTransitions 合法的状态流转
var allowedTransitions = map[model.Status][]model.Status{
	model.StatusPending:    {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed:  {model.StatusProcessing, model.StatusShipped, model.StatusCancelled},
	model.StatusProcessing: {model.StatusShipped, model.StatusCancelled},
	model.StatusShipped:    {model.StatusDelivered},
	model.StatusDelivered:  {},
	model.StatusCancelled:  {},
}

// CanTransition 是否允许 from -> to
func CanTransition(from, to model.Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStatuses 后台下拉框可选的下一状态
func NextStatuses(from model.Status) []model.Status {
	return append([]model.Status(nil), allowedTransitions[from]...)
}

// Apply 计算事件作用于订单后的结果
func Apply(order model.Order, ev Event) (Transition, error) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	switch ev.Kind {
	case PaymentSucceeded, PaymentFailed, PaymentDropped:
		return applyPayment(order, ev), nil
	case AdminSetStatus:
		return applyAdminStatus(order, ev)
	case ShipmentCreated:
		return applyShipment(order, ev)
	case DeliveryConfirmed:
		return applyDelivered(order, ev)
	default:
		return Transition{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}
}

// applyPayment 支付回调只作用于 pending/pending 的订单
// 其余情况（重复回调、乱序回调、已人工处理）都是无操作
func applyPayment(order model.Order, ev Event) Transition {
	tr := Transition{From: order.Status, To: order.Status}
	if order.Status != model.StatusPending || order.PaymentStatus != model.PaymentPending {
		tr.NoOp = true
		tr.Reason = fmt.Sprintf("order already %s/%s", order.Status, order.PaymentStatus)
		return tr
	}

	var payment model.PaymentStatus
	switch ev.Kind {
	case PaymentSucceeded:
		tr.To = model.StatusConfirmed
		payment = model.PaymentCompleted
		tr.Effect = EffectConfirmationEmail
	case PaymentFailed:
		tr.To = model.StatusCancelled
		payment = model.PaymentFailed
	default:
		tr.To = model.StatusCancelled
		payment = model.PaymentCancelled
	}

	to := tr.To
	tr.Guard = model.Guard{
		Statuses:        []model.Status{model.StatusPending},
		PaymentStatuses: []model.PaymentStatus{model.PaymentPending},
	}
	tr.Patch = model.Patch{Status: &to, PaymentStatus: &payment, UpdatedAt: ev.At}
	if ev.PaymentID != "" {
		id := ev.PaymentID
		tr.Patch.PaymentID = &id
	}
	return tr
}

// applyAdminStatus 后台手动修改状态
func applyAdminStatus(order model.Order, ev Event) (Transition, error) {
	tr := Transition{From: order.Status, To: ev.Target}
	if !ev.Target.Valid() {
		return tr, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, ev.Target)
	}
	if ev.Target == order.Status {
		tr.NoOp = true
		tr.Reason = "status unchanged"
		return tr, nil
	}
	if !CanTransition(order.Status, ev.Target) {
		return tr, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, ev.Target)
	}
	// 未支付的订单只能取消
	if ev.Target != model.StatusCancelled && !order.Paid() {
		return tr, fmt.Errorf("%w: cannot move %s order to %s", ErrPaymentNotCompleted, order.PaymentStatus, ev.Target)
	}

	to := ev.Target
	tr.Guard = model.Guard{
		Statuses:        []model.Status{order.Status},
		PaymentStatuses: []model.PaymentStatus{order.PaymentStatus},
	}
	tr.Patch = model.Patch{Status: &to, UpdatedAt: ev.At}

	switch to {
	case model.StatusShipped:
		at := ev.At
		tr.Patch.ShippedAt = &at
	case model.StatusDelivered:
		at := ev.At
		tr.Patch.DeliveredAt = &at
		tr.Effect = EffectDeliveredEmail
	case model.StatusCancelled:
		// pending 订单被人工取消时，支付状态同步为 cancelled
		if order.PaymentStatus == model.PaymentPending {
			p := model.PaymentCancelled
			tr.Patch.PaymentStatus = &p
		}
	}
	return tr, nil
}

// applyShipment 录入运单号
// confirmed/processing -> shipped 并发送发货邮件
// 已发货订单再次录入相同运单号为无操作，不同运单号则更新并重新发送邮件
func applyShipment(order model.Order, ev Event) (Transition, error) {
	tr := Transition{From: order.Status, To: model.StatusShipped}
	if ev.Shipment == nil || ev.Shipment.TrackingNumber == "" {
		return tr, ErrMissingTracking
	}
	if !order.Paid() {
		return tr, fmt.Errorf("%w: cannot ship %s order", ErrPaymentNotCompleted, order.PaymentStatus)
	}

	current := ""
	if order.TrackingNumber != nil {
		current = *order.TrackingNumber
	}

	switch order.Status {
	case model.StatusConfirmed, model.StatusProcessing:
		tr.Guard = model.Guard{
			Statuses:        []model.Status{order.Status},
			PaymentStatuses: []model.PaymentStatus{model.PaymentCompleted},
		}
	case model.StatusShipped:
		if current == ev.Shipment.TrackingNumber {
			tr.NoOp = true
			tr.Reason = "tracking number unchanged"
			return tr, nil
		}
		tr.Guard = model.Guard{
			Statuses:       []model.Status{model.StatusShipped},
			TrackingNumber: &current,
		}
	default:
		return tr, fmt.Errorf("%w: cannot ship order in %s", ErrInvalidTransition, order.Status)
	}

	to := model.StatusShipped
	tracking := ev.Shipment.TrackingNumber
	awb := ev.Shipment.AWBNumber
	if awb == "" {
		awb = tracking
	}
	at := ev.At
	tr.Patch = model.Patch{
		Status:         &to,
		TrackingNumber: &tracking,
		AWBNumber:      &awb,
		ShippedAt:      &at,
		UpdatedAt:      ev.At,
	}
	if ev.Shipment.Partner != "" {
		partner := ev.Shipment.Partner
		tr.Patch.DeliveryPartner = &partner
	}
	if ev.Shipment.EstimatedAt != nil {
		eta := *ev.Shipment.EstimatedAt
		tr.Patch.EstimatedDelivery = &eta
	}
	// 重新录入运单号时保留首次发货时间
	if order.Status == model.StatusShipped && order.ShippedAt != nil {
		tr.Patch.ShippedAt = nil
	}
	tr.Effect = EffectShippingEmail
	return tr, nil
}

// applyDelivered 物流签收，仅作用于已发货订单
func applyDelivered(order model.Order, ev Event) (Transition, error) {
	tr := Transition{From: order.Status, To: model.StatusDelivered}
	switch order.Status {
	case model.StatusDelivered:
		tr.NoOp = true
		tr.Reason = "already delivered"
		return tr, nil
	case model.StatusShipped:
	default:
		return tr, fmt.Errorf("%w: cannot deliver order in %s", ErrInvalidTransition, order.Status)
	}

	to := model.StatusDelivered
	at := ev.At
	tr.Guard = model.Guard{Statuses: []model.Status{model.StatusShipped}}
	tr.Patch = model.Patch{Status: &to, DeliveredAt: &at, UpdatedAt: ev.At}
	tr.Effect = EffectDeliveredEmail
	return tr, nil
}
