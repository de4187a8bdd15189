package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"rakhi_store/internal/domain/order/model"
	"rakhi_store/internal/domain/order/repository"
	"rakhi_store/internal/domain/order/statemachine"
	"rakhi_store/internal/domain/payment/gateway"
	"rakhi_store/internal/pkg/archive"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/metrics"

	"go.uber.org/zap"
)

// 回调处理结果，用于指标和归档
const (
	WebhookAccepted       = "accepted"
	WebhookDuplicate      = "duplicate"
	WebhookNoOp           = "noop"
	WebhookIgnored        = "ignored"
	WebhookRejected       = "rejected"
	WebhookMalformed      = "malformed"
	WebhookError          = "error"
	WebhookUnknownOrder   = "unknown_order"
	WebhookAmountMismatch = "amount_mismatch"
)

const archiveTimeout = 10 * time.Second

// WebhookResult 回调处理结果
// 除验签失败、报文错误和内部错误外一律应答成功，避免网关重复投递
type WebhookResult struct {
	Outcome     string
	OrderNumber string
	Ack         *gateway.Ack
}

// Reconciler 支付回调对账
type Reconciler struct {
	gateway   gateway.Gateway
	orders    repository.OrderRepository
	events    repository.EventRepository
	lifecycle *Lifecycle
	archiver  archive.Archiver
	metrics   *metrics.MetricsCollector
	now       func() time.Time

	wg sync.WaitGroup
}

func NewReconciler(
	gw gateway.Gateway,
	orders repository.OrderRepository,
	events repository.EventRepository,
	lifecycle *Lifecycle,
	archiver archive.Archiver,
	m *metrics.MetricsCollector,
) *Reconciler {
	return &Reconciler{
		gateway:   gw,
		orders:    orders,
		events:    events,
		lifecycle: lifecycle,
		archiver:  archiver,
		metrics:   m,
		now:       time.Now,
	}
}

// HandleWebhook 验签、解析并应用一次回调
// 返回 gateway.ErrInvalidSignature / gateway.ErrMalformedPayload 时调用方应答 4xx
func (r *Reconciler) HandleWebhook(ctx context.Context, header http.Header, body []byte, remoteAddr string) (*WebhookResult, error) {
	receivedAt := r.now()
	provider := r.gateway.Name()

	res, err := r.handle(ctx, header, body)
	if res == nil {
		res = &WebhookResult{}
	}
	if err != nil && res.Outcome == "" {
		res.Outcome = WebhookError
	}
	r.metrics.RecordWebhook(provider, res.Outcome)

	r.archive(archive.Record{
		Provider:    provider,
		Outcome:     res.Outcome,
		OrderNumber: res.OrderNumber,
		RemoteAddr:  remoteAddr,
		Headers:     flattenHeader(header),
		Body:        string(body),
		ReceivedAt:  receivedAt,
	})

	if err != nil {
		return res, err
	}
	res.Ack = r.gateway.Acknowledge()
	return res, nil
}

func (r *Reconciler) handle(ctx context.Context, header http.Header, body []byte) (*WebhookResult, error) {
	// 1. 验签
	ev, err := r.gateway.ParseWebhook(ctx, header, body)
	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		logger.Ctx(ctx).Warn("Webhook signature rejected",
			zap.String("provider", r.gateway.Name()),
			zap.Int("body_size", len(body)),
			zap.Error(err))
		return &WebhookResult{Outcome: WebhookRejected}, err
	case errors.Is(err, gateway.ErrMalformedPayload):
		logger.Ctx(ctx).Warn("Webhook payload malformed", zap.String("provider", r.gateway.Name()), zap.Error(err))
		return &WebhookResult{Outcome: WebhookMalformed}, err
	case err != nil:
		return nil, err
	}

	res := &WebhookResult{OrderNumber: ev.OrderNumber}
	kind, ok := eventKindOf(ev.Kind)
	if !ok {
		logger.Ctx(ctx).Info("Webhook ignored", zap.String("type", ev.Type), zap.String("order_number", ev.OrderNumber))
		res.Outcome = WebhookIgnored
		return res, nil
	}

	// 2. 查找订单
	order, err := r.orders.GetByNumber(ctx, ev.OrderNumber)
	if errors.Is(err, repository.ErrOrderNotFound) {
		r.lifecycle.RaiseIssue(ctx, model.IssueWebhookUnknownOrder, ev.OrderNumber, "webhook "+ev.Type+" for unknown order, payment "+ev.PaymentID)
		res.Outcome = WebhookUnknownOrder
		return res, nil
	}
	if err != nil {
		return res, err
	}

	// 3. 金额校验，不一致的成功回调不生效
	if kind == statemachine.PaymentSucceeded && ev.HasAmount && !ev.Amount.Equal(order.TotalAmount) {
		inserted, err := r.record(ctx, ev, WebhookAmountMismatch)
		if err != nil {
			return res, err
		}
		if inserted {
			r.lifecycle.RaiseIssue(ctx, model.IssueWebhookAmount, order.OrderNumber,
				"paid "+ev.Amount.StringFixed(2)+" "+ev.Currency+", order total "+order.TotalAmount.StringFixed(2)+" "+order.Currency)
		}
		res.Outcome = WebhookAmountMismatch
		return res, nil
	}

	// 4. 状态变更，重复或乱序的回调由状态机判定为无操作
	_, outcome, err := r.lifecycle.Transition(ctx, order, statemachine.Event{
		Kind:      kind,
		PaymentID: ev.PaymentID,
		At:        r.now(),
	}, SourceWebhook)
	if err != nil {
		return res, err
	}
	res.Outcome = WebhookAccepted
	if outcome != OutcomeApplied {
		res.Outcome = WebhookNoOp
	}

	// 5. 记录回调，同一事件只保留一条
	inserted, err := r.record(ctx, ev, res.Outcome)
	if err != nil {
		logger.Ctx(ctx).Error("Failed to record payment event",
			zap.String("order_number", ev.OrderNumber),
			zap.Error(err))
	} else if !inserted {
		res.Outcome = WebhookDuplicate
	}

	logger.Ctx(ctx).Info("Webhook processed",
		zap.String("order_number", ev.OrderNumber),
		zap.String("type", ev.Type),
		zap.String("payment_id", ev.PaymentID),
		zap.String("outcome", res.Outcome))
	return res, nil
}

func (r *Reconciler) record(ctx context.Context, ev *gateway.WebhookEvent, outcome string) (bool, error) {
	return r.events.Record(ctx, &model.PaymentEvent{
		EventKey:    model.EventKeyOf(ev.OrderNumber, ev.Type, ev.PaymentID),
		Provider:    ev.Provider,
		EventType:   ev.Type,
		OrderNumber: ev.OrderNumber,
		PaymentID:   ev.PaymentID,
		Amount:      ev.Amount,
		Outcome:     outcome,
		ReceivedAt:  r.now(),
	})
}

// archive 异步归档原文，失败只记日志
func (r *Reconciler) archive(rec archive.Record) {
	if r.archiver == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if _, err := r.archiver.Archive(ctx, rec); err != nil {
			logger.Log.Warn("Failed to archive webhook",
				zap.String("order_number", rec.OrderNumber),
				zap.String("outcome", rec.Outcome),
				zap.Error(err))
		}
	}()
}

// Wait 等待进行中的归档完成
func (r *Reconciler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func eventKindOf(k gateway.EventKind) (statemachine.EventKind, bool) {
	switch k {
	case gateway.EventPaymentSucceeded:
		return statemachine.PaymentSucceeded, true
	case gateway.EventPaymentFailed:
		return statemachine.PaymentFailed, true
	case gateway.EventPaymentDropped:
		return statemachine.PaymentDropped, true
	}
	return "", false
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
