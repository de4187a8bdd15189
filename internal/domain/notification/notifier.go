// Package notification 订单邮件通知
// Notifier 同步渲染并发送，Dispatcher 通过工作池异步发送并处理重试
package notification

import (
	"context"
	"errors"
	"fmt"

	"rakhi_store/internal/domain/notification/email"
	"rakhi_store/internal/domain/notification/templates"
	"rakhi_store/internal/pkg/config"
	"rakhi_store/internal/pkg/worker"
	"rakhi_store/pkg/logger"
	"rakhi_store/pkg/metrics"

	"go.uber.org/zap"
)

// Request 一封订单邮件
type Request struct {
	Kind   templates.Kind
	To     string
	ToName string
	Data   templates.Data
}

// Result 发送结果，失败不影响订单状态
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Err       error  `json:"-"`
}

// Notifier 渲染模板并通过渠道发送
type Notifier struct {
	sender   email.Sender
	from     string
	fromName string
	metrics  *metrics.MetricsCollector
}

func NewNotifier(sender email.Sender, cfg config.EmailConfig, m *metrics.MetricsCollector) *Notifier {
	return &Notifier{sender: sender, from: cfg.From, fromName: cfg.FromName, metrics: m}
}

// Send 发送一封邮件
func (n *Notifier) Send(ctx context.Context, req Request) Result {
	msg, err := templates.Render(req.Kind, req.Data)
	if err != nil {
		n.metrics.RecordNotification(string(req.Kind), "render_error")
		return Result{Err: worker.Permanent(err)}
	}

	id, err := n.sender.Send(ctx, email.Message{
		To:       req.To,
		ToName:   req.ToName,
		From:     n.from,
		FromName: n.fromName,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
	})
	if err != nil {
		n.metrics.RecordNotification(string(req.Kind), "failed")
		logger.Log.Warn("Failed to send email",
			zap.String("order_number", req.Data.OrderNumber),
			zap.String("template", string(req.Kind)),
			zap.String("provider", n.sender.Name()),
			zap.Error(err))
		if errors.Is(err, email.ErrInvalidMessage) || !email.IsRetryable(err) {
			err = worker.Permanent(err)
		}
		return Result{Err: err}
	}

	n.metrics.RecordNotification(string(req.Kind), "sent")
	logger.Log.Info("Email sent",
		zap.String("order_number", req.Data.OrderNumber),
		zap.String("template", string(req.Kind)),
		zap.String("message_id", id))
	return Result{Success: true, MessageID: id}
}

// FailureFunc 邮件最终发送失败时调用，用于记录人工重发
type FailureFunc func(req Request, err error)

// Dispatcher 异步发送
type Dispatcher struct {
	notifier *Notifier
	pool     *worker.WorkerPool
}

func NewDispatcher(n *Notifier, cfg config.EmailConfig, onFailure FailureFunc) *Dispatcher {
	pool := worker.NewWorkerPool(worker.Options{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		MaxRetry:    cfg.MaxRetry,
		RetryDelay:  cfg.RetryDelay,
		TaskTimeout: cfg.Timeout,
		OnDeadLetter: func(task worker.Task, err error) {
			req, ok := task.Payload.(Request)
			if !ok || onFailure == nil {
				return
			}
			onFailure(req, err)
		},
	})
	return &Dispatcher{notifier: n, pool: pool}
}

func (d *Dispatcher) Start() { d.pool.Start() }

func (d *Dispatcher) Stop(ctx context.Context) error { return d.pool.Stop(ctx) }

// Enqueue 放入发送队列，队列满时直接走失败回调
func (d *Dispatcher) Enqueue(req Request) error {
	return d.pool.AddTask(worker.Task{
		Name:    fmt.Sprintf("email:%s", req.Kind),
		Key:     req.Data.OrderNumber,
		Payload: req,
		Run: func(ctx context.Context) error {
			return d.notifier.Send(ctx, req).Err
		},
	})
}
