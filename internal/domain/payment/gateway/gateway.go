// Package gateway 支付网关适配层
// 每个网关实现同一个 Gateway 接口，启动时按配置选择一个
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSignature 回调验签失败，不可信任报文内容
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedPayload 验签通过但报文无法解析
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Error 网关调用失败
// Retryable 为 true 表示超时、5xx 等可重试错误，订单保持 pending
type Error struct {
	Provider   string
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	var gErr *Error
	if errors.As(err, &gErr) {
		return gErr.Retryable
	}
	return false
}

// Customer 付款人信息
type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// SessionRequest 创建支付会话的参数
type SessionRequest struct {
	OrderNumber string
	Amount      decimal.Decimal
	Currency    string
	Customer    Customer
	Description string
	ReturnURL   string
	NotifyURL   string
}

// Session 支付会话，前端用 SessionID 拉起收银台
type Session struct {
	Provider        string `json:"provider"`
	SessionID       string `json:"paymentSessionId"`
	ProviderOrderID string `json:"providerOrderId,omitempty"`
}

// EventKind 回调事件类型
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentFailed    EventKind = "payment_failed"
	EventPaymentDropped   EventKind = "payment_dropped"
	EventIgnored          EventKind = "ignored" // 与订单状态无关的通知，例如退款
)

// WebhookEvent 验签后的回调事件
type WebhookEvent struct {
	Provider    string
	Type        string // 网关原始事件类型，用于幂等键
	Kind        EventKind
	OrderNumber string
	PaymentID   string
	Amount      decimal.Decimal
	HasAmount   bool
	Currency    string
	Message     string
}

// Gateway 支付网关
type Gateway interface {
	Name() string
	// CreateSession 以订单号为幂等键创建支付会话
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ParseWebhook 验签并解析回调，验签失败返回 ErrInvalidSignature
	ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookEvent, error)
	// Acknowledge 网关要求的成功应答，nil 表示使用默认 JSON
	Acknowledge() *Ack
}

// Ack 回调成功应答
type Ack struct {
	ContentType string
	Body        []byte
}
