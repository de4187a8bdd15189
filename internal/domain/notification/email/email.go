// Package email 邮件发送渠道
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/metrics"
)

const (
	ProviderBrevo  = "brevo"
	ProviderAliyun = "aliyun"
	ProviderLog    = "log"
)

var ErrInvalidMessage = errors.New("invalid email message")

// Error 发送失败
type Error struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	var eErr *Error
	if errors.As(err, &eErr) {
		return eErr.Retryable
	}
	return false
}

// Message 待发送的邮件
type Message struct {
	To       string
	ToName   string
	From     string
	FromName string
	Subject  string
	HTML     string
	Text     string
}

// Validate 发送前校验
func (m Message) Validate() error {
	if !strings.Contains(m.To, "@") {
		return fmt.Errorf("%w: bad recipient %q", ErrInvalidMessage, m.To)
	}
	if m.From == "" {
		return fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if m.Subject == "" || (m.HTML == "" && m.Text == "") {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	return nil
}

// Sender 邮件渠道
type Sender interface {
	Name() string
	// Send 返回渠道的 message id
	Send(ctx context.Context, msg Message) (string, error)
}

// New 根据配置选择渠道
func New(cfg config.EmailConfig, m *metrics.MetricsCollector) (Sender, error) {
	switch cfg.Provider {
	case ProviderBrevo:
		return NewBrevoSender(cfg.Brevo, cfg.Timeout, m)
	case ProviderAliyun:
		return NewAliyunSender(cfg.Aliyun, cfg.Timeout, m)
	case ProviderLog, "":
		return NewLogSender(), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
