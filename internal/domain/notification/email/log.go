package email

import (
	"context"

	"rakhi_store/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogSender 开发环境使用，只写日志
type LogSender struct{}

func NewLogSender() *LogSender { return &LogSender{} }

func (LogSender) Name() string { return ProviderLog }

func (LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	id := "log-" + uuid.NewString()
	logger.Log.Info("Email (log provider)",
		zap.String("message_id", id),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return id, nil
}
