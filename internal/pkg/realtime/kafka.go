package realtime

import (
	"context"
	"encoding/json"
	"time"

	"rakhi_store/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Keyed 消息分区键，同一订单的消息落在同一分区保证顺序
type Keyed interface {
	EventKey() string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStream 把订单状态变化写入 Kafka topic，供下游系统消费
type KafkaStream struct {
	writer messageWriter
}

// NewKafkaWriter 异步写入，发送结果在回调中记录
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Log.Warn("Failed to write order events to kafka",
					zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
}

func NewKafkaStream(w messageWriter) *KafkaStream {
	return &KafkaStream{writer: w}
}

// Publish 频道参数只用于进程内推送，这里忽略
func (s *KafkaStream) Publish(ctx context.Context, v interface{}, _ ...string) {
	if s == nil || s.writer == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Log.Error("Failed to encode order event", zap.Error(err))
		return
	}
	msg := kafka.Message{Value: payload, Time: time.Now()}
	if k, ok := v.(Keyed); ok {
		msg.Key = []byte(k.EventKey())
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		logger.Log.Warn("Failed to publish order event", zap.Error(err))
	}
}

// Close 刷新未发送的消息
func (s *KafkaStream) Close(ctx context.Context) error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

// Publisher 推送目标
type Publisher interface {
	Publish(ctx context.Context, v interface{}, channels ...string)
}

// Fanout 依次推送到多个目标
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, v interface{}, channels ...string) {
	for _, p := range f {
		p.Publish(ctx, v, channels...)
	}
}
