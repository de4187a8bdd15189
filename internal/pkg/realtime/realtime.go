// Package realtime 只读的状态推送，发布方不关心是否有人订阅
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"rakhi_store/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("subscription closed")

// Subscription 一个频道的订阅
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Broker 发布订阅后端
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Hub 以 JSON 发布消息
type Hub struct {
	broker Broker
}

func NewHub(b Broker) *Hub {
	return &Hub{broker: b}
}

// Publish 推送到多个频道，失败只记录日志
func (h *Hub) Publish(ctx context.Context, v interface{}, channels ...string) {
	if h == nil || h.broker == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Log.Error("Failed to encode realtime message", zap.Error(err))
		return
	}
	for _, ch := range channels {
		if ch == "" {
			continue
		}
		if err := h.broker.Publish(ctx, ch, payload); err != nil {
			logger.Log.Warn("Failed to publish realtime message", zap.String("channel", ch), zap.Error(err))
		}
	}
}

// Subscribe 订阅频道
func (h *Hub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if h == nil || h.broker == nil {
		return nil, ErrClosed
	}
	return h.broker.Subscribe(ctx, channel)
}

// RedisBroker 基于 Redis Pub/Sub，多实例部署时推送可以跨进程
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channel)
	// 等待订阅确认，保证之后发布的消息不会丢
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{ps: ps, out: make(chan []byte, 16), done: make(chan struct{})}
	go sub.forward()
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// MemoryBroker 单进程内的推送，未配置 Redis 时使用
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[channel] {
		// 订阅方消费慢时丢弃，推送不影响业务
		select {
		case sub.out <- payload:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{broker: b, channel: channel, out: make(chan []byte, 16)}
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	broker  *MemoryBroker
	channel string
	out     chan []byte
	once    sync.Once
}

func (s *memorySubscription) Messages() <-chan []byte { return s.out }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs[s.channel], s)
		if len(s.broker.subs[s.channel]) == 0 {
			delete(s.broker.subs, s.channel)
		}
		s.broker.mu.Unlock()
		close(s.out)
	})
	return nil
}
