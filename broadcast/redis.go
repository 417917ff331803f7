package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus 基于 Redis Pub/Sub 的频道，所有进程订阅同一个频道名
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	origin  string
	log     *zap.SugaredLogger
}

// NewRedisBus origin 为本进程标识，写入每条发出的消息
func NewRedisBus(client redis.UniversalClient, channel, origin string, log *zap.SugaredLogger) *RedisBus {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RedisBus{client: client, channel: channel, origin: origin, log: log}
}

// Publish 发出即忘；没有订阅者也不算错误
func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	if msg.Origin == "" {
		msg.Origin = b.origin
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Type, err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s on %s: %w", msg.Type, b.channel, err)
	}
	return nil
}

// Subscribe 等待订阅确认后返回；消息在独立协程中按到达顺序交给 h
func (b *RedisBus) Subscribe(ctx context.Context, h Handler) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for m := range ps.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.log.Warnw("drop undecodable message", "channel", m.Channel, "err", err)
				continue
			}
			if err := h(ctx, msg); err != nil {
				b.log.Warnw("message handler failed", "type", msg.Type, "origin", msg.Origin, "err", err)
			}
		}
	}()

	return newSubscription(func() error {
		err := ps.Close()
		wg.Wait()
		return err
	}), nil
}
