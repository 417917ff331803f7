package broadcast

import (
	"context"
	"sync"
)

// MemoryBus 进程内广播，模拟共享频道：同步投递给所有订阅者
// 用于单进程运行与测试（多个协调器共用一个 MemoryBus 即模拟多台服务器）
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]memorySub
}

type memorySub struct {
	ctx context.Context
	h   Handler
}

// NewMemoryBus 创建空频道
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]memorySub)}
}

// Publish 投递给发布时刻的所有订阅者，处理器错误被忽略（至多一次、无确认）
func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	subs := make([]memorySub, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		_ = s.h(s.ctx, copyMessage(msg))
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, h Handler) (*Subscription, error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = memorySub{ctx: ctx, h: h}
	b.mu.Unlock()

	return newSubscription(func() error {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		return nil
	}), nil
}

// copyMessage 每个订阅者拿到独立的字段 map
func copyMessage(msg Message) Message {
	data := make(map[string]string, len(msg.Data))
	for k, v := range msg.Data {
		data[k] = v
	}
	msg.Data = data
	return msg
}
