package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownType 没有为该消息类型注册处理器
var ErrUnknownType = errors.New("broadcast: unknown message type")

// Message 频道上的一条消息：类型标签 + 字符串字段
type Message struct {
	Type   string            `json:"type"`
	Origin string            `json:"origin,omitempty"`
	Data   map[string]string `json:"data"`
}

// Handler 处理某一类型的入站消息
type Handler func(ctx context.Context, msg Message) error

// Publisher 发布消息（至多一次，无确认）
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber 订阅频道，每条消息（包括自己发出的）交给 h
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) (*Subscription, error)
}

// Bus 同时具备发布与订阅能力
type Bus interface {
	Publisher
	Subscriber
}

// Subscription 一个活动订阅；Close 释放底层连接，可重复调用
type Subscription struct {
	once  sync.Once
	close func() error
	err   error
}

func newSubscription(close func() error) *Subscription {
	return &Subscription{close: close}
}

// Close 取消订阅并等待接收协程退出
func (s *Subscription) Close() error {
	s.once.Do(func() { s.err = s.close() })
	return s.err
}

// Router 消息类型 → 处理器 的显式映射，启动时构建
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRouter 创建空路由
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Handle 注册处理器；重复注册同一类型视为编程错误
func (r *Router) Handle(msgType string, h Handler) {
	if msgType == "" || h == nil {
		panic("broadcast: empty message type or nil handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[msgType]; dup {
		panic(fmt.Sprintf("broadcast: duplicate handler for %q", msgType))
	}
	r.handlers[msgType] = h
}

// Dispatch 按类型分发；Router 本身满足 Handler 签名
func (r *Router) Dispatch(ctx context.Context, msg Message) error {
	r.mu.RLock()
	h, ok := r.handlers[msg.Type]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return h(ctx, msg)
}
