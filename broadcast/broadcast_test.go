package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	t.Run("dispatches by type", func(t *testing.T) {
		r := NewRouter()
		var got []string
		r.Handle("A", func(_ context.Context, msg Message) error {
			got = append(got, "A:"+msg.Data["k"])
			return nil
		})
		r.Handle("B", func(context.Context, Message) error {
			got = append(got, "B")
			return nil
		})

		require.NoError(t, r.Dispatch(context.Background(), Message{Type: "A", Data: map[string]string{"k": "v"}}))
		require.NoError(t, r.Dispatch(context.Background(), Message{Type: "B"}))
		assert.Equal(t, []string{"A:v", "B"}, got)
	})

	t.Run("unknown type", func(t *testing.T) {
		err := NewRouter().Dispatch(context.Background(), Message{Type: "NOPE"})
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("handler error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		r := NewRouter()
		r.Handle("A", func(context.Context, Message) error { return boom })
		assert.ErrorIs(t, r.Dispatch(context.Background(), Message{Type: "A"}), boom)
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		r := NewRouter()
		r.Handle("A", func(context.Context, Message) error { return nil })
		assert.Panics(t, func() {
			r.Handle("A", func(context.Context, Message) error { return nil })
		})
	})
}

// collector 线程安全地收集消息
type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(_ context.Context, msg Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return nil
}

func (c *collector) snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func TestMemoryBus(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	var a, b collector
	subA, err := bus.Subscribe(ctx, a.handle)
	require.NoError(t, err)
	subB, err := bus.Subscribe(ctx, b.handle)
	require.NoError(t, err)

	msg := Message{Type: "INVENTORY_UPDATE", Data: map[string]string{"player": "p"}}
	require.NoError(t, bus.Publish(ctx, msg))
	assert.Len(t, a.snapshot(), 1)
	assert.Len(t, b.snapshot(), 1)

	// 每个订阅者拿到独立副本
	a.snapshot()[0].Data["player"] = "changed"
	assert.Equal(t, "p", b.snapshot()[0].Data["player"])

	require.NoError(t, subA.Close())
	require.NoError(t, subA.Close())
	require.NoError(t, bus.Publish(ctx, msg))
	assert.Len(t, a.snapshot(), 1)
	assert.Len(t, b.snapshot(), 2)
	require.NoError(t, subB.Close())
}

func TestRedisBus(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}
	ctx := context.Background()

	serverA := NewRedisBus(newClient(), "playersync", "server-a", nil)
	serverB := NewRedisBus(newClient(), "playersync", "server-b", nil)

	var gotA, gotB collector
	subA, err := serverA.Subscribe(ctx, gotA.handle)
	require.NoError(t, err)
	defer subA.Close()
	subB, err := serverB.Subscribe(ctx, gotB.handle)
	require.NoError(t, err)
	defer subB.Close()

	require.NoError(t, serverA.Publish(ctx, Message{Type: "INVENTORY_UPDATE", Data: map[string]string{"player": "p", "xp": "5"}}))

	// 发送方自己也会收到
	require.Eventually(t, func() bool {
		return len(gotA.snapshot()) == 1 && len(gotB.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	m := gotB.snapshot()[0]
	assert.Equal(t, "INVENTORY_UPDATE", m.Type)
	assert.Equal(t, "server-a", m.Origin)
	assert.Equal(t, "5", m.Data["xp"])
}

func TestRedisBusSkipsGarbage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	defer client.Close()
	ctx := context.Background()

	bus := NewRedisBus(client, "ch", "me", nil)
	var got collector
	sub, err := bus.Subscribe(ctx, got.handle)
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish("ch", "not json")
	require.NoError(t, bus.Publish(ctx, Message{Type: "T"}))

	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "T", got.snapshot()[0].Type)
}

func TestRedisBusSubscribeFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2, MaxRetries: -1})
	defer client.Close()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewRedisBus(client, "ch", "me", nil).Subscribe(ctx, func(context.Context, Message) error { return nil })
	assert.Error(t, err)
}
