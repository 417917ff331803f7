package handoff

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"playersync/broadcast"
	"playersync/inventory"
	"playersync/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakePlayer 引擎玩家的测试替身
type fakePlayer struct {
	mu       sync.Mutex
	id       uuid.UUID
	name     string
	contents inventory.Contents
	notices  []string
	sets     int
}

func newFakePlayer(name string) *fakePlayer {
	return &fakePlayer{id: uuid.New(), name: name, contents: inventory.NewContents()}
}

func (p *fakePlayer) UUID() uuid.UUID { return p.id }
func (p *fakePlayer) Name() string    { return p.name }

func (p *fakePlayer) Contents() inventory.Contents {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contents.Clone()
}

func (p *fakePlayer) SetContents(c inventory.Contents) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contents = c.Clone()
	p.sets++
}

func (p *fakePlayer) Notify(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, text)
}

func (p *fakePlayer) setCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets
}

func (p *fakePlayer) lastNotice() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.notices) == 0 {
		return ""
	}
	return p.notices[len(p.notices)-1]
}

// roster 本进程在线玩家表
type roster struct {
	mu      sync.Mutex
	players map[uuid.UUID]*fakePlayer
}

func newRoster() *roster { return &roster{players: make(map[uuid.UUID]*fakePlayer)} }

func (r *roster) add(p *fakePlayer) {
	r.mu.Lock()
	r.players[p.id] = p
	r.mu.Unlock()
}

func (r *roster) remove(p *fakePlayer) {
	r.mu.Lock()
	delete(r.players, p.id)
	r.mu.Unlock()
}

func (r *roster) Lookup(id uuid.UUID) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return nil, false
	}
	return p, true
}

// countingStore 统计每种操作的调用次数，可注入错误
type countingStore struct {
	storage.Store

	mu       sync.Mutex
	calls    map[string]int
	failWith map[string]error
}

func newCountingStore(inner storage.Store) *countingStore {
	return &countingStore{Store: inner, calls: make(map[string]int), failWith: make(map[string]error)}
}

func (s *countingStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.failWith[op]
}

func (s *countingStore) fail(op string, err error) {
	s.mu.Lock()
	s.failWith[op] = err
	s.mu.Unlock()
}

func (s *countingStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *countingStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *countingStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.record("exists"); err != nil {
		return false, err
	}
	return s.Store.Exists(ctx, key)
}

func (s *countingStore) WriteFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if err := s.record("write"); err != nil {
		return err
	}
	return s.Store.WriteFields(ctx, key, fields, ttl)
}

func (s *countingStore) ReadAllFields(ctx context.Context, key string) (map[string]string, error) {
	if err := s.record("read"); err != nil {
		return nil, err
	}
	return s.Store.ReadAllFields(ctx, key)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	if err := s.record("delete"); err != nil {
		return err
	}
	return s.Store.Delete(ctx, key)
}

// failingBus 发布总是失败
type failingBus struct{ err error }

func (b failingBus) Publish(context.Context, broadcast.Message) error { return b.err }

var errNetwork = errors.New("connection refused")

// node 模拟一台服务器进程
type node struct {
	coord  *Coordinator
	roster *roster
	store  *countingStore
	sub    *broadcast.Subscription
}

func fastOptions() Options {
	return Options{DurableTTL: 120 * time.Second, OpTimeout: time.Second, WriteRetries: 3, RetryInterval: time.Millisecond}
}

func newNode(bus broadcast.Bus, store storage.Store, clock *fakeClock) *node {
	n := &node{roster: newRoster(), store: newCountingStore(store)}
	cache := NewCache(60*time.Second, 15*time.Second, WithClock(clock.Now))
	n.coord = NewCoordinator(cache, n.store, bus, n.roster, nil, fastOptions())

	router := broadcast.NewRouter()
	n.coord.Register(router)
	sub, err := bus.Subscribe(context.Background(), router.Dispatch)
	if err != nil {
		panic(err)
	}
	n.sub = sub
	return n
}

// join 先登记在线再触发上线流程，与服务端顺序一致
func (n *node) join(p *fakePlayer) error {
	n.roster.add(p)
	return n.coord.OnConnect(context.Background(), p)
}

// leave 先移出在线表再保存，避免自己收到的广播又写回该玩家
func (n *node) leave(p *fakePlayer) error {
	n.roster.remove(p)
	return n.coord.OnDisconnect(context.Background(), p)
}
