package handoff

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cache 进程内、按时间过期的快照缓存
//
// 过期规则：写入后 writeTTL 到期；一旦被读过，再加上“最后一次读取后 accessTTL”
// 的限制，两者取先到者。只写不读的条目可以活满 writeTTL，被看过却没被消费的
// 条目会更快衰减。重启即丢失，此时持久层是兜底。
//
// 写入不启动 accessTTL：广播写入缓存后玩家通常要过几秒到几十秒才连上目标进程，
// 若写入也计作访问，未读条目会在 accessTTL 就过期，writeTTL 形同虚设。
type Cache struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]*cacheEntry
	writeTTL  time.Duration
	accessTTL time.Duration
	now       func() time.Time
}

type cacheEntry struct {
	bundle   Bundle
	written  time.Time
	accessed time.Time // 零值表示从未被读取
}

func (e *cacheEntry) deadline(writeTTL, accessTTL time.Duration) time.Time {
	d := e.written.Add(writeTTL)
	if !e.accessed.IsZero() {
		if a := e.accessed.Add(accessTTL); a.Before(d) {
			d = a
		}
	}
	return d
}

// CacheOption 缓存构造选项
type CacheOption func(*Cache)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache 参考值：writeTTL=60s，accessTTL=15s
func NewCache(writeTTL, accessTTL time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		entries:   make(map[uuid.UUID]*cacheEntry),
		writeTTL:  writeTTL,
		accessTTL: accessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put 写入（覆盖旧条目，计时重新开始）
func (c *Cache) Put(id uuid.UUID, b Bundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = &cacheEntry{bundle: b, written: c.now()}
}

// GetIfPresent 命中时刷新读取时间；过期条目顺带删除
func (c *Cache) GetIfPresent(id uuid.UUID) (Bundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return Bundle{}, false
	}
	now := c.now()
	if !now.Before(e.deadline(c.writeTTL, c.accessTTL)) {
		delete(c.entries, id)
		return Bundle{}, false
	}
	e.accessed = now
	return e.bundle, true
}

// Invalidate 删除条目；不存在时无操作
func (c *Cache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Len 当前条目数（含尚未清理的过期条目）
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup 清理所有已过期条目，返回清理数量
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for id, e := range c.entries {
		if !now.Before(e.deadline(c.writeTTL, c.accessTTL)) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}
