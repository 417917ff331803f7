package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内 Store 实现，用于单进程调试与测试
// 使用 sync.RWMutex 保证并发安全；过期在读取时惰性判断
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memoryRecord
	now  func() time.Time
}

type memoryRecord struct {
	fields   map[string]string
	deadline time.Time
}

// NewMemoryStore 创建空存储
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock 使用自定义时钟，便于测试过期
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{data: make(map[string]memoryRecord), now: now}
}

// lookup 调用方需持有锁
func (m *MemoryStore) lookup(key string) (memoryRecord, bool) {
	rec, ok := m.data[key]
	if !ok {
		return memoryRecord{}, false
	}
	if !rec.deadline.IsZero() && !m.now().Before(rec.deadline) {
		return memoryRecord{}, false
	}
	return rec, true
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lookup(key)
	return ok, nil
}

// WriteFields 与 Redis HSET 语义一致：合并字段而不是整体替换
func (m *MemoryStore) WriteFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.lookup(key)
	if !ok {
		rec = memoryRecord{fields: make(map[string]string, len(fields))}
	}
	for k, v := range fields {
		rec.fields[k] = v
	}
	rec.deadline = m.now().Add(ttl)
	m.data[key] = rec
	return nil
}

func (m *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.lookup(key)
	if !ok {
		return ErrNotFound
	}
	rec.deadline = m.now().Add(ttl)
	m.data[key] = rec
	return nil
}

// ReadAllFields 返回副本，防止外部修改
func (m *MemoryStore) ReadAllFields(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string)
	rec, ok := m.lookup(key)
	if !ok {
		return out, nil
	}
	for k, v := range rec.fields {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// TTL 剩余存活时间；不存在返回 0, false
func (m *MemoryStore) TTL(key string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.lookup(key)
	if !ok {
		return 0, false
	}
	return rec.deadline.Sub(m.now()), true
}
