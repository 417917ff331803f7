package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 键不存在
var ErrNotFound = errors.New("storage: key not found")

// Store 跨进程共享、带过期时间的哈希存储
// 所有实现必须可并发调用；网络实现的错误原样返回给调用方
type Store interface {
	// Exists 键是否存在（未过期）
	Exists(ctx context.Context, key string) (bool, error)
	// WriteFields 写入字段并在同一事务内设置过期时间，
	// 因此保存路径不需要再单独调用 Expire
	WriteFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	// Expire 重设已有键的过期时间；键不存在返回 ErrNotFound
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// ReadAllFields 读取全部字段；键不存在时返回空 map 而不是错误
	ReadAllFields(ctx context.Context, key string) (map[string]string, error)
	// Delete 删除键；键不存在不算错误
	Delete(ctx context.Context, key string) error
}

// DataKey 玩家数据的存储键
func DataKey(playerID string) string { return "data:" + playerID }
