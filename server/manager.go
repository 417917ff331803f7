package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lifecycle 玩家进出本进程时的回调
// 在后台协程中调用，可以做阻塞的网络操作，不会拖慢 Tick
type Lifecycle interface {
	PlayerJoined(ctx context.Context, p *Player) error
	PlayerLeft(ctx context.Context, p *Player) error
}

// RoomManager 管理多个房间的生命周期，并维护本进程的在线玩家索引
type RoomManager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	online map[uuid.UUID]*Player

	lifecycle   Lifecycle
	hookTimeout time.Duration
	log         *zap.SugaredLogger
	hooks       sync.WaitGroup

	// autoTick 为 false 时房间不自动启动 Tick，测试中手动推进
	autoTick bool
}

// NewRoomManager hookTimeout 限制单次进出回调的总时长
func NewRoomManager(lc Lifecycle, hookTimeout time.Duration, log *zap.SugaredLogger) *RoomManager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RoomManager{
		rooms:       make(map[string]*Room),
		online:      make(map[uuid.UUID]*Player),
		lifecycle:   lc,
		hookTimeout: hookTimeout,
		log:         log,
		autoTick:    true,
	}
}

// GetOrCreateRoom 获取或创建房间，并确保开始 Tick
func (m *RoomManager) GetOrCreateRoom(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		r = NewRoom(id, m)
		m.rooms[id] = r
		if m.autoTick {
			r.StartTicker()
		}
	}
	return r
}

// Rooms 按 ID 排序的房间列表
func (m *RoomManager) Rooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Online 按身份查找本进程在线玩家（任意协程可调用）
func (m *RoomManager) Online(id uuid.UUID) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.online[id]
	return p, ok
}

// OnlinePlayers 在线玩家快照
func (m *RoomManager) OnlinePlayers() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Player, 0, len(m.online))
	for _, p := range m.online {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// playerJoined 先登记在线再触发回调：回调期间到达的广播可以直接应用到该玩家
func (m *RoomManager) playerJoined(p *Player) {
	m.mu.Lock()
	m.online[p.ID] = p
	m.mu.Unlock()

	m.hooks.Add(1)
	go func() {
		defer m.hooks.Done()
		defer p.markJoined()
		if m.lifecycle == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.hookTimeout)
		defer cancel()
		if err := m.lifecycle.PlayerJoined(ctx, p); err != nil {
			m.log.Warnw("join hook failed", "player", p.Nickname, "uuid", p.ID, "err", err)
		}
	}()
}

// playerLeft 先移出在线索引再触发回调：自己发出的广播不会写回正在离开的玩家
func (m *RoomManager) playerLeft(p *Player) {
	m.mu.Lock()
	if m.online[p.ID] == p {
		delete(m.online, p.ID)
	}
	m.mu.Unlock()

	m.hooks.Add(1)
	go func() {
		defer m.hooks.Done()
		// 上线恢复尚未结束就离开时，等它结束再保存
		<-p.joined
		if m.lifecycle == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.hookTimeout)
		defer cancel()
		if err := m.lifecycle.PlayerLeft(ctx, p); err != nil {
			m.log.Errorw("leave hook failed", "player", p.Nickname, "uuid", p.ID, "err", err)
		}
	}()
}

// Shutdown 停止所有房间，让在线玩家走下线流程，并等待回调结束（受 ctx 限制）
func (m *RoomManager) Shutdown(ctx context.Context) error {
	for _, r := range m.Rooms() {
		r.StopTicker()
		r.ProcessInputs()
		r.evictAll()
	}

	done := make(chan struct{})
	go func() {
		m.hooks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait 等待所有已触发的回调结束
func (m *RoomManager) Wait() {
	m.hooks.Wait()
}
