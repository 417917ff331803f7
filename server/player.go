package server

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"playersync/inventory"
)

// Direction 移动方向（服务端权威解释客户端“意图”）
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

// PlayerState 为广播给客户端的轻量状态
type PlayerState struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Player 房间内的玩家实体（服务端权威状态）
// 位置只在 Tick 协程中读写；背包等可同步状态由 mu 保护，可被网络回调读写
type Player struct {
	ID       uuid.UUID
	Nickname string
	X        float64
	Y        float64
	Dir      Direction // 当前意图方向，在下一次 Tick 生效

	Conn *ClientConn // 网络连接的发送端（写协程），测试中可为 nil

	mu    sync.Mutex
	state inventory.Contents

	// joined 上线钩子结束后关闭；下线钩子必须等它，避免把默认状态写回存储
	joined   chan struct{}
	joinOnce sync.Once
}

// NewPlayer 新玩家带默认状态
func NewPlayer(id uuid.UUID, name string, conn *ClientConn) *Player {
	return &Player{
		ID:       id,
		Nickname: name,
		X:        50,
		Y:        50,
		Conn:     conn,
		state:    inventory.NewContents(),
		joined:   make(chan struct{}),
	}
}

func (p *Player) UUID() uuid.UUID { return p.ID }
func (p *Player) Name() string    { return p.Nickname }

// Contents 当前状态的副本
func (p *Player) Contents() inventory.Contents {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// SetContents 整体替换
func (p *Player) SetContents(c inventory.Contents) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = c.Clone()
}

// Notify 推送一条文字提示
func (p *Player) Notify(text string) {
	if p.Conn == nil {
		return
	}
	b, _ := json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "notice", Text: text})
	p.Conn.Enqueue(b)
}

// Ready 上线恢复流程是否已结束
func (p *Player) Ready() bool {
	select {
	case <-p.joined:
		return true
	default:
		return false
	}
}

func (p *Player) markJoined() { p.joinOnce.Do(func() { close(p.joined) }) }

// mutate 在锁内修改状态
func (p *Player) mutate(fn func(*inventory.Contents)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
}
