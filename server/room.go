package server

import (
	"encoding/json"

	"github.com/google/uuid"

	"playersync/inventory"
)

// Room 房间世界：权威状态维护在内存，单线程 Tick 推进
// 进出房间与输入都经通道送到 Tick 协程处理
type Room struct {
	ID string

	Players   map[uuid.UUID]*Player
	joinChan  chan *Player
	inputChan chan Input
	leaveChan chan *Player

	// 配置：世界边界与每 Tick 移动步长
	width  float64
	height float64
	step   float64

	mgr     *RoomManager
	metrics *RoomMetrics
	tickSeq int64

	tickerStarted bool
	stop          chan struct{}
	done          chan struct{}
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(id string, mgr *RoomManager) *Room {
	return &Room{
		ID:        id,
		Players:   make(map[uuid.UUID]*Player),
		joinChan:  make(chan *Player, 64),
		inputChan: make(chan Input, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		leaveChan: make(chan *Player, 64),
		width:     100,
		height:    100,
		step:      1, // 每个 Tick 移动 1 单位
		mgr:       mgr,
		metrics:   &RoomMetrics{},
		stop:      make(chan struct{}),
	}
}

// RequestJoin 请求在 Tick 线程中加入玩家
func (r *Room) RequestJoin(p *Player) {
	r.joinChan <- p
}

// RequestLeave 请求在 Tick 线程中移除该会话，避免并发改动房间状态
// 请求绑定到具体会话：同一身份重连后，旧会话迟到的离开请求不会移除新会话
func (r *Room) RequestLeave(p *Player) {
	// 为保证移除一定生效，这里采用阻塞式写入（通道有容量，避免死锁）
	r.leaveChan <- p
}

// OnInput 入站输入（不立即改变状态），仅记录意图，等下一次 Tick 处理
func (r *Room) OnInput(in Input) {
	// 不阻塞：输入拥塞时丢弃（由通道容量控制），保证 Tick 准时
	select {
	case r.inputChan <- in:
	default:
		r.metrics.IncChanFullDiscarded()
	}
}

// joinPlayer 将玩家加入房间（Tick 线程）
func (r *Room) joinPlayer(p *Player) {
	if old, ok := r.Players[p.ID]; ok {
		// 同一身份重复连接：先让旧会话走完整的下线流程
		r.leavePlayer(old)
	}
	r.Players[p.ID] = p
	r.metrics.IncJoins()
	r.mgr.playerJoined(p)
}

// leavePlayer 将该会话移出房间（Tick 线程）；已被替换的会话直接忽略
func (r *Room) leavePlayer(p *Player) {
	if cur, ok := r.Players[p.ID]; !ok || cur != p {
		return
	}
	if p.Conn != nil {
		p.Conn.Close()
	}
	delete(r.Players, p.ID)
	r.metrics.IncLeaves()
	r.mgr.playerLeft(p)
}

// ProcessInputs 处理当前帧的所有进出与输入意图（非阻塞 drain）
func (r *Room) ProcessInputs() {
	for {
		select {
		case p := <-r.joinChan:
			r.joinPlayer(p)
		case p := <-r.leaveChan:
			r.leavePlayer(p)
		case in := <-r.inputChan:
			if p, ok := r.Players[in.PlayerID]; ok {
				r.applyInput(p, in)
			}
		default:
			return
		}
	}
}

// Broadcast 将当前世界状态广播给所有玩家（文本 JSON）
func (r *Room) Broadcast() {
	snapshot := make([]PlayerState, 0, len(r.Players))
	for _, p := range r.Players {
		snapshot = append(snapshot, PlayerState{ID: p.ID.String(), X: p.X, Y: p.Y})
	}
	payload := struct {
		Type    string        `json:"type"`
		Tick    int64         `json:"tick"`
		Players []PlayerState `json:"players"`
	}{Type: "state", Tick: r.tickSeq, Players: snapshot}

	b, _ := json.Marshal(payload)
	for _, p := range r.Players {
		if p.Conn != nil {
			p.Conn.Enqueue(b)
		}
	}
}

// evictAll 关服时让所有玩家走下线流程
func (r *Room) evictAll() {
	for _, p := range r.Players {
		r.leavePlayer(p)
	}
}

func (r *Room) applyInput(p *Player, in Input) {
	if in.Kind == InputMove {
		r.applyMove(p, in.Command)
		r.metrics.IncAccepted()
		return
	}
	// 恢复完成前不接受状态修改，否则会被随后到达的快照覆盖
	if !p.Ready() {
		return
	}
	switch in.Kind {
	case InputGive:
		p.mutate(func(c *inventory.Contents) {
			if in.Slot < len(c.Inventory) {
				c.Inventory[in.Slot] = inventory.Stack{Item: in.Item, Count: in.Count}
			}
		})
	case InputClear:
		p.mutate(func(c *inventory.Contents) {
			c.Inventory = inventory.NewContainer(inventory.InventorySlots)
		})
	case InputEat:
		p.mutate(func(c *inventory.Contents) {
			c.Hunger = clampInt(in.Value, 0, inventory.MaxHunger)
		})
	case InputXP:
		p.mutate(func(c *inventory.Contents) {
			c.Level = max(in.Value, 0)
		})
	}
	r.metrics.IncAccepted()
}

// applyMove 执行一次移动并进行越界裁剪
func (r *Room) applyMove(p *Player, dir Direction) {
	switch dir {
	case DirUp:
		p.Y -= r.step
	case DirDown:
		p.Y += r.step
	case DirLeft:
		p.X -= r.step
	case DirRight:
		p.X += r.step
	default:
		// no-op
	}
	p.X = clampFloat(p.X, 0, r.width)
	p.Y = clampFloat(p.Y, 0, r.height)
}

func clampFloat(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
