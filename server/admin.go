package server

import (
	"encoding/json"
	"net/http"
)

// Admin 管理与监控接口
type Admin struct {
	rooms *RoomManager
	// stats 附加指标（如交接协议计数），可为 nil
	stats func() map[string]any
}

// NewAdmin 创建管理接口
func NewAdmin(rooms *RoomManager, stats func() map[string]any) *Admin {
	return &Admin{rooms: rooms, stats: stats}
}

// Register 挂载到 mux
func (a *Admin) Register(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", a.HandleMetrics)
	mux.HandleFunc("/admin/players", a.HandlePlayers)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

// HandleMetrics 输出各房间运行指标与同步计数
// GET /metrics
func (a *Admin) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rooms := make(map[string]any)
	for _, room := range a.rooms.Rooms() {
		rooms[room.ID] = room.metrics.Snapshot()
	}
	payload := map[string]any{"rooms": rooms}
	if a.stats != nil {
		payload["sync"] = a.stats()
	}
	writeJSON(w, payload)
}

// playerView 管理接口里的玩家摘要
type playerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Hunger int    `json:"hunger"`
	Level  int    `json:"level"`
	Items  int    `json:"items"`
}

// HandlePlayers 列出本进程在线玩家
// GET /admin/players
func (a *Admin) HandlePlayers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	players := a.rooms.OnlinePlayers()
	out := make([]playerView, 0, len(players))
	for _, p := range players {
		c := p.Contents()
		items := 0
		for _, st := range c.Inventory {
			items += st.Count
		}
		out = append(out, playerView{
			ID:     p.ID.String(),
			Name:   p.Nickname,
			Ready:  p.Ready(),
			Hunger: c.Hunger,
			Level:  c.Level,
			Items:  items,
		})
	}
	writeJSON(w, map[string]any{"players": out})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
