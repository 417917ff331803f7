package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playersync/broadcast"
	"playersync/handoff"
	"playersync/server"
	"playersync/storage"
)

type hooks struct{ coord *handoff.Coordinator }

func (h hooks) PlayerJoined(ctx context.Context, p *server.Player) error {
	return h.coord.OnConnect(ctx, p)
}

func (h hooks) PlayerLeft(ctx context.Context, p *server.Player) error {
	return h.coord.OnDisconnect(ctx, p)
}

// gameServer 一个完整的进程：房间 + 协调器 + WS 入口
type gameServer struct {
	rooms *server.RoomManager
	coord *handoff.Coordinator
	http  *httptest.Server
}

func startGameServer(t *testing.T, store storage.Store, bus broadcast.Bus) *gameServer {
	t.Helper()
	gs := &gameServer{}
	roster := handoff.RosterFunc(func(id uuid.UUID) (handoff.Player, bool) {
		p, ok := gs.rooms.Online(id)
		if !ok {
			return nil, false
		}
		return p, true
	})
	gs.coord = handoff.NewCoordinator(handoff.NewCache(time.Minute, 15*time.Second), store, bus, roster, nil, handoff.DefaultOptions())
	gs.rooms = server.NewRoomManager(hooks{coord: gs.coord}, 5*time.Second, nil)

	router := broadcast.NewRouter()
	gs.coord.Register(router)
	sub, err := bus.Subscribe(context.Background(), router.Dispatch)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gs.rooms.HandleWS)
	gs.http = httptest.NewServer(mux)

	t.Cleanup(func() {
		gs.http.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gs.rooms.Shutdown(ctx)
		_ = sub.Close()
	})
	return gs
}

func (gs *gameServer) dial(t *testing.T, id uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(gs.http.URL, "http") + "/ws?room=room-1&name=steve&player=" + id.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func (gs *gameServer) readyPlayer(t *testing.T, id uuid.UUID) *server.Player {
	t.Helper()
	var p *server.Player
	require.Eventually(t, func() bool {
		var ok bool
		p, ok = gs.rooms.Online(id)
		return ok && p.Ready()
	}, 3*time.Second, 10*time.Millisecond)
	return p
}

// waitNotice 读取直到收到指定提示
func waitNotice(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if json.Unmarshal(data, &frame) == nil && frame.Type == "notice" && frame.Text == text {
			return
		}
	}
}

func TestPlayerMovesBetweenServers(t *testing.T) {
	store := storage.NewMemoryStore()
	bus := broadcast.NewMemoryBus()
	a := startGameServer(t, store, bus)
	b := startGameServer(t, store, bus)
	id := uuid.New()

	connA := a.dial(t, id)
	a.readyPlayer(t, id)
	for _, msg := range []string{
		`{"type":"give","item":"minecraft:diamond","count":5,"slot":0}`,
		`{"type":"eat","value":18}`,
		`{"type":"xp","value":5}`,
	} {
		require.NoError(t, connA.WriteMessage(websocket.TextMessage, []byte(msg)))
	}
	require.Eventually(t, func() bool {
		p, ok := a.rooms.Online(id)
		return ok && p.Contents().Level == 5 && p.Contents().Hunger == 18
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, connA.Close())

	// A 保存并广播后，B 的缓存里应有该玩家
	require.Eventually(t, func() bool { return b.coord.Cache().Len() == 1 }, 3*time.Second, 10*time.Millisecond)
	ok, err := store.Exists(context.Background(), storage.DataKey(id.String()))
	require.NoError(t, err)
	assert.True(t, ok)

	connB := b.dial(t, id)
	defer connB.Close()
	waitNotice(t, connB, "Your inventory has been applied!")

	p := b.readyPlayer(t, id)
	c := p.Contents()
	assert.Equal(t, 18, c.Hunger)
	assert.Equal(t, 5, c.Level)
	assert.Equal(t, "minecraft:diamond", c.Inventory[0].Item)
	assert.Equal(t, 5, c.Inventory[0].Count)
	assert.Equal(t, int64(1), b.coord.Metrics().Snapshot()["cache_hits"])
	assert.Equal(t, 0, b.coord.Cache().Len())
}

func TestFreshPlayerGetsDefaults(t *testing.T) {
	gs := startGameServer(t, storage.NewMemoryStore(), broadcast.NewMemoryBus())
	id := uuid.New()

	conn := gs.dial(t, id)
	defer conn.Close()
	waitNotice(t, conn, "No saved inventory found.")

	p := gs.readyPlayer(t, id)
	assert.Equal(t, 0, p.Contents().Level)
	assert.Equal(t, int64(1), gs.coord.Metrics().Snapshot()["fresh_joins"])
}

func TestRejectsInvalidPlayerID(t *testing.T) {
	gs := startGameServer(t, storage.NewMemoryStore(), broadcast.NewMemoryBus())
	resp, err := http.Get(gs.http.URL + "/ws?player=steve")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReconnectWhileOldSocketOpen(t *testing.T) {
	gs := startGameServer(t, storage.NewMemoryStore(), broadcast.NewMemoryBus())
	id := uuid.New()

	first := gs.dial(t, id)
	defer first.Close()
	old := gs.readyPlayer(t, id)

	second := gs.dial(t, id)
	defer second.Close()
	require.Eventually(t, func() bool {
		p, ok := gs.rooms.Online(id)
		return ok && p != old && p.Ready()
	}, 3*time.Second, 10*time.Millisecond)
	current, _ := gs.rooms.Online(id)

	// 旧连接被服务端关闭，其读泵退出并送出离开请求
	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	// 至少再经过若干 Tick，离开请求已被处理
	time.Sleep(300 * time.Millisecond)
	p, ok := gs.rooms.Online(id)
	require.True(t, ok, "new session must stay online")
	assert.Same(t, current, p)

	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte(`{"type":"xp","value":7}`)))
	require.Eventually(t, func() bool { return p.Contents().Level == 7 }, 3*time.Second, 10*time.Millisecond)
}
