package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"playersync/broadcast"
	"playersync/config"
	"playersync/handoff"
	"playersync/server"
	"playersync/storage"
	"playersync/telemetry"
)

// playersync 入口：启动 HTTP + WebSocket 游戏服，玩家进出时经 Redis 同步背包
func main() {
	var addr string
	flag.StringVar(&addr, "addr", "", "server listen address, e.g. :8080 (overrides PLAYERSYNC_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Addr = addr
	}

	log, err := server.NewLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Errorw("exit", "err", err)
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "playersync", cfg.ServerID, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, bus, closeBackend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	// rooms 在协调器之后创建，花名册通过闭包延迟解析
	var rooms *server.RoomManager
	roster := handoff.RosterFunc(func(id uuid.UUID) (handoff.Player, bool) {
		p, ok := rooms.Online(id)
		if !ok {
			return nil, false
		}
		return p, true
	})

	cache := handoff.NewCache(cfg.CacheWriteTTL, cfg.CacheAccessTTL)
	coord := handoff.NewCoordinator(cache, store, bus, roster, log.Named("handoff"), handoff.Options{
		DurableTTL:    cfg.DurableTTL,
		OpTimeout:     cfg.OpTimeout,
		WriteRetries:  cfg.WriteRetries,
		RetryInterval: cfg.RetryInterval,
	})

	// 单次回调要容纳读写与全部重试
	hookTimeout := cfg.OpTimeout * time.Duration(cfg.WriteRetries+2)
	rooms = server.NewRoomManager(syncHooks{coord: coord}, hookTimeout, log.Named("rooms"))

	router := broadcast.NewRouter()
	coord.Register(router)
	sub, err := bus.Subscribe(ctx, router.Dispatch)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	go coord.Run(ctx, cfg.CacheAccessTTL)

	// 先预创建一个默认房间，便于快速试跑
	_ = rooms.GetOrCreateRoom("room-1")

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rooms.HandleWS)
	server.NewAdmin(rooms, coord.Metrics().Snapshot).Register(mux)

	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("playersync %s listening on %s (store=%s channel=%s)", cfg.ServerID, cfg.Addr, cfg.Store, cfg.Channel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), hookTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "err", err)
	}
	// 在线玩家走一遍下线保存；超时不阻塞退出
	if err := rooms.Shutdown(shutdownCtx); err != nil {
		log.Warnw("pending player saves abandoned", "err", err)
	}
	log.Infow("cache cleaned", "evicted", coord.Cleanup())
	return nil
}

// openBackend 按配置创建持久层与广播频道；返回的 close 释放连接池
func openBackend(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (storage.Store, broadcast.Bus, func(), error) {
	if cfg.Store == "memory" {
		log.Warn("using in-memory store and bus: state is not shared with other processes")
		return storage.NewMemoryStore(), broadcast.NewMemoryBus(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Warnw("close redis", "err", err)
		}
	}
	bus := broadcast.NewRedisBus(client, cfg.Channel, cfg.ServerID, log.Named("broadcast"))
	return storage.NewRedisStore(client), bus, closeFn, nil
}

// syncHooks 把房间的进出事件接到交接协调器
type syncHooks struct {
	coord *handoff.Coordinator
}

func (h syncHooks) PlayerJoined(ctx context.Context, p *server.Player) error {
	return h.coord.OnConnect(ctx, p)
}

func (h syncHooks) PlayerLeft(ctx context.Context, p *server.Player) error {
	return h.coord.OnDisconnect(ctx, p)
}
