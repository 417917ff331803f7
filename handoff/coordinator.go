package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"playersync/broadcast"
	"playersync/storage"
)

// 给玩家的提示文本
const (
	msgApplied       = "Your inventory has been applied!"
	msgLoadError     = "Error loading your inventory! Starting with defaults."
	msgCacheMiss     = "No inventory in cache, restoring from storage..."
	msgNoSavedState  = "No saved inventory found."
	msgRestoreFailed = "Could not restore your inventory right now. Starting with defaults."
)

// Options 协调器参数
type Options struct {
	DurableTTL    time.Duration // 持久记录过期时间，参考 120s
	OpTimeout     time.Duration // 单次存储/广播调用的超时
	WriteRetries  uint          // 持久写入最多尝试次数
	RetryInterval time.Duration // 首次重试间隔
}

// DefaultOptions 参考值
func DefaultOptions() Options {
	return Options{
		DurableTTL:    120 * time.Second,
		OpTimeout:     3 * time.Second,
		WriteRetries:  3,
		RetryInterval: 100 * time.Millisecond,
	}
}

// Coordinator 在玩家上线/下线时编排缓存、持久层与广播
//
// 下线：快照 → 广播 → 持久写入（两步互不阻塞）
// 收到广播：玩家在本进程在线则直接应用，否则写入本地缓存
// 上线：缓存 → 持久层，先命中者生效，应用成功后退役该来源
type Coordinator struct {
	cache   *Cache
	store   storage.Store
	bus     broadcast.Publisher
	roster  Roster
	log     *zap.SugaredLogger
	metrics *Metrics
	opts    Options
	tracer  trace.Tracer
	applied *consumedLedger
}

// NewCoordinator 所有依赖显式传入；log 可为 nil
func NewCoordinator(cache *Cache, store storage.Store, bus broadcast.Publisher, roster Roster, log *zap.SugaredLogger, opts Options) *Coordinator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	def := DefaultOptions()
	if opts.DurableTTL <= 0 {
		opts.DurableTTL = def.DurableTTL
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = def.OpTimeout
	}
	if opts.WriteRetries == 0 {
		opts.WriteRetries = 1
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = def.RetryInterval
	}
	return &Coordinator{
		cache:   cache,
		store:   store,
		bus:     bus,
		roster:  roster,
		log:     log,
		metrics: &Metrics{},
		opts:    opts,
		tracer:  otel.Tracer("playersync/handoff"),
		applied: newConsumedLedger(opts.DurableTTL, cache.now),
	}
}

// Register 把本协调器的处理器挂到广播路由上
func (c *Coordinator) Register(r *broadcast.Router) {
	r.Handle(MessageType, c.HandleUpdate)
}

// Metrics 运行计数
func (c *Coordinator) Metrics() *Metrics { return c.metrics }

// Cache 本进程的快照缓存
func (c *Coordinator) Cache() *Cache { return c.cache }

// Cleanup 清理过期的缓存条目与消费记录
func (c *Coordinator) Cleanup() int {
	return c.cache.Cleanup() + c.applied.prune()
}

// Run 周期性清理，直到 ctx 结束
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// OnDisconnect 玩家离开本进程；调用时玩家状态必须仍可读
// 广播失败不影响持久写入，反之亦然；两者的错误合并返回
func (c *Coordinator) OnDisconnect(ctx context.Context, p Player) (err error) {
	ctx, span := c.tracer.Start(ctx, "handoff.disconnect",
		trace.WithAttributes(attribute.String("player", p.UUID().String())))
	defer func() { endSpan(span, err) }()

	b, err := Capture(p)
	if err != nil {
		return fmt.Errorf("capture %s: %w", p.UUID(), err)
	}
	c.applied.forget(b.PlayerID)

	if perr := c.publish(ctx, b); perr != nil {
		c.metrics.incPublishFailure()
		c.log.Warnw("broadcast inventory failed", "player", b.PlayerID, "err", perr)
		err = multierr.Append(err, perr)
	}
	if serr := c.persist(ctx, b); serr != nil {
		c.metrics.incStoreFailure()
		c.log.Errorw("persist inventory failed", "player", b.PlayerID, "err", serr)
		err = multierr.Append(err, serr)
	}
	if err == nil {
		c.log.Infow("inventory saved", "player", p.Name(), "uuid", b.PlayerID)
	}
	return err
}

func (c *Coordinator) publish(ctx context.Context, b Bundle) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()
	return c.bus.Publish(ctx, broadcast.Message{Type: MessageType, Data: b.Fields()})
}

// persist 写入持久层，失败按指数退避重试
func (c *Coordinator) persist(ctx context.Context, b Bundle) error {
	key := storage.DataKey(b.PlayerID.String())
	fields := b.Fields()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryInterval
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
		defer cancel()
		return struct{}{}, c.store.WriteFields(opCtx, key, fields, c.opts.DurableTTL)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.opts.WriteRetries))
	return err
}

// HandleUpdate 处理频道上的 INVENTORY_UPDATE（包括本进程自己发出的）
func (c *Coordinator) HandleUpdate(ctx context.Context, msg broadcast.Message) (err error) {
	c.metrics.incReceived()
	b, err := ParseBundle(msg.Data)
	if err != nil {
		return fmt.Errorf("inventory update from %s: %w", msg.Origin, err)
	}

	_, span := c.tracer.Start(ctx, "handoff.update",
		trace.WithAttributes(attribute.String("player", b.PlayerID.String()), attribute.String("origin", msg.Origin)))
	defer func() { endSpan(span, err) }()

	c.log.Infow("received inventory", "player", b.PlayerID, "origin", msg.Origin)

	p, online := c.roster.Lookup(b.PlayerID)
	if !online {
		c.cache.Put(b.PlayerID, b)
		c.metrics.incBroadcastCached()
		return nil
	}
	c.metrics.incBroadcastApplied()
	if err := c.Apply(p, b); err != nil {
		return err
	}
	c.cache.Invalidate(b.PlayerID)
	return nil
}

// OnConnect 玩家进入本进程：先查缓存，再查持久层；都没有则视为新玩家
func (c *Coordinator) OnConnect(ctx context.Context, p Player) (err error) {
	id := p.UUID()
	ctx, span := c.tracer.Start(ctx, "handoff.connect",
		trace.WithAttributes(attribute.String("player", id.String())))
	defer func() { endSpan(span, err) }()

	if b, ok := c.cache.GetIfPresent(id); ok {
		c.metrics.incCacheHit()
		span.SetAttributes(attribute.String("source", "cache"))
		if err := c.Apply(p, b); err != nil {
			return err
		}
		c.cache.Invalidate(id)
		return nil
	}
	p.Notify(msgCacheMiss)

	key := storage.DataKey(id.String())
	fields, found, err := c.readDurable(ctx, key)
	if err != nil {
		c.metrics.incStoreFailure()
		p.Notify(msgRestoreFailed)
		return fmt.Errorf("restore %s: %w", id, err)
	}
	if !found {
		c.metrics.incFreshJoin()
		span.SetAttributes(attribute.String("source", "none"))
		p.Notify(msgNoSavedState)
		return nil
	}
	c.metrics.incDurableHit()
	span.SetAttributes(attribute.String("source", "durable"))

	b, err := ParseBundle(fields)
	if err == nil && b.PlayerID != id {
		err = fmt.Errorf("%w: record for %s holds %s", ErrMalformedBundle, id, b.PlayerID)
	}
	if err != nil {
		c.metrics.incDecodeFailure()
		c.log.Errorw("stored inventory unreadable", "player", id, "err", err)
		p.Notify(msgLoadError)
		return err
	}
	if c.applied.seen(b) {
		// 同一快照已经从缓存或广播应用过
		c.metrics.incStaleSkipped()
		c.retire(ctx, key, id)
		p.Notify(msgNoSavedState)
		return nil
	}
	if err := c.Apply(p, b); err != nil {
		return err
	}
	c.retire(ctx, key, id)
	return nil
}

// retire 删除已消费的持久记录；失败不影响本次恢复，记录会随 TTL 过期
func (c *Coordinator) retire(ctx context.Context, key string, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()
	if err := c.store.Delete(ctx, key); err != nil {
		c.metrics.incStoreFailure()
		c.log.Warnw("retire stored inventory failed", "player", id, "err", err)
	}
}

func (c *Coordinator) readDurable(ctx context.Context, key string) (map[string]string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	ok, err := c.store.Exists(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	fields, err := c.store.ReadAllFields(ctx, key)
	if err != nil {
		return nil, false, err
	}
	// EXISTS 与 HGETALL 之间可能恰好过期
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

// Apply 把快照写到在线玩家身上：三个容器全部解码成功才整体替换，否则一个都不动
func (c *Coordinator) Apply(p Player, b Bundle) error {
	contents, err := b.Decode()
	if err != nil {
		c.metrics.incDecodeFailure()
		c.log.Errorw("apply inventory failed", "player", p.Name(), "uuid", b.PlayerID, "err", err)
		p.Notify(msgLoadError)
		return err
	}
	p.SetContents(contents)
	c.applied.mark(b)
	p.Notify(msgApplied)
	c.log.Infow("inventory applied", "player", p.Name(), "uuid", b.PlayerID)
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
