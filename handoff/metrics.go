package handoff

import "sync/atomic"

// Metrics 交接协议的运行计数（用于监控与调试）
type Metrics struct {
	CacheHits          int64 // 上线时缓存命中
	DurableHits        int64 // 上线时持久层命中
	FreshJoins         int64 // 两处都未命中
	StaleSkipped       int64 // 持久层读到已应用过的快照
	BroadcastsReceived int64
	BroadcastsApplied  int64 // 玩家在本进程在线，直接应用
	BroadcastsCached   int64 // 玩家不在线，写入缓存
	DecodeFailures     int64
	StoreFailures      int64
	PublishFailures    int64
}

func (m *Metrics) incCacheHit()         { atomic.AddInt64(&m.CacheHits, 1) }
func (m *Metrics) incDurableHit()       { atomic.AddInt64(&m.DurableHits, 1) }
func (m *Metrics) incFreshJoin()        { atomic.AddInt64(&m.FreshJoins, 1) }
func (m *Metrics) incStaleSkipped()     { atomic.AddInt64(&m.StaleSkipped, 1) }
func (m *Metrics) incReceived()         { atomic.AddInt64(&m.BroadcastsReceived, 1) }
func (m *Metrics) incBroadcastApplied() { atomic.AddInt64(&m.BroadcastsApplied, 1) }
func (m *Metrics) incBroadcastCached()  { atomic.AddInt64(&m.BroadcastsCached, 1) }
func (m *Metrics) incDecodeFailure()    { atomic.AddInt64(&m.DecodeFailures, 1) }
func (m *Metrics) incStoreFailure()     { atomic.AddInt64(&m.StoreFailures, 1) }
func (m *Metrics) incPublishFailure()   { atomic.AddInt64(&m.PublishFailures, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"cache_hits":          atomic.LoadInt64(&m.CacheHits),
		"durable_hits":        atomic.LoadInt64(&m.DurableHits),
		"fresh_joins":         atomic.LoadInt64(&m.FreshJoins),
		"stale_skipped":       atomic.LoadInt64(&m.StaleSkipped),
		"broadcasts_received": atomic.LoadInt64(&m.BroadcastsReceived),
		"broadcasts_applied":  atomic.LoadInt64(&m.BroadcastsApplied),
		"broadcasts_cached":   atomic.LoadInt64(&m.BroadcastsCached),
		"decode_failures":     atomic.LoadInt64(&m.DecodeFailures),
		"store_failures":      atomic.LoadInt64(&m.StoreFailures),
		"publish_failures":    atomic.LoadInt64(&m.PublishFailures),
	}
}
