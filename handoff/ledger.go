package handoff

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// consumedLedger 记录本进程最近已应用过的快照
// 缓存命中时不访问持久层，那份持久记录仍在；再次上线（中间没有新的下线）时，
// 持久层读到的若是同一份快照，就只退役不再应用
type consumedLedger struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	marks map[uuid.UUID]consumedMark
}

type consumedMark struct {
	bundle   Bundle
	deadline time.Time
}

func newConsumedLedger(ttl time.Duration, now func() time.Time) *consumedLedger {
	return &consumedLedger{ttl: ttl, now: now, marks: make(map[uuid.UUID]consumedMark)}
}

func (l *consumedLedger) mark(b Bundle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks[b.PlayerID] = consumedMark{bundle: b, deadline: l.now().Add(l.ttl)}
}

// seen 同一玩家、同一内容且未过期
func (l *consumedLedger) seen(b Bundle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.marks[b.PlayerID]
	if !ok {
		return false
	}
	if !l.now().Before(m.deadline) {
		delete(l.marks, b.PlayerID)
		return false
	}
	return m.bundle == b
}

// forget 玩家在本进程下线后会产生新的权威快照
func (l *consumedLedger) forget(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.marks, id)
}

func (l *consumedLedger) prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for id, m := range l.marks {
		if !now.Before(m.deadline) {
			delete(l.marks, id)
			n++
		}
	}
	return n
}
