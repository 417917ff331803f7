package server

import "time"

const (
	// TicksPerSecond 世界推进频率（20 TPS）
	TicksPerSecond = 20
)

var tickInterval = time.Duration(1000/TicksPerSecond) * time.Millisecond // 50ms

// StartTicker 启动房间的 Tick 循环（单线程推进世界）
func (r *Room) StartTicker() {
	if r.tickerStarted {
		return
	}
	r.tickerStarted = true
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
			}
			// 核心循环：处理输入 → 广播结果
			start := time.Now()
			r.tickSeq++
			r.ProcessInputs()
			r.Broadcast()
			r.metrics.AddTick(time.Since(start).Nanoseconds())
		}
	}()
}

// StopTicker 停止 Tick 循环并等待当前 Tick 结束
// 之后房间状态只能由调用方在同一协程中推进
func (r *Room) StopTicker() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	if r.done != nil {
		<-r.done
	}
}
