package effect

import (
	"sync/atomic"
	"time"
)

// 推理耗时直方图的桶边界
var latencyBounds = []time.Duration{
	10 * time.Millisecond,
	33 * time.Millisecond,
	100 * time.Millisecond,
}

// Stats 管线和生命周期管理器的观测钩子，作为依赖注入进去
// 全部原子计数，帧循环里无锁
type Stats struct {
	frames     atomic.Uint64 // 处理过的帧数
	inferences atomic.Uint64 // 实际跑过的推理次数
	reused     atomic.Uint64 // 跳帧复用上次推理结果的次数
	fallbacks  atomic.Uint64 // 推理失败退化为透传的次数
	aborts     atomic.Uint64 // 因代际失效中止的 attach/detach 步骤数

	latencySum     atomic.Int64 // 纳秒
	latencyBuckets [4]atomic.Uint64
}

// NewStats 构造
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) frameProcessed() { s.frames.Add(1) }
func (s *Stats) maskReused()     { s.reused.Add(1) }
func (s *Stats) fallback()       { s.fallbacks.Add(1) }

// AbortRecorded 记录一次被代际守卫拦下的异步步骤
func (s *Stats) AbortRecorded() {
	if s == nil {
		return
	}
	s.aborts.Add(1)
}

func (s *Stats) observeInference(d time.Duration) {
	s.inferences.Add(1)
	s.latencySum.Add(int64(d))
	for i, b := range latencyBounds {
		if d < b {
			s.latencyBuckets[i].Add(1)
			return
		}
	}
	s.latencyBuckets[len(latencyBounds)].Add(1)
}

// Snapshot 当前计数的一致性快照（各计数独立读取，允许轻微偏差）
type Snapshot struct {
	Frames          uint64        `json:"frames"`
	Inferences      uint64        `json:"inferences"`
	ReusedMasks     uint64        `json:"reused_masks"`
	Fallbacks       uint64        `json:"fallbacks"`
	GenerationAbort uint64        `json:"generation_aborts"`
	AvgInference    time.Duration `json:"avg_inference_ns"`
	LatencyBuckets  [4]uint64     `json:"latency_buckets"` // <10ms, <33ms, <100ms, >=100ms
}

// Snapshot 导出快照
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Frames:          s.frames.Load(),
		Inferences:      s.inferences.Load(),
		ReusedMasks:     s.reused.Load(),
		Fallbacks:       s.fallbacks.Load(),
		GenerationAbort: s.aborts.Load(),
	}
	for i := range snap.LatencyBuckets {
		snap.LatencyBuckets[i] = s.latencyBuckets[i].Load()
	}
	if snap.Inferences > 0 {
		snap.AvgInference = time.Duration(uint64(s.latencySum.Load()) / snap.Inferences)
	}
	return snap
}
