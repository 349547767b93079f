// Package track 管理效果管线在一路直播视频 track 上的生命周期：
// 挂载、换效果、卸载、销毁。底层采集设备随时可能消失，
// 所有异步步骤都要扛住中途 track 终止和请求被更新的请求顶掉
package track

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/segmentio/ksuid"

	"github.com/chaos-io/bgeffect/effect"
)

// ErrTrackEnded 底层采集源已终止
var ErrTrackEnded = errors.New("track has ended")

// errSuperseded 本次操作已被更新的请求顶掉，对外表现为无害 no-op
var errSuperseded = errors.New("operation superseded by a newer request")

// State 生命周期状态机
type State int

const (
	StateIdle State = iota
	StateAttaching
	StateAttached
	StateDetaching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	}
	return "unknown"
}

// Track 一路硬件采集视频流的句柄
//
// generation 每收到一次 attach/detach 请求就 +1，所有在途异步步骤
// 在自己开始时捕获当时的代际，不可逆动作之前重新核对，不一致就放弃。
// 不变式：任何时刻最多挂一条管线；过期代际绝不改动 track 状态
type Track struct {
	mu         sync.Mutex
	id         string
	live       bool
	state      State
	pipeline   *effect.Pipeline
	attached   effect.Config
	generation uint64

	switches atomic.Uint64 // 成功到达最终切换的次数（观测用）
}

// NewTrack 构造一个活跃的 track
func NewTrack() *Track {
	return &Track{
		id:   ksuid.New().String(),
		live: true,
	}
}

// ID ksuid 标识
func (t *Track) ID() string { return t.id }

// Live 底层设备是否仍在供帧
func (t *Track) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// End 标记采集源终止（拔掉设备、权限被收回、系统层销毁）
func (t *Track) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = false
}

// State 当前生命周期状态
func (t *Track) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// AttachedConfig 当前挂载的效果配置；没挂返回 (zero, false)
func (t *Track) AttachedConfig() (effect.Config, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pipeline == nil {
		return effect.Config{}, false
	}
	return t.attached, true
}

// Switches 成功完成的管线切换次数
func (t *Track) Switches() uint64 { return t.switches.Load() }

// Process 把一帧送进当前管线；没挂管线或已终止时原样透传。
// 管线引用在锁外使用：Pipeline 自己串行化 Process 和 Close，
// 并发的卸载/换效果会等在途的这帧走完
func (t *Track) Process(ctx context.Context, frame *effect.Frame) *effect.Frame {
	t.mu.Lock()
	p := t.pipeline
	live := t.live
	t.mu.Unlock()

	if p == nil || !live {
		return frame
	}
	return p.Process(ctx, frame)
}

// beginRequest 登记一次新的 attach/detach 请求：代际 +1 并返回新代际
// 旧的在途操作此后一律核对失败，"最后的请求赢"
func (t *Track) beginRequest(next State) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	t.state = next
	return t.generation
}

// checkGeneration 挂起点之后的复核：代际还是不是自己的
func (t *Track) checkGeneration(gen uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation {
		return errSuperseded
	}
	return nil
}

// switchPipeline 最终的、不可逆的切换。锁内一次性完成
// 代际核对 + 存活核对 + 旧管线销毁 + 新管线挂载，
// 这是"恰好一次切换到达 track"的保证所在。
// 存活核对失败时同样在锁内清掉旧管线并回 Idle，调用方只负责释放候选管线
func (t *Track) switchPipeline(p *effect.Pipeline, cfg effect.Config, gen uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation {
		return errSuperseded
	}
	if !t.live {
		// 源已终止：就地清场回 Idle，不能把 track 留在切换到一半的状态
		if t.pipeline != nil {
			t.pipeline.Close()
			t.pipeline = nil
		}
		t.state = StateIdle
		return ErrTrackEnded
	}

	if t.pipeline != nil {
		t.pipeline.Close()
	}
	t.pipeline = p
	t.attached = cfg
	if p == nil {
		t.state = StateIdle
	} else {
		t.state = StateAttached
	}
	t.switches.Add(1)
	return nil
}

// invalidate 销毁：代际作废（在途步骤全部 no-op）、卸掉管线、回 Idle
// 同步执行，调用返回后 track 上不再有任何效果
func (t *Track) invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	if t.pipeline != nil {
		t.pipeline.Close()
		t.pipeline = nil
	}
	t.state = StateIdle
}

// resetIfOwner 操作失败收尾：只有代际还属于自己才把状态拨回 Idle，
// 免得踩掉更新的请求刚设好的状态
func (t *Track) resetIfOwner(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen == t.generation && t.state != StateAttached {
		t.state = StateIdle
	}
}
