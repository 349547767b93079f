package track

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/nfnt/resize"

	"github.com/chaos-io/bgeffect/effect"
)

// ErrManagerClosed 管理器已销毁，不再接受请求
var ErrManagerClosed = errors.New("effect manager is closed")

// Manager 效果生命周期管理器
//
// 挂载一条效果管线是多步异步过程（背景素材准备、模型预热），
// 中间任何一步设备都可能没了。防御分三层：
//  1. 入口查存活
//  2. 每个挂起点之后复核代际和存活，不一致就放弃并释放已分配资源
//  3. 最终切换自己报"源已终止"算正常结局：告警日志、释放、回 Idle，
//     绝不把错误抛给调用方，也绝不留下配置到一半的 track
type Manager struct {
	mu     sync.Mutex
	seg    effect.Segmenter
	stats  *effect.Stats
	logger *slog.Logger
	closed bool
}

// ManagerOption 可选依赖
type ManagerOption func(*Manager)

// WithManagerStats 注入观测钩子（同一个 Stats 也会注进新建的管线）
func WithManagerStats(s *effect.Stats) ManagerOption {
	return func(m *Manager) { m.stats = s }
}

// WithManagerLogger 注入日志器
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager 构造，seg 是所有管线共用的分割引擎
func NewManager(seg effect.Segmenter, opts ...ManagerOption) *Manager {
	m := &Manager{
		seg:    seg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply 在 track 上应用一个效果配置（挂载或换效果）
//
// 调用期间到来的新 Apply/Detach 会顶掉本次请求，被顶掉的请求
// 无害返回 nil。返回错误仅限配置非法、引擎预热失败这类真实故障，
// 此时 track 保持原状
func (m *Manager) Apply(ctx context.Context, t *Track, cfg effect.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.mu.Unlock()

	if cfg.Kind == effect.KindNone {
		return m.detach(t, StateDetaching)
	}

	gen := t.beginRequest(StateAttaching)
	log := m.logger.With("track", t.ID(), "generation", gen, "effect", cfg.Kind.String())

	// 入口存活检查：设备已经没了就没什么可挂的
	if !t.Live() {
		t.resetIfOwner(gen)
		log.Warn("track already ended, attach skipped")
		return nil
	}

	// 挂起点 1：背景素材准备（解码/预缩放可能很慢）
	cfg, err := m.prepareBackground(ctx, cfg)
	if err != nil {
		t.resetIfOwner(gen)
		return fmt.Errorf("prepare background: %w", err)
	}
	if err := m.checkpoint(t, gen, log, "background prepared"); err != nil {
		return m.settle(err, nil, log)
	}

	// 构建管线（纯分配，不挂起）
	pipeline, err := effect.NewPipeline(cfg, m.seg,
		effect.WithStats(m.stats), effect.WithLogger(m.logger))
	if err != nil {
		t.resetIfOwner(gen)
		return err
	}

	// 挂起点 2：模型预热
	if err := pipeline.Warmup(ctx); err != nil {
		pipeline.Close()
		t.resetIfOwner(gen)
		return err
	}
	if err := m.checkpoint(t, gen, log, "pipeline warmed up"); err != nil {
		return m.settle(err, pipeline, log)
	}

	// 最终切换前最后一次存活复核；切换本身在 track 锁内完成
	if !t.Live() {
		pipeline.Close()
		t.resetIfOwner(gen)
		log.Warn("track ended during attach, releasing pipeline")
		return nil
	}
	if err := t.switchPipeline(pipeline, cfg, gen); err != nil {
		return m.settle(err, pipeline, log)
	}

	log.Info("effect attached")
	return nil
}

// Detach 卸载效果，回到原样透传；存活纪律与 Apply 一致
func (m *Manager) Detach(ctx context.Context, t *Track) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.mu.Unlock()
	return m.detach(t, StateDetaching)
}

func (m *Manager) detach(t *Track, s State) error {
	gen := t.beginRequest(s)
	log := m.logger.With("track", t.ID(), "generation", gen)

	if !t.Live() {
		// 源没了就顺手把管线清掉，行为和被顶掉一样无害
		t.invalidate()
		log.Warn("track already ended, forcing idle")
		return nil
	}
	if err := t.switchPipeline(nil, effect.Config{}, gen); err != nil {
		return m.settle(err, nil, log)
	}
	log.Info("effect detached")
	return nil
}

// Release 销毁 track 上的一切效果资源（持有方被销毁时调用）
// 同步完成：代际作废、在途操作全部失效、管线关闭
func (m *Manager) Release(t *Track) {
	t.invalidate()
	m.logger.Info("track released", "track", t.ID())
}

// Close 关掉管理器，后续请求一律拒绝
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// checkpoint 挂起点之后的复核：代际被顶掉在这里折返
func (m *Manager) checkpoint(t *Track, gen uint64, log *slog.Logger, step string) error {
	if err := t.checkGeneration(gen); err != nil {
		m.stats.AbortRecorded()
		log.Debug("superseded by newer request", "after", step)
		return err
	}
	return nil
}

// settle 把操作结局归类：被顶掉 / 源终止是预期结局（返回 nil），
// 其余错误原样上抛
func (m *Manager) settle(err error, pipeline *effect.Pipeline, log *slog.Logger) error {
	if pipeline != nil {
		pipeline.Close()
	}
	switch {
	case errors.Is(err, errSuperseded):
		return nil
	case errors.Is(err, ErrTrackEnded):
		// 存活检查关不死的最后一类竞态：切换自己报源已终止。
		// switchPipeline 已经把 track 清回 Idle，这里只剩释放候选管线
		log.Warn("track ended at final switch, treated as benign")
		return nil
	}
	return err
}

// prepareBackground 替换背景的预处理：超过 1080p 的素材先压下来，
// 省得每次换帧尺寸都在全尺寸图上做 Lanczos
func (m *Manager) prepareBackground(ctx context.Context, cfg effect.Config) (effect.Config, error) {
	if cfg.Kind != effect.KindReplace {
		return cfg, nil
	}
	if err := ctx.Err(); err != nil {
		return cfg, err
	}

	const maxSide = 1920
	b := cfg.Background.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return cfg, nil
	}
	var scaled image.Image
	if b.Dx() >= b.Dy() {
		scaled = resize.Resize(maxSide, 0, cfg.Background, resize.Lanczos3)
	} else {
		scaled = resize.Resize(0, maxSide, cfg.Background, resize.Lanczos3)
	}
	cfg.Background = scaled
	return cfg, nil
}
