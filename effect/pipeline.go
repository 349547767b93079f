package effect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pipeline 单帧处理管线：分割 → 建掩码 → 时域平滑 → 边缘精修 → 合成
//
// 一条管线独占自己的掩码/历史缓冲，同一路 track 上换效果时销毁旧实例、
// 新建实例，绝不复用状态（重建比原地改便宜得多：代际守卫只需要关心
// "哪个实例挂上去了"，不用关心实例内部有没有改到一半）
type Pipeline struct {
	cfg        Config
	seg        Segmenter
	stabilizer *TemporalStabilizer
	refiner    *EdgeRefiner
	comp       *Compositor
	stats      *Stats
	logger     *slog.Logger

	// mu 串行化 Process 和 Close/Reset：换效果时旧管线可能还有一帧在途，
	// Close 要等这帧走完才动帧间缓冲
	mu         sync.Mutex
	frameCount uint64
	lastResult *SegmentResult // 跳帧优化复用的上一次推理结果
	width      int
	height     int
	closed     bool
}

// PipelineOption 可选依赖
type PipelineOption func(*Pipeline)

// WithStats 注入观测钩子
func WithStats(s *Stats) PipelineOption {
	return func(p *Pipeline) { p.stats = s }
}

// WithLogger 注入日志器
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline 校验配置并构造管线
func NewPipeline(cfg Config, seg Segmenter, opts ...PipelineOption) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid effect config: %w", err)
	}
	if cfg.Kind != KindNone && seg == nil {
		return nil, fmt.Errorf("effect %s requires a segmenter", cfg.Kind)
	}

	p := &Pipeline{
		cfg:        cfg,
		seg:        seg,
		stabilizer: NewTemporalStabilizer(cfg.TemporalAlpha),
		refiner:    NewEdgeRefiner(cfg.SpatialSigma, cfg.IntensitySigma, cfg.RefineScale),
		comp:       NewCompositor(cfg),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config 当前生效的配置（值拷贝）
func (p *Pipeline) Config() Config { return p.cfg }

// Warmup 一次性初始化（模型加载等），attach 流程里的挂起点之一
func (p *Pipeline) Warmup(ctx context.Context) error {
	if p.cfg.Kind == KindNone || p.seg == nil {
		return nil
	}
	if err := p.seg.Warmup(ctx); err != nil {
		return fmt.Errorf("segmenter warmup: %w", err)
	}
	return nil
}

// Process 处理一帧，永远返回一帧可用输出
// 任何失败都退化为原帧透传——宁可没效果，不能黑屏或冻帧
func (p *Pipeline) Process(ctx context.Context, frame *Frame) *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.cfg.Kind == KindNone {
		return frame
	}
	if p.stats != nil {
		p.stats.frameProcessed()
	}

	// 尺寸变了：历史掩码全部作废
	if frame.Width != p.width || frame.Height != p.height {
		p.resetLocked()
		p.width = frame.Width
		p.height = frame.Height
	}

	res, err := p.segmentResult(ctx, frame)
	if err != nil {
		if p.stats != nil {
			p.stats.fallback()
		}
		p.logger.Warn("segmentation failed, passing frame through",
			"err", err, "frame", p.frameCount)
		p.frameCount++
		return frame
	}
	p.frameCount++

	mask := BuildMask(res, p.cfg.ConfidenceThreshold, p.cfg.MultiClass)

	// 前景占比太小：当作没检测到主体，这一帧透传
	// 比把整个人脸糊掉要好
	if mask.AreaRatio(128) < p.cfg.MinMaskAreaRatio {
		p.logger.Debug("mask area below threshold, passing frame through", "frame", p.frameCount)
		return frame
	}

	// 跳帧只省推理，平滑/精修/合成每帧都做
	mask = p.stabilizer.Apply(mask)
	mask = p.refiner.Apply(mask)
	return p.comp.Compose(frame, mask)
}

// segmentResult 按 InferenceInterval 跑推理或复用上次结果
func (p *Pipeline) segmentResult(ctx context.Context, frame *Frame) (*SegmentResult, error) {
	reuse := p.lastResult != nil &&
		p.frameCount%uint64(p.cfg.InferenceInterval) != 0 &&
		p.lastResult.Width == frame.Width && p.lastResult.Height == frame.Height

	if reuse {
		if p.stats != nil {
			p.stats.maskReused()
		}
		return p.lastResult, nil
	}

	start := time.Now()
	res, err := p.seg.Segment(ctx, frame)
	if err != nil {
		return nil, err
	}
	if p.stats != nil {
		p.stats.observeInference(time.Since(start))
	}
	if res.Width != frame.Width || res.Height != frame.Height {
		// 引擎缓存了旧尺寸的结果，重置后这一帧放弃
		p.resetLocked()
		return nil, fmt.Errorf("segment result %dx%d does not match frame %dx%d",
			res.Width, res.Height, frame.Width, frame.Height)
	}
	p.lastResult = res
	return res, nil
}

// Reset 丢弃全部帧间状态
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Pipeline) resetLocked() {
	p.stabilizer.Reset()
	p.lastResult = nil
}

// Close 释放帧间缓冲，幂等；关掉之后 Process 退化为透传。
// 阻塞到在途的那帧处理完才返回
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.resetLocked()
}
