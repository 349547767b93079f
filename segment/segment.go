// Package segment 提供 effect.Segmenter 的具体实现：
// 远端推理服务客户端，以及无模型环境下的退化实现
package segment

import (
	"context"
	"errors"
	"math"

	"github.com/chaos-io/bgeffect/effect"
)

// ErrUnavailable 分割引擎不可用（模型没加载、服务连不上）
var ErrUnavailable = errors.New("segmentation engine unavailable")

// Hint 推理执行偏好，透传给引擎
type Hint string

const (
	HintAuto Hint = "auto"
	HintGPU  Hint = "gpu"
	HintCPU  Hint = "cpu"
)

// Static 恒定全前景的分割器，测试和效果对比用
type Static struct{}

func (Static) Warmup(ctx context.Context) error { return nil }

func (Static) Segment(ctx context.Context, frame *effect.Frame) (*effect.SegmentResult, error) {
	cats := make([]uint8, frame.Width*frame.Height)
	for i := range cats {
		cats[i] = 1
	}
	return &effect.SegmentResult{Width: frame.Width, Height: frame.Height, Categories: cats}, nil
}

// Portrait 人像先验：居中椭圆，置信度从中心向外平滑衰减
// 没有推理服务时的兜底实现，对固定机位的上半身画面够用
type Portrait struct{}

func (Portrait) Warmup(ctx context.Context) error { return nil }

func (Portrait) Segment(ctx context.Context, frame *effect.Frame) (*effect.SegmentResult, error) {
	w, h := frame.Width, frame.Height
	conf := make([]float32, w*h)

	// 椭圆中心偏下（人像通常占画面下半部），半轴取画面的 0.32/0.55
	cx := float64(w) / 2
	cy := float64(h) * 0.58
	rx := float64(w) * 0.32
	ry := float64(h) * 0.55

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (float64(x) - cx) / rx
			dy := (float64(y) - cy) / ry
			d := math.Sqrt(dx*dx + dy*dy)
			// d<0.8 满置信，d>1.1 归零，中间线性过渡
			switch {
			case d <= 0.8:
				conf[y*w+x] = 1
			case d < 1.1:
				conf[y*w+x] = float32((1.1 - d) / 0.3)
			}
		}
	}
	return &effect.SegmentResult{
		Width:      w,
		Height:     h,
		Confidence: [][]float32{conf},
	}, nil
}
