package effect

import (
	"context"
	"math"
)

// Mask 单通道置信度掩码，0 = 背景，255 = 前景主体
// 尺寸必须和当前帧一致，不一致时上层做状态重置而不是崩溃
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewMask 构造全零掩码
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// Clone 深拷贝
func (m *Mask) Clone() *Mask {
	pix := make([]uint8, len(m.Pix))
	copy(pix, m.Pix)
	return &Mask{Width: m.Width, Height: m.Height, Pix: pix}
}

// AreaRatio 前景像素（>= threshold）占整帧的比例
func (m *Mask) AreaRatio(threshold uint8) float64 {
	if len(m.Pix) == 0 {
		return 0
	}
	count := 0
	for _, v := range m.Pix {
		if v >= threshold {
			count++
		}
	}
	return float64(count) / float64(len(m.Pix))
}

// SegmentResult 分割引擎的原始输出
// 两种形态二选一：
//   - Categories：逐像素类别 id，0 = 背景，>0 = 某个前景类别
//   - Confidence：逐像素置信度 [0,1]，每个前景类别一个通道（质量更好，优先用）
type SegmentResult struct {
	Width      int
	Height     int
	Categories []uint8
	Confidence [][]float32
}

// Segmenter 外部人像分割引擎的契约
// 实现方在构造时接收执行偏好（GPU/CPU），Warmup 做一次性模型加载
type Segmenter interface {
	Warmup(ctx context.Context) error
	Segment(ctx context.Context, frame *Frame) (*SegmentResult, error)
}

// maskGamma 置信度伽马校正指数，锐化边缘附近的置信度衰减
const maskGamma = 1.0 / 1.2

// BuildMask 把分割结果归一化成单通道掩码，纯函数
//
// 类别路径：category > 0 即前景，映射为 0/255
// 置信度路径：各前景通道取最大值，再做 v^(1/1.2) 伽马校正；
// multiClass = false 时只看第一个通道
// 低于 threshold 的置信度直接归零，避免半信半疑的像素抖动
func BuildMask(res *SegmentResult, threshold float64, multiClass bool) *Mask {
	m := NewMask(res.Width, res.Height)

	if len(res.Confidence) > 0 {
		channels := res.Confidence
		if !multiClass {
			channels = channels[:1]
		}
		for i := range m.Pix {
			v := float64(channels[0][i])
			for _, ch := range channels[1:] {
				if float64(ch[i]) > v {
					v = float64(ch[i])
				}
			}
			if v < threshold {
				continue
			}
			m.Pix[i] = uint8(math.Pow(v, maskGamma)*255 + 0.5)
		}
		return m
	}

	for i, c := range res.Categories {
		if c > 0 {
			m.Pix[i] = 255
		}
	}
	return m
}
