package effect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constMask(w, h int, v uint8) *Mask {
	m := NewMask(w, h)
	for i := range m.Pix {
		m.Pix[i] = v
	}
	return m
}

func TestTemporalStabilizer_FirstFramePassesThrough(t *testing.T) {
	s := NewTemporalStabilizer(0.35)
	cur := constMask(4, 4, 180)

	out := s.Apply(cur)
	assert.Equal(t, cur.Pix, out.Pix)
}

func TestTemporalStabilizer_DimensionChangeResets(t *testing.T) {
	s := NewTemporalStabilizer(0.35)
	s.Apply(constMask(4, 4, 0))

	// 尺寸变化：当前帧原样返回，不和旧历史混合
	cur := constMask(8, 8, 200)
	out := s.Apply(cur)
	assert.Equal(t, cur.Pix, out.Pix)
}

// 恒定输入下输出单调收敛到该常数，且从不过冲
func TestTemporalStabilizer_MonotoneConvergence(t *testing.T) {
	s := NewTemporalStabilizer(0.35)
	s.Apply(constMask(4, 4, 0)) // 历史置零

	const target = uint8(200)
	prev := uint8(0)
	for i := 0; i < 60; i++ {
		out := s.Apply(constMask(4, 4, target))
		v := out.Pix[0]
		assert.GreaterOrEqual(t, v, prev, "第 %d 帧出现回退", i)
		assert.LessOrEqual(t, v, target, "第 %d 帧过冲", i)
		prev = v
	}
	assert.InDelta(t, float64(target), float64(prev), 1)
}

// 单像素阶跃：自适应 alpha 比固定低 alpha 收敛更快，且不超过阶跃幅度
func TestTemporalStabilizer_AdaptiveBeatsFixedLowAlpha(t *testing.T) {
	const w, h = 8, 8
	const target = 255.0

	s := NewTemporalStabilizer(0.35)
	s.Apply(constMask(w, h, 0))

	step := NewMask(w, h)
	step.Pix[0] = 255 // 只有一个像素跳变

	adaptive := -1
	for i := 0; i < 200; i++ {
		out := s.Apply(step)
		if target-float64(out.Pix[0]) <= 1 {
			adaptive = i
			break
		}
	}
	require.GreaterOrEqual(t, adaptive, 0, "自适应路径没收敛")

	// 固定低 alpha 基线
	fixed := -1
	v := 0.0
	for i := 0; i < 1000; i++ {
		v = 255*0.1 + v*0.9
		if target-v <= 1 {
			fixed = i
			break
		}
	}
	require.GreaterOrEqual(t, fixed, 0)

	assert.Less(t, adaptive, fixed)
}

// 整帧剧烈运动时 alpha 减半，像素级下限 0.2 兜底
func TestTemporalStabilizer_FastMotionHalvesAlpha(t *testing.T) {
	fast := NewTemporalStabilizer(0.35)
	slow := NewTemporalStabilizer(0.35)

	fast.Apply(constMask(4, 4, 0))
	slow.Apply(constMask(4, 4, 100))

	// fast：全帧 0→255，运动量 255；slow：100→120，运动量 20
	outFast := fast.Apply(constMask(4, 4, 255))
	outSlow := slow.Apply(constMask(4, 4, 120))

	// fast：alpha 0.175，像素差超阈值取下限 0.2；slow：按基础 alpha 0.35 走
	progressFast := float64(outFast.Pix[0]) / 255
	progressSlow := (float64(outSlow.Pix[0]) - 100) / 20
	assert.Less(t, progressFast, progressSlow)
}
