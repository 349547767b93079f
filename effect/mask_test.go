package effect

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMask_CategoryPath(t *testing.T) {
	res := &SegmentResult{
		Width:      3,
		Height:     2,
		Categories: []uint8{0, 1, 2, 0, 7, 0},
	}
	m := BuildMask(res, 0.7, true)

	assert.Equal(t, []uint8{0, 255, 255, 0, 255, 0}, m.Pix)
}

func TestBuildMask_ConfidencePath(t *testing.T) {
	tests := []struct {
		name       string
		confidence float32
		threshold  float64
		want       uint8
	}{
		{"满置信", 1.0, 0.7, 255},
		{"低于阈值归零", 0.5, 0.7, 0},
		{"零置信", 0, 0.7, 0},
		{"阈值为零保留弱置信", 0.5, 0, uint8(math.Pow(0.5, 1.0/1.2)*255 + 0.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &SegmentResult{
				Width:      1,
				Height:     1,
				Confidence: [][]float32{{tt.confidence}},
			}
			m := BuildMask(res, tt.threshold, true)
			assert.Equal(t, tt.want, m.Pix[0])
		})
	}
}

// 伽马 1/1.2 是锐化边缘衰减的：校正后的值不低于原值
func TestBuildMask_GammaLiftsMidtones(t *testing.T) {
	res := &SegmentResult{
		Width:      1,
		Height:     1,
		Confidence: [][]float32{{0.7}},
	}
	m := BuildMask(res, 0, true)
	assert.Greater(t, m.Pix[0], uint8(178)) // 0.7*255 取整
}

func TestBuildMask_MultiClassTakesMax(t *testing.T) {
	res := &SegmentResult{
		Width:  2,
		Height: 1,
		Confidence: [][]float32{
			{0.9, 0.1},
			{0.1, 0.9},
		},
	}

	multi := BuildMask(res, 0, true)
	single := BuildMask(res, 0, false)

	// 多类别：逐像素取各通道最大
	assert.Equal(t, multi.Pix[0], multi.Pix[1])
	// 单类别：只看第一个通道
	assert.Greater(t, single.Pix[0], single.Pix[1])
}

func TestMask_AreaRatio(t *testing.T) {
	m := NewMask(4, 1)
	m.Pix = []uint8{255, 200, 100, 0}

	assert.InDelta(t, 0.5, m.AreaRatio(128), 1e-9)
	assert.InDelta(t, 0.75, m.AreaRatio(50), 1e-9)
}

func TestMask_Clone(t *testing.T) {
	m := NewMask(2, 2)
	m.Pix[0] = 42

	c := m.Clone()
	require.Equal(t, m.Pix, c.Pix)

	c.Pix[0] = 7
	assert.Equal(t, uint8(42), m.Pix[0])
}
