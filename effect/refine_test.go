package effect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 垂直阶跃边缘：左半 0，右半 255，边界在 x = edge
func stepMask(w, h, edge int) *Mask {
	m := NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := edge; x < w; x++ {
			m.Pix[y*w+x] = 255
		}
	}
	return m
}

func TestEdgeRefiner_OutputStaysInRange(t *testing.T) {
	r := NewEdgeRefiner(3, 25, 1)
	m := stepMask(32, 16, 16)

	out := r.Apply(m)
	require.Len(t, out.Pix, 32*16)
	// uint8 本身封顶，这里验证的是没有离谱的整体偏移
	assert.Equal(t, uint8(0), out.Pix[0])
	assert.Equal(t, uint8(255), out.Pix[31])
}

// 锐利边缘的 50% 过零点偏移必须小于 spatialSigma
func TestEdgeRefiner_EdgeCrossingStaysPut(t *testing.T) {
	const w, h, edge, sigma = 64, 16, 32, 3
	r := NewEdgeRefiner(sigma, 25, 1)

	out := r.Apply(stepMask(w, h, edge))

	y := h / 2
	crossing := -1
	for x := 0; x < w; x++ {
		if out.Pix[y*w+x] >= 128 {
			crossing = x
			break
		}
	}
	require.GreaterOrEqual(t, crossing, 0, "边缘被滤没了")

	shift := crossing - edge
	if shift < 0 {
		shift = -shift
	}
	assert.Less(t, shift, sigma)
}

// 平坦区域不动：常数掩码滤波后还是常数
func TestEdgeRefiner_FlatRegionUnchanged(t *testing.T) {
	r := NewEdgeRefiner(3, 25, 1)
	m := constMask(16, 16, 200)

	out := r.Apply(m)
	for i, v := range out.Pix {
		require.Equal(t, uint8(200), v, "像素 %d 被改了", i)
	}
}

// 孤立噪点被邻域平均掉，但 255/0 的强边缘两侧互不渗透
func TestEdgeRefiner_SmoothsNoiseKeepsEdges(t *testing.T) {
	const w, h = 32, 32
	r := NewEdgeRefiner(3, 25, 1)

	m := stepMask(w, h, 16)
	m.Pix[8*w+8] = 80 // 背景侧一个孤立噪点

	out := r.Apply(m)

	// 噪点和邻域的差 80 超出值域 sigma 很多，权重趋零，基本保持原值；
	// 它周围的纯背景像素不被噪点污染
	assert.Less(t, out.Pix[8*w+7], uint8(5))
	// 远离边界的前景保持满值
	assert.Equal(t, uint8(255), out.Pix[8*w+30])
}

// 降采样路径：结果尺寸回到全分辨率，值域正常
func TestEdgeRefiner_DownsampledPath(t *testing.T) {
	r := NewEdgeRefiner(3, 25, 2)
	m := stepMask(64, 64, 32)

	out := r.Apply(m)
	require.Equal(t, 64, out.Width)
	require.Equal(t, 64, out.Height)
	assert.Less(t, out.Pix[0], uint8(16))
	assert.Greater(t, out.Pix[63], uint8(240))
}
