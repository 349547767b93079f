package effect

// 时域平滑的运动阈值（0-255 域）
const (
	motionFast     = 20.0 // 帧级运动大于此值：alpha 减半
	motionStatic   = 5.0  // 帧级运动小于此值：alpha 上调
	pixelMotion    = 30   // 单像素差值大于此值：局部快速运动
	pixelAlphaMin  = 0.2  // 局部快速运动像素的当前帧权重下限
	smoothAlphaCap = 0.5  // alpha 上调的封顶
)

// TemporalStabilizer 掩码的时域平滑：跨帧混合去闪烁
// 持有上一帧掩码，是管线里唯一有状态的环节，一条管线独占一个实例
type TemporalStabilizer struct {
	alpha float64
	prev  *Mask
}

// NewTemporalStabilizer 构造，alpha 是混合基数（当前帧权重）
func NewTemporalStabilizer(alpha float64) *TemporalStabilizer {
	return &TemporalStabilizer{alpha: alpha}
}

// Reset 丢弃历史状态（尺寸变化或重建管线时用）
func (s *TemporalStabilizer) Reset() {
	s.prev = nil
}

// Apply 用上一帧掩码平滑当前掩码，返回新掩码并存为历史
//
// 帧级：运动量 = 平均绝对差，运动大时 alpha 减半，静止时 alpha 上调（封顶 0.5）
// 像素级：差值大的像素取 alpha*0.6 与 0.2 的较大者，举手这类局部动作有权重兜底
func (s *TemporalStabilizer) Apply(cur *Mask) *Mask {
	// 第一帧或尺寸变化：以当前帧起步，原样返回
	if s.prev == nil || s.prev.Width != cur.Width || s.prev.Height != cur.Height {
		s.prev = cur.Clone()
		return cur
	}

	var sum int64
	for i := range cur.Pix {
		d := int(cur.Pix[i]) - int(s.prev.Pix[i])
		if d < 0 {
			d = -d
		}
		sum += int64(d)
	}
	motion := float64(sum) / float64(len(cur.Pix))

	alpha := s.alpha
	if motion > motionFast {
		alpha *= 0.5
	} else if motion < motionStatic {
		alpha = min(alpha*1.2, smoothAlphaCap)
	}

	out := NewMask(cur.Width, cur.Height)
	for i := range cur.Pix {
		c := float64(cur.Pix[i])
		p := float64(s.prev.Pix[i])
		d := c - p
		if d < 0 {
			d = -d
		}
		a := alpha
		if d > pixelMotion {
			a = max(alpha*0.6, pixelAlphaMin)
		}
		out.Pix[i] = uint8(c*a + p*(1-a) + 0.5)
	}

	s.prev = out.Clone()
	return out
}
