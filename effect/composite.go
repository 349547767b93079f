package effect

import (
	"image"

	"github.com/nfnt/resize"
)

// Compositor 按掩码把背景处理结果和原帧混合
// out[p] = treated[p]*(1-mask[p]) + orig[p]*mask[p]
// 输出帧的时间戳/时长与输入帧完全一致
type Compositor struct {
	kind       Kind
	blurRadius int
	background image.Image

	// 已缩放到帧尺寸的背景缓存，尺寸变了重新缩放
	bgPix    []uint8
	bgWidth  int
	bgHeight int
}

// NewCompositor 构造（配置已在上层校验过）
func NewCompositor(cfg Config) *Compositor {
	return &Compositor{
		kind:       cfg.Kind,
		blurRadius: cfg.BlurRadius,
		background: cfg.Background,
	}
}

// Compose 合成一帧；KindNone 原样返回输入帧
func (c *Compositor) Compose(frame *Frame, mask *Mask) *Frame {
	if c.kind == KindNone {
		return frame
	}

	var treated []uint8
	switch c.kind {
	case KindBlur:
		treated = gaussianBlurRGBA(frame.Pix, frame.Width, frame.Height, c.blurRadius)
	case KindReplace:
		treated = c.scaledBackground(frame.Width, frame.Height)
	}

	out := frame.emptyLike()
	for i, mv := range mask.Pix {
		m := int(mv)
		p := i * 4
		for j := p; j < p+4; j++ {
			// 定点混合，m=255 时精确还原原像素，m=0 时精确取背景
			out.Pix[j] = uint8((int(frame.Pix[j])*m + int(treated[j])*(255-m) + 127) / 255)
		}
	}
	return out
}

// scaledBackground 背景素材按帧尺寸缩放（Lanczos3），结果缓存
func (c *Compositor) scaledBackground(width, height int) []uint8 {
	if c.bgPix != nil && c.bgWidth == width && c.bgHeight == height {
		return c.bgPix
	}
	scaled := resize.Resize(uint(width), uint(height), c.background, resize.Lanczos3)
	c.bgPix = NewFrame(scaled, 0, 0).Pix
	c.bgWidth = width
	c.bgHeight = height
	return c.bgPix
}
