package effect

import (
	"image"
	"image/draw"
	"time"
)

// Frame 一帧视频图像：RGBA 像素 + 时间戳元数据
// 时间戳和时长用于下游音视频同步，处理过程中必须原样带过去
type Frame struct {
	Width     int
	Height    int
	Timestamp time.Duration
	Duration  time.Duration
	Pix       []uint8 // RGBA，每像素 4 字节，行距 = Width*4
}

// NewFrame 从 image.Image 构造 Frame
func NewFrame(img image.Image, timestamp, duration time.Duration) *Frame {
	src := toNRGBA(img)
	b := src.Bounds()
	f := &Frame{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Timestamp: timestamp,
		Duration:  duration,
		Pix:       make([]uint8, b.Dx()*b.Dy()*4),
	}
	// NRGBA 的 Stride 可能大于 Width*4，按行拷贝
	for y := 0; y < f.Height; y++ {
		copy(f.Pix[y*f.Width*4:(y+1)*f.Width*4], src.Pix[y*src.Stride:y*src.Stride+f.Width*4])
	}
	return f
}

// Clone 深拷贝（时间戳元数据一并保留）
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
		Pix:       pix,
	}
}

// emptyLike 同尺寸同时间戳的空帧，composite 阶段往里写结果
func (f *Frame) emptyLike() *Frame {
	return &Frame{
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
		Pix:       make([]uint8, len(f.Pix)),
	}
}

// ToImage 转回标准库图像（拷贝一份，调用方可自由持有）
func (f *Frame) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+f.Width*4], f.Pix[y*f.Width*4:(y+1)*f.Width*4])
	}
	return img
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
