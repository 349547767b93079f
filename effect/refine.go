package effect

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// EdgeRefiner 掩码边缘的双边滤波：抹平锯齿、保住轮廓
// 权重 = 空间高斯(距离) × 值域高斯(差值)，和普通模糊的区别在于
// 掩码边界两侧值差大、权重趋零，轮廓不会被糊掉
//
// 全分辨率成本是 O(w·h·sigma²)，是整条管线的大头，所以先把掩码
// 缩到 1/scale 再滤波，滤完用 CatmullRom 放回去
type EdgeRefiner struct {
	radius  int
	scale   int
	spatial []float64    // 空间权重表，按 dy*(2r+1)+dx 索引
	value   [256]float64 // 值域权重表，按 |差值| 索引
}

// NewEdgeRefiner 构造并预计算两张权重表
func NewEdgeRefiner(spatialSigma int, intensitySigma float64, scale int) *EdgeRefiner {
	r := &EdgeRefiner{radius: spatialSigma, scale: scale}

	side := 2*spatialSigma + 1
	sigma := float64(spatialSigma)
	r.spatial = make([]float64, side*side)
	for dy := -spatialSigma; dy <= spatialSigma; dy++ {
		for dx := -spatialSigma; dx <= spatialSigma; dx++ {
			d2 := float64(dx*dx + dy*dy)
			r.spatial[(dy+spatialSigma)*side+(dx+spatialSigma)] = math.Exp(-d2 / (2 * sigma * sigma))
		}
	}
	for i := 0; i < 256; i++ {
		d := float64(i)
		r.value[i] = math.Exp(-(d * d) / (2 * intensitySigma * intensitySigma))
	}
	return r
}

// Apply 返回滤波后的新掩码，输入不动
func (r *EdgeRefiner) Apply(m *Mask) *Mask {
	if r.scale <= 1 {
		return r.filter(m)
	}

	sw := max(1, m.Width/r.scale)
	sh := max(1, m.Height/r.scale)

	small := image.NewGray(image.Rect(0, 0, sw, sh))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), m.gray(), image.Rect(0, 0, m.Width, m.Height), draw.Src, nil)

	filtered := r.filter(&Mask{Width: sw, Height: sh, Pix: small.Pix})

	big := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	draw.CatmullRom.Scale(big, big.Bounds(), filtered.gray(), image.Rect(0, 0, sw, sh), draw.Src, nil)

	return &Mask{Width: m.Width, Height: m.Height, Pix: big.Pix}
}

func (r *EdgeRefiner) filter(m *Mask) *Mask {
	out := NewMask(m.Width, m.Height)
	side := 2*r.radius + 1

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			center := int(m.Pix[y*m.Width+x])
			var sum, weight float64

			for dy := -r.radius; dy <= r.radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= m.Height {
					continue
				}
				for dx := -r.radius; dx <= r.radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= m.Width {
						continue
					}
					v := int(m.Pix[ny*m.Width+nx])
					d := v - center
					if d < 0 {
						d = -d
					}
					w := r.spatial[(dy+r.radius)*side+(dx+r.radius)] * r.value[d]
					sum += w * float64(v)
					weight += w
				}
			}

			// 中心像素权重恒为 1，weight 不会为零
			out.Pix[y*m.Width+x] = uint8(math.Min(255, math.Max(0, sum/weight+0.5)))
		}
	}
	return out
}

// gray 借用像素做一个 image.Gray 视图（共享底层数组，只读使用）
func (m *Mask) gray() *image.Gray {
	return &image.Gray{Pix: m.Pix, Stride: m.Width, Rect: image.Rect(0, 0, m.Width, m.Height)}
}
