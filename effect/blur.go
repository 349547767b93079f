package effect

import "math"

// gaussianKernel 半径 r 的一维高斯核，sigma 取 r/2，权重归一化
func gaussianKernel(radius int) []float64 {
	sigma := float64(radius) / 2
	if sigma < 0.5 {
		sigma = 0.5
	}
	k := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+radius] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// gaussianBlurRGBA 高斯模糊，水平和垂直两趟可分离卷积
// 越界采样按边缘像素延展（clamp），避免边框发暗
func gaussianBlurRGBA(pix []uint8, width, height, radius int) []uint8 {
	kernel := gaussianKernel(radius)

	tmp := make([]float64, len(pix))
	out := make([]uint8, len(pix))

	// 水平
	for y := 0; y < height; y++ {
		row := y * width * 4
		for x := 0; x < width; x++ {
			var r, g, b, a float64
			for i := -radius; i <= radius; i++ {
				sx := x + i
				if sx < 0 {
					sx = 0
				} else if sx >= width {
					sx = width - 1
				}
				w := kernel[i+radius]
				p := row + sx*4
				r += w * float64(pix[p])
				g += w * float64(pix[p+1])
				b += w * float64(pix[p+2])
				a += w * float64(pix[p+3])
			}
			p := row + x*4
			tmp[p], tmp[p+1], tmp[p+2], tmp[p+3] = r, g, b, a
		}
	}

	// 垂直
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var r, g, b, a float64
			for i := -radius; i <= radius; i++ {
				sy := y + i
				if sy < 0 {
					sy = 0
				} else if sy >= height {
					sy = height - 1
				}
				w := kernel[i+radius]
				p := (sy*width + x) * 4
				r += w * tmp[p]
				g += w * tmp[p+1]
				b += w * tmp[p+2]
				a += w * tmp[p+3]
			}
			p := (y*width + x) * 4
			out[p] = uint8(r + 0.5)
			out[p+1] = uint8(g + 0.5)
			out[p+2] = uint8(b + 0.5)
			out[p+3] = uint8(a + 0.5)
		}
	}
	return out
}
