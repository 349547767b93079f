package effect

import (
	"fmt"
	"image"
)

// Kind 效果类型
type Kind int

const (
	KindNone    Kind = iota // 原样透传
	KindBlur                // 背景虚化
	KindReplace             // 背景替换
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBlur:
		return "blur"
	case KindReplace:
		return "replace"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind 解析效果名（demo 服务的表单参数用）
func ParseKind(s string) (Kind, error) {
	switch s {
	case "none", "":
		return KindNone, nil
	case "blur":
		return KindBlur, nil
	case "replace":
		return KindReplace, nil
	}
	return KindNone, fmt.Errorf("unknown effect kind %q", s)
}

// Config 一次效果的全部参数，不可变值
// 换效果 = 构造一个新 Config 重建管线，绝不原地修改
type Config struct {
	Kind       Kind
	BlurRadius int         // 背景虚化半径（像素）
	Background image.Image // 替换背景，仅 KindReplace 用，按帧尺寸缩放

	// 分割调优
	ConfidenceThreshold float64 // [0,1]，低于此值按背景处理
	SpatialSigma        int     // 双边滤波邻域半径
	IntensitySigma      float64 // 双边滤波的值域 sigma
	MinMaskAreaRatio    float64 // 前景占比低于此值视为没检测到主体
	TemporalAlpha       float64 // 时域平滑基础 alpha
	MultiClass          bool    // 多前景类别取最大置信度（增强检测）

	// 性能
	InferenceInterval int // 每 N 帧跑一次推理，其余帧复用上次结果
	RefineScale       int // 双边滤波在 1/N 分辨率的掩码上跑
}

// DefaultConfig 按效果类型给出默认参数
func DefaultConfig(kind Kind) Config {
	return Config{
		Kind:                kind,
		BlurRadius:          15,
		ConfidenceThreshold: 0.7,
		SpatialSigma:        3,
		IntensitySigma:      25,
		MinMaskAreaRatio:    0.02,
		TemporalAlpha:       0.35,
		MultiClass:          true,
		InferenceInterval:   1,
		RefineScale:         2,
	}
}

// Validate 构造期校验，非法配置直接拒绝，不会污染已生效的配置
func (c Config) Validate() error {
	switch c.Kind {
	case KindNone:
		return nil
	case KindBlur:
		if c.BlurRadius <= 0 {
			return fmt.Errorf("blur radius must be positive, got %d", c.BlurRadius)
		}
	case KindReplace:
		if c.Background == nil {
			return fmt.Errorf("replace effect requires a background image")
		}
	default:
		return fmt.Errorf("unknown effect kind %d", int(c.Kind))
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.SpatialSigma <= 0 {
		return fmt.Errorf("spatial sigma must be positive, got %d", c.SpatialSigma)
	}
	if c.IntensitySigma <= 0 {
		return fmt.Errorf("intensity sigma must be positive, got %v", c.IntensitySigma)
	}
	if c.MinMaskAreaRatio < 0 || c.MinMaskAreaRatio >= 1 {
		return fmt.Errorf("min mask area ratio must be in [0,1), got %v", c.MinMaskAreaRatio)
	}
	if c.TemporalAlpha <= 0 || c.TemporalAlpha > 1 {
		return fmt.Errorf("temporal alpha must be in (0,1], got %v", c.TemporalAlpha)
	}
	if c.InferenceInterval <= 0 {
		return fmt.Errorf("inference interval must be positive, got %d", c.InferenceInterval)
	}
	if c.RefineScale <= 0 {
		return fmt.Errorf("refine scale must be positive, got %d", c.RefineScale)
	}
	return nil
}
