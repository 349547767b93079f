package segment

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"log/slog"

	"github.com/chaos-io/bgeffect/effect"
	nhttp "github.com/chaos-io/bgeffect/util/http"
)

// HTTPSegmenter 远端人像分割服务的客户端
// 帧以 PNG 上传，引擎返回类别图或逐类别置信度图（base64 原始字节）
type HTTPSegmenter struct {
	baseURL string
	hint    Hint
	cli     nhttp.IClient
}

// NewHTTPSegmenter 构造，hint 是执行偏好（GPU/CPU），随请求透传
func NewHTTPSegmenter(baseURL string, hint Hint) *HTTPSegmenter {
	return &HTTPSegmenter{
		baseURL: baseURL,
		hint:    hint,
		cli:     nhttp.NewHTTPClient(),
	}
}

type warmupResp struct {
	Ready bool   `json:"ready"`
	Model string `json:"model"`
}

// Warmup 让引擎预加载模型，没就绪算 ErrUnavailable
func (s *HTTPSegmenter) Warmup(ctx context.Context) error {
	resp := &warmupResp{}
	err := s.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: s.baseURL + "/api/warmup",
		Method:     "POST",
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       map[string]any{"hint": string(s.hint)},
		Response:   resp,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !resp.Ready {
		return fmt.Errorf("%w: model %q not ready", ErrUnavailable, resp.Model)
	}
	slog.Debug("segmentation engine ready", "model", resp.Model)
	return nil
}

type segmentReq struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	TimestampUS int64  `json:"timestamp_us"`
	Hint        string `json:"hint"`
	ImagePNG    string `json:"image_png"`
}

type segmentResp struct {
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Categories string   `json:"categories"` // base64，每像素 1 字节类别 id
	Confidence []string `json:"confidence"` // base64，每个前景类别一个通道，0-255
}

// Segment 对一帧做推理
func (s *HTTPSegmenter) Segment(ctx context.Context, frame *effect.Frame) (*effect.SegmentResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.ToImage()); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	resp := &segmentResp{}
	err := s.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: s.baseURL + "/api/segment",
		Method:     "POST",
		Header:     map[string]string{"Content-Type": "application/json"},
		Body: &segmentReq{
			Width:       frame.Width,
			Height:      frame.Height,
			TimestampUS: frame.Timestamp.Microseconds(),
			Hint:        string(s.hint),
			ImagePNG:    base64.StdEncoding.EncodeToString(buf.Bytes()),
		},
		Response: resp,
	})
	if err != nil {
		return nil, fmt.Errorf("segment request: %w", err)
	}

	return decodeResult(resp)
}

func decodeResult(resp *segmentResp) (*effect.SegmentResult, error) {
	n := resp.Width * resp.Height
	if n <= 0 {
		return nil, fmt.Errorf("bad result dimensions %dx%d", resp.Width, resp.Height)
	}
	res := &effect.SegmentResult{Width: resp.Width, Height: resp.Height}

	// 置信度通道优先，质量比类别图好
	for i, enc := range resp.Confidence {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("decode confidence channel %d: %w", i, err)
		}
		if len(raw) != n {
			return nil, fmt.Errorf("confidence channel %d has %d pixels, want %d", i, len(raw), n)
		}
		ch := make([]float32, n)
		for j, v := range raw {
			ch[j] = float32(v) / 255
		}
		res.Confidence = append(res.Confidence, ch)
	}
	if len(res.Confidence) > 0 {
		return res, nil
	}

	if resp.Categories == "" {
		return nil, fmt.Errorf("result has neither categories nor confidence")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Categories)
	if err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	if len(raw) != n {
		return nil, fmt.Errorf("categories has %d pixels, want %d", len(raw), n)
	}
	res.Categories = raw
	return res, nil
}
