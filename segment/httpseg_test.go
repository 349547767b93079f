package segment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/bgeffect/effect"
)

func testFrame(w, h int) *effect.Frame {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return effect.NewFrame(img, time.Second, 33*time.Millisecond)
}

func TestHTTPSegmenter_Warmup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr bool
	}{
		{
			name: "引擎就绪",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/warmup", r.URL.Path)
				var req map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "gpu", req["hint"])
				_, _ = w.Write([]byte(`{"ready": true, "model": "selfie-seg"}`))
			},
			wantErr: false,
		},
		{
			name: "模型没加载完",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"ready": false, "model": "selfie-seg"}`))
			},
			wantErr: true,
		},
		{
			name: "服务端错误",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			s := NewHTTPSegmenter(server.URL, HintGPU)
			err := s.Warmup(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnavailable)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPSegmenter_SegmentCategories(t *testing.T) {
	t.Parallel()

	cats := []uint8{0, 1, 1, 0, 2, 0}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/segment", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 3, req["width"])
		assert.EqualValues(t, 2, req["height"])
		assert.EqualValues(t, time.Second.Microseconds(), req["timestamp_us"])
		assert.Equal(t, "cpu", req["hint"])
		assert.NotEmpty(t, req["image_png"])

		resp := map[string]any{
			"width":      3,
			"height":     2,
			"categories": base64.StdEncoding.EncodeToString(cats),
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	s := NewHTTPSegmenter(server.URL, HintCPU)
	res, err := s.Segment(context.Background(), testFrame(3, 2))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Width)
	assert.Equal(t, 2, res.Height)
	assert.Equal(t, cats, res.Categories)
	assert.Empty(t, res.Confidence)
}

func TestHTTPSegmenter_SegmentConfidence(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"width":  2,
			"height": 1,
			"confidence": []string{
				base64.StdEncoding.EncodeToString([]byte{255, 0}),
				base64.StdEncoding.EncodeToString([]byte{0, 128}),
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	s := NewHTTPSegmenter(server.URL, HintAuto)
	res, err := s.Segment(context.Background(), testFrame(2, 1))
	require.NoError(t, err)

	require.Len(t, res.Confidence, 2)
	assert.InDelta(t, 1.0, float64(res.Confidence[0][0]), 1e-6)
	assert.InDelta(t, 0.0, float64(res.Confidence[0][1]), 1e-6)
	assert.InDelta(t, 128.0/255, float64(res.Confidence[1][1]), 1e-6)
}

func TestHTTPSegmenter_SegmentBadResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"尺寸缺失", `{"categories": "AAEC"}`},
		{"类别长度不符", `{"width": 4, "height": 4, "categories": "AAEC"}`},
		{"置信度长度不符", `{"width": 4, "height": 4, "confidence": ["AAEC"]}`},
		{"base64 损坏", `{"width": 2, "height": 2, "categories": "!!!"}`},
		{"两种形态都没有", `{"width": 2, "height": 2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			s := NewHTTPSegmenter(server.URL, HintAuto)
			_, err := s.Segment(context.Background(), testFrame(2, 2))
			assert.Error(t, err)
		})
	}
}

func TestPortrait_CenterIsForeground(t *testing.T) {
	res, err := Portrait{}.Segment(context.Background(), testFrame(64, 64))
	require.NoError(t, err)
	require.Len(t, res.Confidence, 1)

	conf := res.Confidence[0]
	// 椭圆中心满置信，四角是背景
	assert.InDelta(t, 1.0, float64(conf[37*64+32]), 1e-6)
	assert.InDelta(t, 0.0, float64(conf[0]), 1e-6)
	assert.InDelta(t, 0.0, float64(conf[63]), 1e-6)
}

func TestStatic_AllForeground(t *testing.T) {
	res, err := Static{}.Segment(context.Background(), testFrame(4, 4))
	require.NoError(t, err)
	for _, c := range res.Categories {
		assert.Equal(t, uint8(1), c)
	}
}
