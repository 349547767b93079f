package main

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"image/png"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/segmentio/ksuid"

	"github.com/chaos-io/bgeffect/effect"
	"github.com/chaos-io/bgeffect/segment"
	"github.com/chaos-io/bgeffect/track"
	"github.com/chaos-io/bgeffect/util"
)

// demo 服务：单张图片上跑一遍背景效果管线，方便调参和回归对比
// 直播接入方不走这里，直接用 track.Manager + effect.Pipeline
func main() {
	addr := envOr("ADDR", ":8080")
	outputDir := envOr("OUTPUT_DIR", "./output")

	var seg effect.Segmenter
	if segURL := os.Getenv("SEGMENT_URL"); segURL != "" {
		seg = segment.NewHTTPSegmenter(segURL, segment.Hint(envOr("SEGMENT_HINT", string(segment.HintAuto))))
	} else {
		// 没配推理服务就用人像先验兜底
		seg = segment.Portrait{}
	}

	stats := effect.NewStats()
	manager := track.NewManager(seg, track.WithManagerStats(stats))
	defer manager.Close()

	// 定时清理输出目录，顺带把计数打到日志里
	c := cron.New()
	_, err := c.AddFunc("@every 10m", func() {
		removed, err := util.CleanDir(outputDir, time.Hour)
		if err != nil {
			slog.Warn("clean output dir", "err", err)
		} else if removed > 0 {
			slog.Info("cleaned output dir", "removed", removed)
		}
		slog.Info("pipeline stats", "snapshot", stats.Snapshot())
	})
	if err != nil {
		log.Fatal("register cron job:", err)
	}
	c.Start()
	defer c.Stop()

	r := gin.Default()
	r.POST("/api/effect", func(ctx *gin.Context) { handleEffect(ctx, manager, outputDir) })
	r.GET("/api/stats", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, stats.Snapshot()) })

	if err := r.Run(addr); err != nil {
		log.Fatal("run server:", err)
	}
}

// handleEffect 表单字段：image（必填）、kind、radius、threshold、background/background_url
func handleEffect(ctx *gin.Context, manager *track.Manager, outputDir string) {
	img, err := formImage(ctx, "image")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind, err := effect.ParseKind(ctx.PostForm("kind"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := effect.DefaultConfig(kind)

	if v := ctx.PostForm("radius"); v != "" {
		if cfg.BlurRadius, err = strconv.Atoi(v); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "bad radius: " + err.Error()})
			return
		}
	}
	if v := ctx.PostForm("threshold"); v != "" {
		if cfg.ConfidenceThreshold, err = strconv.ParseFloat(v, 64); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "bad threshold: " + err.Error()})
			return
		}
	}
	if kind == effect.KindReplace {
		// 背景素材：文件上传或 URL 二选一
		if u := ctx.PostForm("background_url"); u != "" {
			cfg.Background, err = util.DownloadImage(u)
		} else {
			cfg.Background, err = formImage(ctx, "background")
		}
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// 一次性 track：挂效果、过一帧、释放
	t := track.NewTrack()
	defer manager.Release(t)

	if err := manager.Apply(ctx.Request.Context(), t, cfg); err != nil {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	frame := effect.NewFrame(img, 0, 33*time.Millisecond)
	out := t.Process(ctx.Request.Context(), frame)

	name := ksuid.New().String() + "_" + kind.String() + ".png"
	if err := util.SaveImage(out.ToImage(), filepath.Join(outputDir, name)); err != nil {
		slog.Warn("save output image", "err", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out.ToImage()); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.Data(http.StatusOK, "image/png", buf.Bytes())
}

func formImage(ctx *gin.Context, field string) (image.Image, error) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func(f multipart.File) {
		_ = f.Close()
	}(f)

	img, _, err := image.Decode(f)
	return img, err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
