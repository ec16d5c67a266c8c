// Package mediaadapter 从 lalmax 流媒体服务器抓取静态帧
//
// 适配器实现 monitor.FrameSource 接口（端口在 monitor 包内），
// 外层适配器依赖内层领域，符合清晰架构。
package mediaadapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/gowvp/vigil/pkg/lalmax"
	"github.com/ixugo/goddd/pkg/orm"
)

var _ monitor.FrameSource = (*Adapter)(nil)

type Adapter struct {
	engine lalmax.Engine
	cfg    conf.Media
}

func NewAdapter(cfg conf.Media) *Adapter {
	return &Adapter{
		engine: lalmax.NewEngine().SetConfig(lalmax.Config{URL: cfg.URL, Secret: cfg.Secret}),
		cfg:    cfg,
	}
}

// EnsurePull 配置了回源地址时，把相机流拉进媒体服务器
// 拉流失败只告警，快照调用自会报出源不可用
func (a *Adapter) EnsurePull(ctx context.Context, streamName string) {
	if a.cfg.PullURL == "" {
		return
	}
	_, err := a.engine.StartRelayPull(ctx, lalmax.StartRelayPullInput{
		URL:          a.cfg.PullURL,
		StreamName:   streamName,
		PullRetryNum: -1,
	})
	if err != nil {
		slog.Warn("回源拉流启动失败", "stream", streamName, "url", a.cfg.PullURL, "err", err)
		return
	}
	slog.Info("回源拉流已启动", "stream", streamName, "url", a.cfg.PullURL)
}

// Capture implements monitor.FrameSource.
func (a *Adapter) Capture(ctx context.Context, sourceID string) (*monitor.Frame, error) {
	data, err := a.engine.GetSnapshot(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("media snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("media snapshot: empty frame for %s", sourceID)
	}
	return &monitor.Frame{
		SourceID:   sourceID,
		Bytes:      data,
		MIME:       sniffImageMIME(data),
		CapturedAt: orm.Now(),
	}, nil
}

// sniffImageMIME lalmax 返回 PNG，其他源可能是 JPEG
func sniffImageMIME(data []byte) string {
	if ct := http.DetectContentType(data); ct == "image/png" || ct == "image/jpeg" {
		return ct
	}
	return "image/jpeg"
}
