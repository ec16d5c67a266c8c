package archive

import (
	"context"
	"log/slog"
	"time"

	"github.com/ixugo/goddd/pkg/conc"
)

// StartPurgeWorker 启动过期清理协程，随 ctx 结束
func (c *Core) StartPurgeWorker(ctx context.Context) {
	interval := time.Duration(c.cfg.PurgeIntervalMin) * time.Minute
	go conc.Timer(ctx, interval, interval, func() {
		n, err := c.PurgeExpired(ctx)
		if err != nil {
			slog.Error("过期归档清理失败", "err", err)
			return
		}
		if n > 0 {
			slog.Info("过期归档已清理", "purged", n)
		}
	})
}
