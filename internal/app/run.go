package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/plugin/stat"
)

// Run 组装依赖并启动 http 服务，阻塞到 ctx 结束或服务出错
func Run(ctx context.Context, bc *conf.Bootstrap, log *slog.Logger) error {
	handler, cleanup, err := wireApp(bc, log)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer cleanup()

	// 主机资源采样，磁盘观测存档目录
	go stat.Run(ctx, bc.Archive.Dir, 30*time.Second)

	svr := &http.Server{
		Addr:              fmt.Sprintf(":%d", bc.Server.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http 服务已启动", "port", bc.Server.HTTP.Port, "version", bc.BuildVersion)
		if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return svr.Shutdown(shutdownCtx)
}
