package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gowvp/vigil/internal/app"
	"github.com/gowvp/vigil/internal/conf"
	"github.com/ixugo/goddd/pkg/system"
)

// buildVersion 编译时通过 -ldflags "-X main.buildVersion=vX.Y.Z" 注入
var buildVersion = "dev"

func main() {
	confPath := flag.String("conf", filepath.Join("configs", "config.toml"), "配置文件路径")
	flag.Parse()

	path := *confPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(system.Getwd(), path)
	}
	bc, err := conf.SetupConfig(path)
	if err != nil {
		slog.Error("读取配置失败", "path", path, "err", err)
		os.Exit(1)
	}
	bc.BuildVersion = buildVersion

	log := setupLogger(bc.Debug)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, bc, log); err != nil {
		slog.Error("服务退出", "err", err)
		os.Exit(1)
	}
	slog.Info("服务已停止")
}

func setupLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
