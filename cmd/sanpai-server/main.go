package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/yuqie6/Sanpai/internal/bootstrap"
	"github.com/yuqie6/Sanpai/internal/httpapi"
	"github.com/yuqie6/Sanpai/internal/pkg/buildinfo"
	"github.com/yuqie6/Sanpai/internal/pkg/config"
)

func main() {
	cfgPath := flag.String("config", "", "配置文件路径（默认为可执行文件旁的 config/config.yaml）")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := *cfgPath
	if path == "" {
		if p, err := config.DefaultConfigPath(); err == nil {
			path = p
			if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
				_ = config.WriteFile(p, config.Default())
			}
		}
	}

	core, err := bootstrap.NewCore(ctx, path)
	if err != nil {
		slog.Error("启动失败", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	slog.Info("Sanpai 服务启动中...",
		"name", core.Cfg.App.Name,
		"version", buildinfo.Version,
		"driver", core.DB.Driver,
		"timezone", core.Location.String(),
	)
	if core.DB.SafeMode {
		slog.Warn("数据库处于安全模式，仅提供健康检查与指标", "error", core.DB.MigrationError)
	}

	srv, err := httpapi.New(core)
	if err != nil {
		slog.Error("构建 HTTP 服务失败", "error", err)
		os.Exit(1)
	}

	if err := config.WatchLogLevel(ctx, path); err != nil {
		slog.Warn("配置热更新不可用", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, core.Cfg.Server.ListenAddr)
	})
	if core.Ready() && core.Cfg.Scheduler.Enabled {
		sched := core.Services.Scheduler
		g.Go(func() error {
			if err := sched.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			sched.Stop()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("服务异常退出", "error", err)
		os.Exit(1)
	}
	slog.Info("Sanpai 服务已退出")
}
