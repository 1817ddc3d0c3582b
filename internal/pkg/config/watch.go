package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchLogLevel 监听配置文件，写入后重新加载并应用 app.log_level
// 监听所在目录而不是文件本身：编辑器保存时常以 rename 方式替换文件。
func WatchLogLevel(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建配置监控器失败: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("监控配置目录失败: %w", err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					slog.Warn("重新加载配置失败", "error", err)
					continue
				}
				SetLogLevel(cfg.App.LogLevel)
				slog.Info("日志级别已更新", "level", cfg.App.LogLevel)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("配置监控异常", "error", err)
			}
		}
	}()
	return nil
}
