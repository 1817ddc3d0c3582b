package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// DefaultConfigPath 可执行文件旁的 config/config.yaml
func DefaultConfigPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("获取可执行文件路径失败: %w", err)
	}
	exeDir := filepath.Dir(exe)
	return filepath.Join(exeDir, "config", "config.yaml"), nil
}

// WriteFile 将配置写成 YAML
func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("cfg 不能为空")
	}
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	payload := map[string]any{
		"app": map[string]any{
			"name":      cfg.App.Name,
			"version":   cfg.App.Version,
			"log_level": cfg.App.LogLevel,
			"log_path":  cfg.App.LogPath,
			"timezone":  cfg.App.Timezone,
		},
		"server": map[string]any{
			"listen_addr":      cfg.Server.ListenAddr,
			"admin_token":      cfg.Server.AdminToken,
			"rate_limit_rps":   cfg.Server.RateLimitRPS,
			"rate_limit_burst": cfg.Server.RateLimitBurst,
		},
		"storage": map[string]any{
			"driver":         cfg.Storage.Driver,
			"db_path":        cfg.Storage.DBPath,
			"dsn":            cfg.Storage.DSN,
			"max_open_conns": cfg.Storage.MaxOpenConns,
		},
		"progression": map[string]any{
			"visit_exp":        cfg.Progression.VisitExp,
			"remote_exp":       cfg.Progression.RemoteExp,
			"weekly_bonus_exp": cfg.Progression.WeeklyBonusExp,
			"top_n":            cfg.Progression.TopN,
		},
		"scheduler": map[string]any{
			"enabled":      cfg.Scheduler.Enabled,
			"interval_sec": cfg.Scheduler.IntervalSec,
		},
		"seed": map[string]any{
			"path": cfg.Seed.Path,
		},
	}

	b, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	// admin_token 可能是明文，限制权限
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
