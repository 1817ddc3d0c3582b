package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Progression ProgressionConfig `mapstructure:"progression"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Seed        SeedConfig        `mapstructure:"seed"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
	Timezone string `mapstructure:"timezone"` // 日/周/月/年边界所用时区
}

// ServerConfig HTTP 配置
type ServerConfig struct {
	ListenAddr     string  `mapstructure:"listen_addr"`
	AdminToken     string  `mapstructure:"admin_token"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Driver       string `mapstructure:"driver"` // sqlite | postgres
	DBPath       string `mapstructure:"db_path"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// ProgressionConfig 经验奖励配置
type ProgressionConfig struct {
	VisitExp       int64 `mapstructure:"visit_exp"`
	RemoteExp      int64 `mapstructure:"remote_exp"`
	WeeklyBonusExp int64 `mapstructure:"weekly_bonus_exp"`
	TopN           int   `mapstructure:"top_n"`
}

// SchedulerConfig 收割调度配置
type SchedulerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	IntervalSec int  `mapstructure:"interval_sec"`
}

// SeedConfig 等级表/称号模板种子
type SeedConfig struct {
	Path string `mapstructure:"path"` // 为空时使用内置默认种子
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SANPAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("配置文件未找到，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		slog.Info("加载配置文件", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Server.AdminToken = expandEnv(cfg.Server.AdminToken)
	cfg.Storage.DSN = expandEnv(cfg.Storage.DSN)
	cfg.Storage.DBPath = resolvePath(cfg.Storage.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回默认配置（首次启动写入配置文件用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path 不能为空")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.driver=postgres 时 storage.dsn 不能为空")
		}
	default:
		return fmt.Errorf("不支持的存储驱动: %q", c.Storage.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Progression.VisitExp < 0 || c.Progression.RemoteExp < 0 || c.Progression.WeeklyBonusExp < 0 {
		return fmt.Errorf("progression 经验奖励不能为负")
	}
	if c.Progression.TopN <= 0 {
		return fmt.Errorf("progression.top_n 必须大于 0")
	}
	if c.Scheduler.IntervalSec <= 0 {
		return fmt.Errorf("scheduler.interval_sec 必须大于 0")
	}
	return nil
}

// Location 解析 app.timezone
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" || strings.EqualFold(c.App.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("解析时区 %q 失败: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "sanpai")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_path", "")
	v.SetDefault("app.timezone", "Asia/Tokyo")

	// Server
	v.SetDefault("server.listen_addr", "127.0.0.1:8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.rate_limit_rps", 2.0)
	v.SetDefault("server.rate_limit_burst", 5)

	// Storage
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.db_path", "./data/sanpai.db")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_open_conns", 10)

	// Progression：现场参拜与遥拜奖励相同
	v.SetDefault("progression.visit_exp", 10)
	v.SetDefault("progression.remote_exp", 10)
	v.SetDefault("progression.weekly_bonus_exp", 50)
	v.SetDefault("progression.top_n", 3)

	// Scheduler
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_sec", 30)

	v.SetDefault("seed.path", "")
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := s[2 : len(s)-1]
		return os.Getenv(envVar)
	}
	return s
}

// resolvePath 解析相对路径为绝对路径（相对可执行文件目录）
func resolvePath(path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}

	exe, err := os.Executable()
	if err != nil {
		return path
	}

	exeDir := filepath.Dir(exe)
	return filepath.Join(exeDir, path)
}
