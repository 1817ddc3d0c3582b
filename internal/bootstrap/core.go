package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/yuqie6/Sanpai/internal/eventbus"
	"github.com/yuqie6/Sanpai/internal/pkg/config"
	"github.com/yuqie6/Sanpai/internal/progression"
	"github.com/yuqie6/Sanpai/internal/repository"
	"github.com/yuqie6/Sanpai/internal/seed"
	"github.com/yuqie6/Sanpai/internal/service"
)

// Core 持有服务端与 CLI 共享的核心依赖
type Core struct {
	Cfg       *config.Config
	DB        *repository.Database
	Store     *repository.Store
	Table     *progression.Table
	Hub       *eventbus.Hub
	Location  *time.Location
	LogCloser io.Closer

	Services struct {
		Recorder  *service.Recorder
		Harvester *service.Harvester
		Scheduler *service.Scheduler
		Queries   *service.QueryService
	}
}

// NewCore 加载配置、打开数据库、载入等级表并装配服务（不启动调度）
func NewCore(ctx context.Context, cfgPath string) (*Core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return NewCoreFromConfig(ctx, cfg)
}

// NewCoreFromConfig 使用已加载的配置装配核心依赖
func NewCoreFromConfig(ctx context.Context, cfg *config.Config) (*Core, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	logCloser, _ := config.SetupLogger(config.LoggerOptions{
		Level:     cfg.App.LogLevel,
		Path:      cfg.App.LogPath,
		Component: filepath.Base(os.Args[0]),
	})

	db, err := repository.NewDatabase(cfg.Storage)
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, err
	}

	c := &Core{
		Cfg:       cfg,
		DB:        db,
		Store:     repository.NewStore(db.DB, db.TxOptions()),
		Hub:       eventbus.NewHub(),
		Location:  loc,
		LogCloser: logCloser,
	}
	if db.SafeMode {
		// 安全模式下表结构不可信，不载入等级表；只读接口与诊断仍可用
		return c, nil
	}

	table, err := seed.EnsureLevels(ctx, c.Store, cfg.Seed.Path)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("载入等级表失败: %w", err)
	}
	c.Table = table

	opts := service.Options{
		Progression: cfg.Progression,
		Location:    loc,
		Clock:       service.SystemClock{},
		Events:      c.Hub,
	}
	c.Services.Recorder = service.NewRecorder(c.Store, table, c.Store.Perks, c.Store.Perks, opts)
	c.Services.Harvester = service.NewHarvester(c.Store, table, opts)
	c.Services.Scheduler = service.NewScheduler(c.Store, c.Services.Harvester, time.Duration(cfg.Scheduler.IntervalSec)*time.Second, opts)
	c.Services.Queries = service.NewQueryService(c.Store, table, c.Store.Perks, c.Store.Perks, opts)
	return c, nil
}

// Ready 服务是否已装配（非安全模式）
func (c *Core) Ready() bool {
	return c != nil && c.Table != nil && !c.DB.SafeMode
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.LogCloser != nil {
		_ = c.LogCloser.Close()
	}
	return dbErr
}
