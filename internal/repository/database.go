package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite" // 纯 Go SQLite 驱动
	"github.com/yuqie6/Sanpai/internal/pkg/config"
	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database 数据库管理器
type Database struct {
	DB             *gorm.DB
	Driver         string
	SafeMode       bool
	SchemaVersion  int
	MigrationError string
}

// NewDatabase 按配置创建数据库连接并迁移
func NewDatabase(cfg config.StorageConfig) (*Database, error) {
	var (
		db  *gorm.DB
		err error
	)
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch cfg.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("连接 PostgreSQL 失败: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB, err := db.DB()
			if err != nil {
				return nil, err
			}
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
	case "sqlite", "":
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("创建数据目录失败: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(cfg.DBPath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		if err := configureSQLite(db); err != nil {
			return nil, fmt.Errorf("配置数据库失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的存储驱动: %q", cfg.Driver)
	}

	d := &Database{DB: db, Driver: cfg.Driver}
	if d.Driver == "" {
		d.Driver = "sqlite"
	}
	if err := migrateWithVersion(db, d); err != nil {
		// 迁移失败进入安全模式：进程可启动以便诊断，但拒绝写入
		d.SafeMode = true
		d.MigrationError = err.Error()
		slog.Error("数据库迁移失败，进入安全模式", "error", err)
	}

	slog.Info("数据库初始化成功", "driver", d.Driver)
	return d, nil
}

// configureSQLite 配置 SQLite 参数
// 单连接：所有事务串行执行，行级锁语义由此保证（SQLite 不支持 FOR UPDATE）。
func configureSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("执行 %s 失败: %w", pragma, err)
		}
	}
	return nil
}

// TxOptions 多行写入使用的事务隔离级别
// PostgreSQL 使用 SERIALIZABLE；SQLite 单连接已串行，使用驱动默认值。
func (d *Database) TxOptions() *sql.TxOptions {
	if d.Driver == "postgres" {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

const latestSchemaVersion = 2

func migrateWithVersion(db *gorm.DB, out *Database) error {
	if db == nil {
		return fmt.Errorf("db 不能为空")
	}
	if out == nil {
		return fmt.Errorf("out 不能为空")
	}

	// 先确保 schema_meta 存在（即使后续迁移失败，也能记录状态）
	if err := db.AutoMigrate(&schema.SchemaMeta{}); err != nil {
		return fmt.Errorf("创建 schema_meta 失败: %w", err)
	}

	var meta schema.SchemaMeta
	err := db.First(&meta, 1).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			meta = schema.SchemaMeta{ID: 1, SchemaVersion: 0}
			if err := db.Create(&meta).Error; err != nil {
				return fmt.Errorf("初始化 schema_meta 失败: %w", err)
			}
		} else {
			return fmt.Errorf("读取 schema_meta 失败: %w", err)
		}
	}

	cur := meta.SchemaVersion
	out.SchemaVersion = cur

	if cur > latestSchemaVersion {
		return fmt.Errorf("数据库 schema_version=%d 高于当前程序支持的版本=%d", cur, latestSchemaVersion)
	}
	if cur == latestSchemaVersion {
		return nil
	}

	// v2: 计数行增加 period_key，旧的四列唯一索引会阻止同一时间窗的不同周期并存
	if db.Migrator().HasIndex(&schema.AggregateCounter{}, "uniq_counter_key") {
		if err := db.Migrator().DropIndex(&schema.AggregateCounter{}, "uniq_counter_key"); err != nil {
			return fmt.Errorf("删除旧计数索引失败: %w", err)
		}
	}

	if err := db.AutoMigrate(schema.Models()...); err != nil {
		return fmt.Errorf("迁移数据库失败: %w", err)
	}

	if cur == 1 {
		// v1 的时间窗行没有周期归属，无法判断属于哪一期，只能丢弃
		res := db.Where("time_window <> ? AND period_key = ?", schema.WindowAll, "").Delete(&schema.AggregateCounter{})
		if res.Error != nil {
			return fmt.Errorf("清理无周期计数失败: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			slog.Warn("丢弃无周期归属的时间窗计数", "rows", res.RowsAffected)
		}
	}

	meta.SchemaVersion = latestSchemaVersion
	if err := db.Save(&meta).Error; err != nil {
		return fmt.Errorf("写入 schema_meta 失败: %w", err)
	}
	out.SchemaVersion = latestSchemaVersion
	return nil
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
