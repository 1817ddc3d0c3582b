package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LevelRepository 等级表仓储
type LevelRepository struct {
	db *gorm.DB
}

// NewLevelRepository 创建仓储
func NewLevelRepository(db *gorm.DB) *LevelRepository {
	return &LevelRepository{db: db}
}

// List 按等级升序返回全部定义
func (r *LevelRepository) List(ctx context.Context) ([]schema.LevelDefinition, error) {
	var defs []schema.LevelDefinition
	if err := r.db.WithContext(ctx).Order("level ASC").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("查询等级表失败: %w", err)
	}
	return defs, nil
}

// Count 等级表行数
func (r *LevelRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.LevelDefinition{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计等级表失败: %w", err)
	}
	return n, nil
}

// UpsertBatch 批量插入或覆盖等级定义
func (r *LevelRepository) UpsertBatch(ctx context.Context, defs []schema.LevelDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "level"}},
		UpdateAll: true,
	}).Create(&defs).Error
	if err != nil {
		return fmt.Errorf("写入等级表失败: %w", err)
	}
	return nil
}
