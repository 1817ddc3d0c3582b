package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
)

// ActivityRepository 动态流仓储
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository 创建仓储
func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append 追加一条动态
func (r *ActivityRepository) Append(ctx context.Context, entry *schema.ActivityLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("写入动态失败: %w", err)
	}
	return nil
}

// Recent 最近动态；userID 为 0 时返回全站
func (r *ActivityRepository) Recent(ctx context.Context, userID int64, limit int) ([]schema.ActivityLog, error) {
	var logs []schema.ActivityLog
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("查询动态失败: %w", err)
	}
	return logs, nil
}
