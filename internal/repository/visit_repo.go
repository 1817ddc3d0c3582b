package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
)

// VisitRepository 参拜记录仓储（只追加）
type VisitRepository struct {
	db *gorm.DB
}

// NewVisitRepository 创建仓储
func NewVisitRepository(db *gorm.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// Create 追加一条参拜记录
func (r *VisitRepository) Create(ctx context.Context, event *schema.VisitEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC()
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("写入参拜记录失败: %w", err)
	}
	return nil
}

// CountByKindBetween 统计用户在 [start, end) 内某种方式的参拜次数
// created_at 统一以 UTC 写入，SQLite 按文本比较时间，区间也须转换为 UTC。
func (r *VisitRepository) CountByKindBetween(ctx context.Context, userID int64, kind schema.VisitKind, start, end time.Time) (int64, error) {
	start, end = start.UTC(), end.UTC()
	var n int64
	err := r.db.WithContext(ctx).
		Model(&schema.VisitEvent{}).
		Where("user_id = ? AND kind = ? AND created_at >= ? AND created_at < ?", userID, kind, start, end).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计参拜次数失败: %w", err)
	}
	return n, nil
}

// ListByUser 用户最近的参拜记录
func (r *VisitRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]schema.VisitEvent, error) {
	var events []schema.VisitEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("查询参拜记录失败: %w", err)
	}
	return events, nil
}
