package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository 到访名录仓储
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建仓储
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Touch 记录一次到访：首次创建时写 first_seen，之后只刷新 last_visited
func (r *CatalogRepository) Touch(ctx context.Context, userID int64, st schema.SubjectType, subjectID int64, at time.Time) error {
	entry := schema.CatalogEntry{
		UserID:        userID,
		SubjectType:   st,
		SubjectID:     subjectID,
		FirstSeenAt:   at,
		LastVisitedAt: at,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "subject_type"}, {Name: "subject_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_visited_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("更新到访名录失败: %w", err)
	}
	return nil
}

// Get 获取名录条目；不存在返回 nil, nil
func (r *CatalogRepository) Get(ctx context.Context, userID int64, st schema.SubjectType, subjectID int64) (*schema.CatalogEntry, error) {
	var entries []schema.CatalogEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND subject_type = ? AND subject_id = ?", userID, st, subjectID).
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("查询到访名录失败: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// ListByUser 用户名录，最近到访在前
func (r *CatalogRepository) ListByUser(ctx context.Context, userID int64, st schema.SubjectType) ([]schema.CatalogEntry, error) {
	var entries []schema.CatalogEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND subject_type = ?", userID, st).
		Order("last_visited_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("查询到访名录失败: %w", err)
	}
	return entries, nil
}
