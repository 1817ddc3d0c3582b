package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarkerRepository 收割标记仓储
type MarkerRepository struct {
	db *gorm.DB
}

// NewMarkerRepository 创建仓储
func NewMarkerRepository(db *gorm.DB) *MarkerRepository {
	return &MarkerRepository{db: db}
}

var markerConflictColumns = []clause.Column{{Name: "period_kind"}, {Name: "period_key"}}

// TryInsert 插入标记；(kind, key) 已存在时不做修改并返回 false
func (r *MarkerRepository) TryInsert(ctx context.Context, marker *schema.HarvestMarker) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: markerConflictColumns, DoNothing: true}).
		Create(marker)
	if res.Error != nil {
		return false, fmt.Errorf("写入收割标记失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Upsert 插入或覆盖标记（手动强制收割用）
func (r *MarkerRepository) Upsert(ctx context.Context, marker *schema.HarvestMarker) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   markerConflictColumns,
		DoUpdates: clause.AssignmentColumns([]string{"run_id", "grants", "updated_at"}),
	}).Create(marker).Error
	if err != nil {
		return fmt.Errorf("写入收割标记失败: %w", err)
	}
	return nil
}

// SetGrants 回写收割发放数
func (r *MarkerRepository) SetGrants(ctx context.Context, kind schema.PeriodKind, key string, grants int) error {
	err := r.db.WithContext(ctx).
		Model(&schema.HarvestMarker{}).
		Where("period_kind = ? AND period_key = ?", kind, key).
		Update("grants", grants).Error
	if err != nil {
		return fmt.Errorf("更新收割标记失败: %w", err)
	}
	return nil
}

// Exists 某周期是否已有标记
func (r *MarkerRepository) Exists(ctx context.Context, kind schema.PeriodKind, key string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&schema.HarvestMarker{}).
		Where("period_kind = ? AND period_key = ?", kind, key).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("查询收割标记失败: %w", err)
	}
	return n > 0, nil
}

// Latest 某类周期最近写入的标记；没有返回 nil, nil
func (r *MarkerRepository) Latest(ctx context.Context, kind schema.PeriodKind) (*schema.HarvestMarker, error) {
	var markers []schema.HarvestMarker
	err := r.db.WithContext(ctx).
		Where("period_kind = ?", kind).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&markers).Error
	if err != nil {
		return nil, fmt.Errorf("查询收割标记失败: %w", err)
	}
	if len(markers) == 0 {
		return nil, nil
	}
	return &markers[0], nil
}
