package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TitleRepository 称号模板与发放记录仓储
type TitleRepository struct {
	db *gorm.DB
}

// NewTitleRepository 创建仓储
func NewTitleRepository(db *gorm.DB) *TitleRepository {
	return &TitleRepository{db: db}
}

// GetTemplate 按 (周期, 对象类型) 查找模板；不存在返回 nil, nil
func (r *TitleRepository) GetTemplate(ctx context.Context, kind schema.PeriodKind, st schema.SubjectType) (*schema.TitleTemplate, error) {
	var tmpls []schema.TitleTemplate
	err := r.db.WithContext(ctx).
		Where("period_kind = ? AND subject_type = ?", kind, st).
		Limit(1).
		Find(&tmpls).Error
	if err != nil {
		return nil, fmt.Errorf("查询称号模板失败: %w", err)
	}
	if len(tmpls) == 0 {
		return nil, nil
	}
	return &tmpls[0], nil
}

// UpsertTemplates 批量写入模板
func (r *TitleRepository) UpsertTemplates(ctx context.Context, tmpls []schema.TitleTemplate) error {
	if len(tmpls) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		UpdateAll: true,
	}).Create(&tmpls).Error
	if err != nil {
		return fmt.Errorf("写入称号模板失败: %w", err)
	}
	return nil
}

// UpsertGrant 按 (user, template, vars_key) 幂等写入；已存在时刷新名次、文案、周期与时间
func (r *TitleRepository) UpsertGrant(ctx context.Context, grant *schema.TitleGrant) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "template_code"}, {Name: "vars_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"variables", "grade", "display", "period_key", "awarded_at"}),
	}).Create(grant).Error
	if err != nil {
		return fmt.Errorf("写入称号失败: %w", err)
	}
	return nil
}

// ListGrantsByUser 用户拥有的称号，最近获得在前
func (r *TitleRepository) ListGrantsByUser(ctx context.Context, userID int64) ([]schema.TitleGrant, error) {
	var grants []schema.TitleGrant
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("awarded_at DESC, id DESC").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("查询称号失败: %w", err)
	}
	return grants, nil
}

// CountGrants 称号发放总行数
func (r *TitleRepository) CountGrants(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.TitleGrant{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计称号失败: %w", err)
	}
	return n, nil
}
