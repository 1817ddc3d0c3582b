package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
)

// PerkRepository 能力与限时权益的只读视图
// 数据由能力子系统、订阅子系统写入，这里只负责查询。
type PerkRepository struct {
	db *gorm.DB
}

// NewPerkRepository 创建仓储
func NewPerkRepository(db *gorm.DB) *PerkRepository {
	return &PerkRepository{db: db}
}

// OwnedAbilities 用户当前拥有的能力
func (r *PerkRepository) OwnedAbilities(ctx context.Context, userID int64) ([]schema.UserAbility, error) {
	var abilities []schema.UserAbility
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&abilities).Error; err != nil {
		return nil, fmt.Errorf("查询用户能力失败: %w", err)
	}
	return abilities, nil
}

// ActiveEntitlements at 时刻仍有效的权益种类
func (r *PerkRepository) ActiveEntitlements(ctx context.Context, userID int64, at time.Time) ([]string, error) {
	var kinds []string
	err := r.db.WithContext(ctx).
		Model(&schema.UserEntitlement{}).
		Distinct("kind").
		Where("user_id = ? AND expires_at > ?", userID, at).
		Pluck("kind", &kinds).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户权益失败: %w", err)
	}
	return kinds, nil
}

// GrantAbility 写入一项能力（测试与运维脚本用）
func (r *PerkRepository) GrantAbility(ctx context.Context, ability *schema.UserAbility) error {
	if err := r.db.WithContext(ctx).Create(ability).Error; err != nil {
		return fmt.Errorf("写入用户能力失败: %w", err)
	}
	return nil
}

// GrantEntitlement 写入一项限时权益（测试与运维脚本用）
func (r *PerkRepository) GrantEntitlement(ctx context.Context, ent *schema.UserEntitlement) error {
	if err := r.db.WithContext(ctx).Create(ent).Error; err != nil {
		return fmt.Errorf("写入用户权益失败: %w", err)
	}
	return nil
}
