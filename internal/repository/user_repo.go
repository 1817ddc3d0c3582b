package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户仓储
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建仓储
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, user *schema.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("创建用户失败: %w", err)
	}
	return nil
}

// GetByID 按 ID 获取；不存在返回 nil, nil
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*schema.User, error) {
	var user schema.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

// GetForUpdate 事务内锁定用户行，串行化同一用户的经验写入
// SQLite 方言会忽略 FOR UPDATE，由单连接保证串行。
func (r *UserRepository) GetForUpdate(ctx context.Context, id int64) (*schema.User, error) {
	var user schema.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("锁定用户失败: %w", err)
	}
	return &user, nil
}

// UpdateProgress 写回经验、等级与能力点
func (r *UserRepository) UpdateProgress(ctx context.Context, id int64, experience int64, level int, abilityPoints int64) error {
	res := r.db.WithContext(ctx).
		Model(&schema.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"experience":     experience,
			"level":          level,
			"ability_points": abilityPoints,
		})
	if res.Error != nil {
		return fmt.Errorf("更新用户进度失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("更新用户进度失败: 用户 %d 不存在", id)
	}
	return nil
}

// Names 批量获取用户名
func (r *UserRepository) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []schema.User
	if err := r.db.WithContext(ctx).Select("id, name").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("查询用户名失败: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u.Name
	}
	return out, nil
}

// EnsureByName 按名称查找用户，不存在时创建
func (r *UserRepository) EnsureByName(ctx context.Context, name string) (*schema.User, error) {
	var out schema.User
	err := r.db.WithContext(ctx).Where(schema.User{Name: name}).Attrs(schema.User{Level: 1}).FirstOrCreate(&out).Error
	if err != nil {
		return nil, fmt.Errorf("写入用户失败: %w", err)
	}
	return &out, nil
}
