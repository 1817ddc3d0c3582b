package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yuqie6/Sanpai/internal/progression"
	"github.com/yuqie6/Sanpai/internal/repository"
	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/datatypes"
)

// grantExperience 在事务内为已锁定的用户加经验并写回
// 升级时追加一条 level_up 动态；user 会被原地更新为新状态。
func grantExperience(ctx context.Context, tx *repository.Store, table *progression.Table, user *schema.User, delta int64, at time.Time) (progression.Result, error) {
	res, err := table.Apply(progression.State{Experience: user.Experience, AbilityPoints: user.AbilityPoints}, delta)
	if err != nil {
		if errors.Is(err, progression.ErrNegativeDelta) {
			return progression.Result{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return progression.Result{}, err
	}
	if err := tx.Users.UpdateProgress(ctx, user.ID, res.Experience, res.NewLevel, res.AbilityPoints); err != nil {
		return progression.Result{}, err
	}
	user.Experience = res.Experience
	user.Level = res.NewLevel
	user.AbilityPoints = res.AbilityPoints

	if res.LeveledUp {
		entry := &schema.ActivityLog{
			UserID:  user.ID,
			Kind:    "level_up",
			Message: fmt.Sprintf("%s 升到了 %d 级，获得 %d 能力点", user.Name, res.NewLevel, res.AbilityPointsGained),
			Meta: datatypes.JSONMap{
				"old_level":     res.OldLevel,
				"new_level":     res.NewLevel,
				"points_gained": res.AbilityPointsGained,
			},
			CreatedAt: at,
		}
		if err := tx.Activity.Append(ctx, entry); err != nil {
			return progression.Result{}, err
		}
	}
	return res, nil
}
