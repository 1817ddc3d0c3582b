package testutil

import (
	"testing"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
)

// Levels 测试用等级表：1 级 0 经验，2 级 40 经验
func Levels() []schema.LevelDefinition {
	return []schema.LevelDefinition{
		{Level: 1, RequiredExperience: 0, BaseRadius: 100, BaseRemoteAllowance: 1, AbilityPointsGranted: 0},
		{Level: 2, RequiredExperience: 40, BaseRadius: 150, BaseRemoteAllowance: 2, AbilityPointsGranted: 1},
		{Level: 3, RequiredExperience: 100, BaseRadius: 200, BaseRemoteAllowance: 2, AbilityPointsGranted: 2},
		{Level: 4, RequiredExperience: 200, BaseRadius: 300, BaseRemoteAllowance: 3, AbilityPointsGranted: 3},
		{Level: 5, RequiredExperience: 400, BaseRadius: 500, BaseRemoteAllowance: 3, AbilityPointsGranted: 5},
	}
}

// Templates 测试用称号模板（周/月/年 × 地点/祭神）
func Templates() []schema.TitleTemplate {
	return []schema.TitleTemplate{
		{Code: "weekly_site", PeriodKind: schema.PeriodWeekly, SubjectType: schema.SubjectSite, Display: "{period} {subject_name} {rank_label}", RewardExp: 20},
		{Code: "weekly_affinity", PeriodKind: schema.PeriodWeekly, SubjectType: schema.SubjectAffinity, Display: "{period} {subject_name}崇敬者 {rank_label}", RewardExp: 20},
		{Code: "monthly_site", PeriodKind: schema.PeriodMonthly, SubjectType: schema.SubjectSite, Display: "{period} {subject_name} {rank_label}", RewardExp: 50},
		{Code: "monthly_affinity", PeriodKind: schema.PeriodMonthly, SubjectType: schema.SubjectAffinity, Display: "{period} {subject_name}崇敬者 {rank_label}", RewardExp: 50},
		{Code: "yearly_site", PeriodKind: schema.PeriodYearly, SubjectType: schema.SubjectSite, Display: "{period} {subject_name} {rank_label}", RewardExp: 200},
		{Code: "yearly_affinity", PeriodKind: schema.PeriodYearly, SubjectType: schema.SubjectAffinity, Display: "{period} {subject_name}崇敬者 {rank_label}", RewardExp: 200},
	}
}

// MustCreate 写入任意记录，失败时终止测试
func MustCreate(t *testing.T, db *gorm.DB, values ...any) {
	t.Helper()
	for _, v := range values {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("create %T: %v", v, err)
		}
	}
}
