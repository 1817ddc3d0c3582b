package schema

import (
	"time"

	"gorm.io/datatypes"
)

// PeriodKind 排行周期
type PeriodKind string

const (
	PeriodDaily   PeriodKind = "daily"
	PeriodWeekly  PeriodKind = "weekly"
	PeriodMonthly PeriodKind = "monthly"
	PeriodYearly  PeriodKind = "yearly"
)

// PeriodKinds 调度器检查顺序
var PeriodKinds = []PeriodKind{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly}

// Window 周期对应的聚合时间窗
func (k PeriodKind) Window() Window {
	switch k {
	case PeriodDaily:
		return WindowDaily
	case PeriodWeekly:
		return WindowWeekly
	case PeriodMonthly:
		return WindowMonthly
	case PeriodYearly:
		return WindowYearly
	}
	return ""
}

// Valid 是否为已知周期
func (k PeriodKind) Valid() bool {
	return k.Window() != ""
}

// Ranked 该周期是否产生称号（daily 只清窗口）
func (k PeriodKind) Ranked() bool {
	return k == PeriodWeekly || k == PeriodMonthly || k == PeriodYearly
}

// TitleTemplate 称号模板
// Display 中的 {subject_name} {subject_id} {rank} {rank_label} {period} 在发放时替换。
type TitleTemplate struct {
	Code        string      `gorm:"primaryKey;size:64" json:"code" yaml:"code"`
	PeriodKind  PeriodKind  `gorm:"size:16;not null;uniqueIndex:uniq_title_scope,priority:1" json:"period_kind" yaml:"period_kind"`
	SubjectType SubjectType `gorm:"size:16;not null;uniqueIndex:uniq_title_scope,priority:2" json:"subject_type" yaml:"subject_type"`
	Display     string      `gorm:"size:255;not null" json:"display" yaml:"display"`
	RewardExp   int64       `gorm:"not null;default:0" json:"reward_exp" yaml:"reward_exp"`
}

func (TitleTemplate) TableName() string {
	return "title_templates"
}

// TitleGrant 已发放的称号
// (user, template, vars_key) 唯一：同一对象再次上榜时刷新名次与时间，不新增行。
type TitleGrant struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64             `gorm:"not null;uniqueIndex:uniq_title_grant,priority:1" json:"user_id"`
	TemplateCode string            `gorm:"size:64;not null;uniqueIndex:uniq_title_grant,priority:2" json:"template_code"`
	VarsKey      string            `gorm:"size:255;not null;uniqueIndex:uniq_title_grant,priority:3" json:"vars_key"`
	Variables    datatypes.JSONMap `json:"variables"`
	Grade        int               `gorm:"not null" json:"grade"`
	Display      string            `gorm:"size:255;not null" json:"display"`
	PeriodKey    string            `gorm:"size:32;not null" json:"period_key"`
	AwardedAt    time.Time         `gorm:"not null;index" json:"awarded_at"`
}

func (TitleGrant) TableName() string {
	return "title_grants"
}
