package schema

import "time"

// HarvestMarker 记录已完成收割的周期，(kind, period_key) 唯一
// 多实例同时触发同一边界时，只有插入成功的一方会执行收割。
type HarvestMarker struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PeriodKind PeriodKind `gorm:"size:16;not null;uniqueIndex:uniq_harvest_period,priority:1" json:"period_kind"`
	PeriodKey  string     `gorm:"size:32;not null;uniqueIndex:uniq_harvest_period,priority:2" json:"period_key"`
	RunID      string     `gorm:"size:36;not null" json:"run_id"`
	Grants     int        `gorm:"not null;default:0" json:"grants"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (HarvestMarker) TableName() string {
	return "harvest_markers"
}
