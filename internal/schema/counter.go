package schema

import (
	"fmt"
	"time"
)

// SubjectType 计数对象类型
type SubjectType string

const (
	SubjectSite     SubjectType = "site"
	SubjectAffinity SubjectType = "affinity"
)

// SubjectTypes 所有计数对象类型，按收割顺序排列
var SubjectTypes = []SubjectType{SubjectSite, SubjectAffinity}

// Valid 是否为已知类型
func (t SubjectType) Valid() bool {
	return t == SubjectSite || t == SubjectAffinity
}

// Window 聚合时间窗
type Window string

const (
	WindowAll     Window = "all"
	WindowYearly  Window = "yearly"
	WindowMonthly Window = "monthly"
	WindowWeekly  Window = "weekly"
	WindowDaily   Window = "daily"
)

// Windows 每次参拜都要累加的全部时间窗
var Windows = []Window{WindowAll, WindowYearly, WindowMonthly, WindowWeekly, WindowDaily}

// ParseWindow 解析时间窗名称
func ParseWindow(s string) (Window, error) {
	w := Window(s)
	for _, known := range Windows {
		if w == known {
			return w, nil
		}
	}
	return "", fmt.Errorf("未知时间窗: %q", s)
}

// WindowSlot 时间窗中的一个具体周期；累计窗口的 PeriodKey 为空
type WindowSlot struct {
	Window    Window
	PeriodKey string // 2026-10-15 / 2026-W42 / 2026-10 / 2026
}

// AllTime 累计窗口
var AllTime = WindowSlot{Window: WindowAll}

// PeriodKind 时间窗对应的周期；累计窗口返回空
func (w Window) PeriodKind() PeriodKind {
	switch w {
	case WindowDaily:
		return PeriodDaily
	case WindowWeekly:
		return PeriodWeekly
	case WindowMonthly:
		return PeriodMonthly
	case WindowYearly:
		return PeriodYearly
	}
	return ""
}

// AggregateCounter (对象, 用户, 时间窗, 周期) 的参拜计数
// 计数写入时就落在当前周期上，收割只删除被收割周期的行，边界之后的增量不受影响。
type AggregateCounter struct {
	ID          int64       `gorm:"primaryKey;autoIncrement"`
	SubjectType SubjectType `gorm:"size:16;not null;uniqueIndex:uniq_counter_slot,priority:1;index:idx_counter_window,priority:1"`
	SubjectID   int64       `gorm:"not null;uniqueIndex:uniq_counter_slot,priority:2"`
	UserID      int64       `gorm:"not null;uniqueIndex:uniq_counter_slot,priority:3"`
	Window      Window      `gorm:"column:time_window;size:16;not null;uniqueIndex:uniq_counter_slot,priority:4;index:idx_counter_window,priority:2"`
	PeriodKey   string      `gorm:"size:16;not null;default:'';uniqueIndex:uniq_counter_slot,priority:5;index:idx_counter_window,priority:3"`
	VisitCount  int64       `gorm:"not null;default:0"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime"`
}

func (AggregateCounter) TableName() string {
	return "aggregate_counters"
}

// CounterKey 计数器复合键
type CounterKey struct {
	SubjectType SubjectType
	SubjectID   int64
	UserID      int64
	Slot        WindowSlot
}
