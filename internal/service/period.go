package service

import (
	"fmt"
	"time"

	"github.com/yuqie6/Sanpai/internal/schema"
)

// Period 一个具体的统计周期，[Start, End)
type Period struct {
	Kind  schema.PeriodKind `json:"kind"`
	Key   string            `json:"key"`   // 2026-10-14 / 2026-W41 / 2026-10 / 2026
	Label string            `json:"label"` // 称号中 {period} 的展示文本
	Start time.Time         `json:"start"`
	End   time.Time         `json:"end"`
}

// ID 全局唯一的周期标识，如 weekly:2026-W41
func (p Period) ID() string {
	return string(p.Kind) + ":" + p.Key
}

// Slot 周期对应的计数槽
func (p Period) Slot() schema.WindowSlot {
	return schema.WindowSlot{Window: p.Kind.Window(), PeriodKey: p.Key}
}

// slotsAt t 时刻一次参拜需要累加的全部计数槽
func slotsAt(t time.Time, loc *time.Location) []schema.WindowSlot {
	slots := make([]schema.WindowSlot, 0, len(schema.Windows))
	for _, w := range schema.Windows {
		kind := w.PeriodKind()
		if kind == "" {
			slots = append(slots, schema.AllTime)
			continue
		}
		p, _ := PeriodOf(kind, t, loc)
		slots = append(slots, p.Slot())
	}
	return slots
}

// PeriodOf 返回 t 在 loc 时区下所属的周期
// 周按 ISO 8601 计算，周一为一周开始。
func PeriodOf(kind schema.PeriodKind, t time.Time, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)

	switch kind {
	case schema.PeriodDaily:
		return Period{
			Kind:  kind,
			Key:   day.Format("2006-01-02"),
			Label: day.Format("2006-01-02"),
			Start: day,
			End:   day.AddDate(0, 0, 1),
		}, nil
	case schema.PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7 // 周一为 0
		start := day.AddDate(0, 0, -offset)
		year, week := start.ISOWeek()
		return Period{
			Kind:  kind,
			Key:   fmt.Sprintf("%04d-W%02d", year, week),
			Label: fmt.Sprintf("%d年第%d周", year, week),
			Start: start,
			End:   start.AddDate(0, 0, 7),
		}, nil
	case schema.PeriodMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
		return Period{
			Kind:  kind,
			Key:   start.Format("2006-01"),
			Label: fmt.Sprintf("%d年%d月", start.Year(), int(start.Month())),
			Start: start,
			End:   start.AddDate(0, 1, 0),
		}, nil
	case schema.PeriodYearly:
		start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return Period{
			Kind:  kind,
			Key:   start.Format("2006"),
			Label: fmt.Sprintf("%d年", start.Year()),
			Start: start,
			End:   start.AddDate(1, 0, 0),
		}, nil
	}
	return Period{}, validationError("未知周期: %q", kind)
}

// LastCompletedPeriod now 所在周期的上一个周期
func LastCompletedPeriod(kind schema.PeriodKind, now time.Time, loc *time.Location) (Period, error) {
	cur, err := PeriodOf(kind, now, loc)
	if err != nil {
		return Period{}, err
	}
	return PeriodOf(kind, cur.Start.Add(-time.Nanosecond), loc)
}

// ParsePeriodKey 由周期键还原周期，如 weekly + 2026-W41
func ParsePeriodKey(kind schema.PeriodKind, key string, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.Local
	}
	var (
		at  time.Time
		err error
	)
	switch kind {
	case schema.PeriodDaily:
		at, err = time.ParseInLocation("2006-01-02", key, loc)
	case schema.PeriodWeekly:
		var year, week int
		if _, scanErr := fmt.Sscanf(key, "%d-W%d", &year, &week); scanErr != nil {
			err = scanErr
			break
		}
		// 1 月 4 日总在第 1 周
		jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
		monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
		at = monday.AddDate(0, 0, (week-1)*7)
	case schema.PeriodMonthly:
		at, err = time.ParseInLocation("2006-01", key, loc)
	case schema.PeriodYearly:
		at, err = time.ParseInLocation("2006", key, loc)
	default:
		return Period{}, validationError("未知周期: %q", kind)
	}
	if err != nil {
		return Period{}, validationError("无效周期键 %s:%s", kind, key)
	}
	p, err := PeriodOf(kind, at, loc)
	if err != nil {
		return Period{}, err
	}
	if p.Key != key {
		return Period{}, validationError("无效周期键 %s:%s", kind, key)
	}
	return p, nil
}

// ParsePeriodKind 解析周期名称
func ParsePeriodKind(s string) (schema.PeriodKind, error) {
	kind := schema.PeriodKind(s)
	if !kind.Valid() {
		return "", validationError("未知周期: %q", s)
	}
	return kind, nil
}
