package repository

import (
	"fmt"
	"time"
)

// DayBounds 返回 t 所在本地日的 [start, end)；loc 为 nil 时使用 t 自带时区
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc != nil {
		t = t.In(loc)
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// ParseDay 将 YYYY-MM-DD 解析为 loc 时区当天零点
func ParseDay(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析日期失败: %w", err)
	}
	return t, nil
}
