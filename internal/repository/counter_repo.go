package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RankedEntry 排行中的一行；并列时名次相同（竞赛排名 1,1,3）
type RankedEntry struct {
	UserID int64
	Count  int64
	Rank   int
}

// CounterRepository 聚合计数仓储
// 所有时间窗、所有对象类型共用一张表，以 {subject_type, subject_id, user_id, window, period_key} 寻址。
type CounterRepository struct {
	db *gorm.DB
}

// NewCounterRepository 创建仓储
func NewCounterRepository(db *gorm.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

var counterConflictColumns = []clause.Column{
	{Name: "subject_type"},
	{Name: "subject_id"},
	{Name: "user_id"},
	{Name: "time_window"},
	{Name: "period_key"},
}

// Increment 对给定对象在多个时间窗槽上各加 1，行不存在时以 1 创建
// 单条 INSERT ... ON CONFLICT DO UPDATE，避免先读后写丢失并发增量。
func (r *CounterRepository) Increment(ctx context.Context, st schema.SubjectType, subjectID, userID int64, slots []schema.WindowSlot) error {
	if len(slots) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]schema.AggregateCounter, 0, len(slots))
	for _, slot := range slots {
		rows = append(rows, schema.AggregateCounter{
			SubjectType: st,
			SubjectID:   subjectID,
			UserID:      userID,
			Window:      slot.Window,
			PeriodKey:   slot.PeriodKey,
			VisitCount:  1,
			UpdatedAt:   now,
		})
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: counterConflictColumns,
		DoUpdates: clause.Assignments(map[string]any{
			"visit_count": gorm.Expr("aggregate_counters.visit_count + ?", 1),
			"updated_at":  now,
		}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("累加计数失败: %w", err)
	}
	return nil
}

func (r *CounterRepository) slot(ctx context.Context, slot schema.WindowSlot) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&schema.AggregateCounter{}).
		Where("time_window = ? AND period_key = ?", slot.Window, slot.PeriodKey)
}

// Get 读取单个计数；不存在视为 0
func (r *CounterRepository) Get(ctx context.Context, key schema.CounterKey) (int64, error) {
	var row schema.AggregateCounter
	err := r.slot(ctx, key.Slot).
		Where("subject_type = ? AND subject_id = ? AND user_id = ?", key.SubjectType, key.SubjectID, key.UserID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("查询计数失败: %w", err)
	}
	return row.VisitCount, nil
}

// SubjectTotal 某对象在某时间窗槽内所有用户的计数之和
func (r *CounterRepository) SubjectTotal(ctx context.Context, st schema.SubjectType, subjectID int64, slot schema.WindowSlot) (int64, error) {
	var total int64
	err := r.slot(ctx, slot).
		Select("COALESCE(SUM(visit_count), 0)").
		Where("subject_type = ? AND subject_id = ?", st, subjectID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("统计对象计数失败: %w", err)
	}
	return total, nil
}

// SubjectsInWindow 时间窗槽内至少有一行计数的对象 ID，升序
func (r *CounterRepository) SubjectsInWindow(ctx context.Context, st schema.SubjectType, slot schema.WindowSlot) ([]int64, error) {
	var ids []int64
	err := r.slot(ctx, slot).
		Distinct("subject_id").
		Where("subject_type = ?", st).
		Order("subject_id ASC").
		Pluck("subject_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询时间窗对象失败: %w", err)
	}
	return ids, nil
}

// Ranked 某对象在时间窗槽内名次 <= topN 的全部用户（并列全部入选）
// 先取第 topN 行的计数作为门槛，再取计数 >= 门槛的所有行。
func (r *CounterRepository) Ranked(ctx context.Context, st schema.SubjectType, subjectID int64, slot schema.WindowSlot, topN int) ([]RankedEntry, error) {
	if topN <= 0 {
		return nil, nil
	}
	scope := func() *gorm.DB {
		return r.slot(ctx, slot).
			Where("subject_type = ? AND subject_id = ? AND visit_count > 0", st, subjectID)
	}

	var cutoff []int64
	if err := scope().Order("visit_count DESC").Offset(topN-1).Limit(1).Pluck("visit_count", &cutoff).Error; err != nil {
		return nil, fmt.Errorf("查询排行门槛失败: %w", err)
	}
	var threshold int64 = 1
	if len(cutoff) == 1 {
		threshold = cutoff[0]
	}

	var rows []schema.AggregateCounter
	if err := scope().Where("visit_count >= ?", threshold).Order("visit_count DESC, user_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询排行失败: %w", err)
	}

	out := make([]RankedEntry, 0, len(rows))
	rank := 0
	for i, row := range rows {
		if i == 0 || row.VisitCount < rows[i-1].VisitCount {
			rank = i + 1
		}
		out = append(out, RankedEntry{UserID: row.UserID, Count: row.VisitCount, Rank: rank})
	}
	return out, nil
}

// DeleteWindow 删除时间窗中某一周期的全部计数行（两种对象类型），返回删除行数
// 其他周期（包括边界之后已经写入的新周期）的行保持不变。
func (r *CounterRepository) DeleteWindow(ctx context.Context, slot schema.WindowSlot) (int64, error) {
	if slot.Window == schema.WindowAll || slot.PeriodKey == "" {
		return 0, fmt.Errorf("累计窗口不可清空")
	}
	res := r.db.WithContext(ctx).
		Where("time_window = ? AND period_key = ?", slot.Window, slot.PeriodKey).
		Delete(&schema.AggregateCounter{})
	if res.Error != nil {
		return 0, fmt.Errorf("清空时间窗失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PeriodKeys 时间窗内仍有计数行的周期，升序
func (r *CounterRepository) PeriodKeys(ctx context.Context, window schema.Window) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&schema.AggregateCounter{}).
		Distinct("period_key").
		Where("time_window = ?", window).
		Pluck("period_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("查询时间窗周期失败: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// CountRows 时间窗内的计数行数；periodKey 为空时统计全部周期
func (r *CounterRepository) CountRows(ctx context.Context, window schema.Window, periodKey string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&schema.AggregateCounter{}).Where("time_window = ?", window)
	if periodKey != "" {
		q = q.Where("period_key = ?", periodKey)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计计数行失败: %w", err)
	}
	return n, nil
}
