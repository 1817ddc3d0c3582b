package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/yuqie6/Sanpai/internal/eventbus"
	"github.com/yuqie6/Sanpai/internal/metrics"
	"github.com/yuqie6/Sanpai/internal/progression"
	"github.com/yuqie6/Sanpai/internal/repository"
	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/datatypes"
)

// HarvestOptions 收割选项
type HarvestOptions struct {
	// Force 忽略已有标记强制执行（管理端手动触发）；窗口已清空时再次执行不会重复发放
	Force bool
}

// HarvestReport 一次收割的结果
type HarvestReport struct {
	Period           Period `json:"period"`
	RunID            string `json:"run_id"`
	AlreadyHarvested bool   `json:"already_harvested"` // 其他实例或之前的运行已完成该周期
	Grants           int    `json:"grants"`
	BonusUsers       int    `json:"bonus_users"`
	SkippedSubjects  int    `json:"skipped_subjects"` // 缺少称号模板而跳过的对象数
	RewardedUsers    int    `json:"rewarded_users"`
	LevelUps         int    `json:"level_ups"`
	DeletedRows      int64  `json:"deleted_rows"`
}

// Harvester 排行收割器
type Harvester struct {
	store *repository.Store
	table *progression.Table
	opts  Options
}

// NewHarvester 创建收割器
func NewHarvester(store *repository.Store, table *progression.Table, opts Options) *Harvester {
	return &Harvester{store: store, table: table, opts: opts.withDefaults()}
}

// userAward 同一用户在一次收割中累计获得的奖励
type userAward struct {
	exp    int64
	titles []string
	bonus  int // 获得周榜第一奖励的对象数
}

type leveledUser struct {
	user   schema.User
	gained int64
}

// Harvest 收割 ref 所在的 kind 周期：排名发称号、周榜额外奖励、清空对应时间窗
// 整个过程在一个事务内完成，周期标记与收割同时提交。
func (h *Harvester) Harvest(ctx context.Context, kind schema.PeriodKind, ref time.Time, opts HarvestOptions) (*HarvestReport, error) {
	if !kind.Valid() {
		return nil, validationError("未知周期: %q", kind)
	}
	period, err := PeriodOf(kind, ref, h.opts.Location)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()

	started := time.Now()
	var (
		report  HarvestReport
		leveled []leveledUser
	)
	err = withRetry(ctx, "harvest", func() error {
		report = HarvestReport{Period: period, RunID: runID}
		leveled = leveled[:0]
		return h.store.InTx(ctx, func(tx *repository.Store) error {
			marker := &schema.HarvestMarker{PeriodKind: kind, PeriodKey: period.Key, RunID: runID}
			if opts.Force {
				if err := tx.Markers.Upsert(ctx, marker); err != nil {
					return err
				}
			} else {
				inserted, err := tx.Markers.TryInsert(ctx, marker)
				if err != nil {
					return err
				}
				if !inserted {
					report.AlreadyHarvested = true
					return nil
				}
			}

			if kind.Ranked() {
				ups, err := h.rank(ctx, tx, period, &report)
				if err != nil {
					return err
				}
				leveled = ups
			}

			deleted, err := tx.Counters.DeleteWindow(ctx, period.Slot())
			if err != nil {
				return err
			}
			report.DeletedRows = deleted
			return tx.Markers.SetGrants(ctx, kind, period.Key, report.Grants)
		})
	})
	if err != nil {
		metrics.RecordHarvest(string(kind), "error", 0)
		if errors.Is(err, ErrConfiguration) {
			slog.Error("等级表配置错误，收割中止", "period", period.ID(), "error", err)
		}
		return nil, err
	}

	if report.AlreadyHarvested {
		metrics.RecordHarvest(string(kind), "skipped", 0)
		slog.Debug("周期已收割，跳过", "period", period.ID())
		return &report, nil
	}

	metrics.RecordHarvest(string(kind), "ok", report.Grants)
	for i := range leveled {
		metrics.RecordLevelUp()
		publishLevelUp(h.opts.Events, &leveled[i].user, leveled[i].gained)
	}
	h.opts.Events.Publish(eventbus.Event{
		Type: eventbus.TypeHarvestCompleted,
		Data: map[string]any{
			"period":       period.ID(),
			"grants":       report.Grants,
			"bonus_users":  report.BonusUsers,
			"deleted_rows": report.DeletedRows,
			"force":        opts.Force,
		},
	})
	slog.Info("周期收割完成",
		"period", period.ID(),
		"grants", report.Grants,
		"bonus_users", report.BonusUsers,
		"skipped_subjects", report.SkippedSubjects,
		"deleted_rows", report.DeletedRows,
		"force", opts.Force,
		"elapsed", time.Since(started).String(),
	)
	return &report, nil
}

// rank 对两类对象排名、发放称号并结算经验
// 称号与周榜奖励读取同一份计数快照，时间窗由调用方在之后统一删除。
func (h *Harvester) rank(ctx context.Context, tx *repository.Store, period Period, report *HarvestReport) ([]leveledUser, error) {
	slot := period.Slot()
	now := h.opts.Clock.Now()
	awards := make(map[int64]*userAward)
	award := func(userID int64) *userAward {
		a, ok := awards[userID]
		if !ok {
			a = &userAward{}
			awards[userID] = a
		}
		return a
	}

	for _, st := range schema.SubjectTypes {
		ids, err := tx.Counters.SubjectsInWindow(ctx, st, slot)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			continue
		}
		tmpl, err := tx.Titles.GetTemplate(ctx, period.Kind, st)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			slog.Error("缺少称号模板，跳过该类对象", "period", period.ID(), "subject_type", st, "subjects", len(ids))
		}
		names, err := tx.Subjects.Names(ctx, st, ids)
		if err != nil {
			return nil, err
		}

		for _, id := range ids {
			ranked, err := tx.Counters.Ranked(ctx, st, id, slot, h.opts.Progression.TopN)
			if err != nil {
				return nil, err
			}
			if len(ranked) == 0 {
				continue
			}

			if period.Kind == schema.PeriodWeekly && h.opts.Progression.WeeklyBonusExp > 0 {
				for _, e := range ranked {
					if e.Rank != 1 {
						break
					}
					a := award(e.UserID)
					a.exp += h.opts.Progression.WeeklyBonusExp
					a.bonus++
				}
			}

			if tmpl == nil {
				report.SkippedSubjects++
				continue
			}
			for _, e := range ranked {
				vars := titleVars{
					SubjectType: st,
					SubjectID:   id,
					SubjectName: names[id],
					Rank:        e.Rank,
					Period:      period,
				}
				display := vars.render(tmpl.Display)
				if err := tx.Titles.UpsertGrant(ctx, &schema.TitleGrant{
					UserID:       e.UserID,
					TemplateCode: tmpl.Code,
					VarsKey:      vars.identityKey(),
					Variables:    vars.jsonMap(),
					Grade:        e.Rank,
					Display:      display,
					PeriodKey:    period.Key,
					AwardedAt:    now,
				}); err != nil {
					return nil, err
				}
				report.Grants++
				a := award(e.UserID)
				a.exp += tmpl.RewardExp
				a.titles = append(a.titles, display)
			}
		}
	}

	userIDs := make([]int64, 0, len(awards))
	for id, a := range awards {
		if a.bonus > 0 {
			report.BonusUsers++
		}
		userIDs = append(userIDs, id)
	}
	// 固定加锁顺序，避免与并发参拜互相等待
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	var leveled []leveledUser
	for _, id := range userIDs {
		a := awards[id]
		user, err := tx.Users.GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if user == nil {
			slog.Warn("获奖用户不存在，跳过奖励", "user_id", id, "period", period.ID())
			continue
		}
		res, err := grantExperience(ctx, tx, h.table, user, a.exp, now)
		if err != nil {
			return nil, err
		}
		report.RewardedUsers++
		if res.LeveledUp {
			report.LevelUps++
			leveled = append(leveled, leveledUser{user: *user, gained: res.AbilityPointsGained})
		}
		if err := appendAwardActivity(ctx, tx, user, period, a, now, h.opts.Progression.WeeklyBonusExp); err != nil {
			return nil, err
		}
	}
	return leveled, nil
}

func appendAwardActivity(ctx context.Context, tx *repository.Store, user *schema.User, period Period, a *userAward, at time.Time, bonusExp int64) error {
	for _, display := range a.titles {
		if err := tx.Activity.Append(ctx, &schema.ActivityLog{
			UserID:    user.ID,
			Kind:      "title",
			Message:   fmt.Sprintf("%s 获得称号「%s」", user.Name, display),
			Meta:      datatypes.JSONMap{"period": period.ID(), "display": display},
			CreatedAt: at,
		}); err != nil {
			return err
		}
	}
	if a.bonus > 0 {
		total := bonusExp * int64(a.bonus)
		if err := tx.Activity.Append(ctx, &schema.ActivityLog{
			UserID:    user.ID,
			Kind:      "weekly_bonus",
			Message:   fmt.Sprintf("%s 获得%s周榜第一奖励 %d 经验", user.Name, period.Label, total),
			Meta:      datatypes.JSONMap{"period": period.ID(), "exp": total, "subjects": a.bonus},
			CreatedAt: at,
		}); err != nil {
			return err
		}
	}
	return nil
}
