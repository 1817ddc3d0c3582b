package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yuqie6/Sanpai/internal/eventbus"
	"github.com/yuqie6/Sanpai/internal/metrics"
	"github.com/yuqie6/Sanpai/internal/pkg/config"
	"github.com/yuqie6/Sanpai/internal/progression"
	"github.com/yuqie6/Sanpai/internal/repository"
	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/datatypes"
)

// Options 记录器、收割器、调度器共用的运行参数
type Options struct {
	Progression config.ProgressionConfig
	Location    *time.Location // 日/周/月/年边界所在时区
	Clock       Clock
	Events      EventPublisher
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Events == nil {
		o.Events = nopPublisher{}
	}
	if o.Progression.TopN <= 0 {
		o.Progression.TopN = 3
	}
	return o
}

// RecordRequest 一次参拜请求；现场参拜必须带位置
type RecordRequest struct {
	UserID   int64
	SiteID   int64
	Kind     schema.VisitKind
	Location *Location
}

// RecordResult 参拜结果
type RecordResult struct {
	UserCount           int64 `json:"user_count"` // 该用户累计参拜此地点次数
	SiteTotal           int64 `json:"site_total"` // 此地点累计被参拜次数
	LeveledUp           bool  `json:"leveled_up"`
	NewLevel            int   `json:"new_level"`
	AbilityPointsGained int64 `json:"ability_points_gained"`
	Experience          int64 `json:"experience"`
}

// Recorder 参拜记录器
// 一次参拜在单个事务内完成：写事件、更新名录、五个时间窗计数（地点与关联祭神）、加经验、写动态。
type Recorder struct {
	store        *repository.Store
	table        *progression.Table
	abilities    AbilityProvider
	entitlements EntitlementProvider
	opts         Options
}

// NewRecorder 创建记录器
func NewRecorder(store *repository.Store, table *progression.Table, abilities AbilityProvider, entitlements EntitlementProvider, opts Options) *Recorder {
	return &Recorder{
		store:        store,
		table:        table,
		abilities:    abilities,
		entitlements: entitlements,
		opts:         opts.withDefaults(),
	}
}

func (r *Recorder) rewardFor(kind schema.VisitKind) int64 {
	if kind == schema.VisitRemote {
		return r.opts.Progression.RemoteExp
	}
	return r.opts.Progression.VisitExp
}

func (r *Recorder) validate(req RecordRequest) error {
	if req.UserID <= 0 {
		return validationError("缺少用户")
	}
	if req.SiteID <= 0 {
		return validationError("缺少地点")
	}
	if !req.Kind.Valid() {
		return validationError("未知参拜方式: %q", req.Kind)
	}
	if req.Kind == schema.VisitDirect {
		if req.Location == nil {
			return validationError("现场参拜需要提供位置")
		}
		if !req.Location.valid() {
			return validationError("位置超出经纬度范围")
		}
	}
	return nil
}

// RecordEvent 记录一次参拜
// 校验与规则检查失败时不写入任何数据；存储冲突会有限次重试。
func (r *Recorder) RecordEvent(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	result, err := r.record(ctx, req)
	if err != nil {
		metrics.RecordRejection(rejectionReason(err))
		if errors.Is(err, ErrConfiguration) {
			slog.Error("等级表配置错误，参拜中止", "user_id", req.UserID, "site_id", req.SiteID, "error", err)
		}
		return nil, err
	}
	metrics.RecordVisit(string(req.Kind))
	return result, nil
}

func (r *Recorder) record(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	if err := r.validate(req); err != nil {
		return nil, err
	}
	now := r.opts.Clock.Now()

	user, err := r.store.Users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, classifyStorageError(err)
	}
	if user == nil {
		return nil, notFoundError("用户 %d", req.UserID)
	}
	site, err := r.store.Subjects.GetSite(ctx, req.SiteID)
	if err != nil {
		return nil, classifyStorageError(err)
	}
	if site == nil {
		return nil, notFoundError("地点 %d", req.SiteID)
	}
	groups, err := r.store.Subjects.AffinityGroupsForSite(ctx, site.ID)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	// 能力与权益来自外部子系统，在事务外读取
	perks, err := loadPerks(ctx, r.abilities, r.entitlements, user.ID, now)
	if err != nil {
		return nil, err
	}
	loc := r.opts.Location
	dayStart, dayEnd := repository.DayBounds(now, loc)

	var (
		result  RecordResult
		updated schema.User
	)
	err = withRetry(ctx, "record_visit", func() error {
		return r.store.InTx(ctx, func(tx *repository.Store) error {
			locked, err := tx.Users.GetForUpdate(ctx, user.ID)
			if err != nil {
				return err
			}
			if locked == nil {
				return notFoundError("用户 %d", user.ID)
			}
			def, err := r.table.Definition(r.table.LevelFor(locked.Experience))
			if err != nil {
				return err
			}

			switch req.Kind {
			case schema.VisitDirect:
				dist := haversineMeters(*req.Location, Location{Latitude: site.Latitude, Longitude: site.Longitude})
				if allowed := perks.AllowedRadius(def); dist > allowed {
					return &DistanceExceededError{Distance: dist, Allowed: allowed}
				}
				today, err := tx.Counters.Get(ctx, schema.CounterKey{
					SubjectType: schema.SubjectSite,
					SubjectID:   site.ID,
					UserID:      user.ID,
					Slot:        schema.WindowSlot{Window: schema.WindowDaily, PeriodKey: dayStart.Format("2006-01-02")},
				})
				if err != nil {
					return err
				}
				if today > 0 {
					return &AlreadyVisitedError{SiteID: site.ID}
				}
			case schema.VisitRemote:
				used, err := tx.Visits.CountByKindBetween(ctx, user.ID, schema.VisitRemote, dayStart, dayEnd)
				if err != nil {
					return err
				}
				if allowed := perks.RemoteAllowance(def); used >= allowed {
					return &RemoteQuotaError{Max: allowed, Used: used}
				}
			}

			if err := tx.Visits.Create(ctx, &schema.VisitEvent{
				UserID:    user.ID,
				SiteID:    site.ID,
				Kind:      req.Kind,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			if err := touchSubject(ctx, tx, schema.SubjectSite, site.ID, user.ID, now, loc); err != nil {
				return err
			}
			for _, g := range groups {
				if err := touchSubject(ctx, tx, schema.SubjectAffinity, g.ID, user.ID, now, loc); err != nil {
					return err
				}
			}

			userCount, err := tx.Counters.Get(ctx, schema.CounterKey{
				SubjectType: schema.SubjectSite,
				SubjectID:   site.ID,
				UserID:      user.ID,
				Slot:        schema.AllTime,
			})
			if err != nil {
				return err
			}
			siteTotal, err := tx.Counters.SubjectTotal(ctx, schema.SubjectSite, site.ID, schema.AllTime)
			if err != nil {
				return err
			}

			res, err := grantExperience(ctx, tx, r.table, locked, r.rewardFor(req.Kind), now)
			if err != nil {
				return err
			}
			if err := tx.Activity.Append(ctx, visitActivity(locked, site, groups, req.Kind, userCount, now)); err != nil {
				return err
			}

			updated = *locked
			result = RecordResult{
				UserCount:           userCount,
				SiteTotal:           siteTotal,
				LeveledUp:           res.LeveledUp,
				NewLevel:            res.NewLevel,
				AbilityPointsGained: res.AbilityPointsGained,
				Experience:          res.Experience,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("参拜已记录", "user_id", user.ID, "site_id", site.ID, "kind", req.Kind, "count", result.UserCount)
	r.opts.Events.Publish(eventbus.Event{
		Type:   eventbus.TypeVisitRecorded,
		UserID: user.ID,
		Data: map[string]any{
			"site_id":    site.ID,
			"kind":       string(req.Kind),
			"user_count": result.UserCount,
			"site_total": result.SiteTotal,
		},
	})
	if result.LeveledUp {
		metrics.RecordLevelUp()
		publishLevelUp(r.opts.Events, &updated, result.AbilityPointsGained)
	}
	return &result, nil
}

func loadPerks(ctx context.Context, abilityProvider AbilityProvider, entitlementProvider EntitlementProvider, userID int64, now time.Time) (Perks, error) {
	var (
		abilities    []schema.UserAbility
		entitlements []string
		err          error
	)
	if abilityProvider != nil {
		if abilities, err = abilityProvider.OwnedAbilities(ctx, userID); err != nil {
			return Perks{}, classifyStorageError(fmt.Errorf("查询用户能力失败: %w", err))
		}
	}
	if entitlementProvider != nil {
		if entitlements, err = entitlementProvider.ActiveEntitlements(ctx, userID, now); err != nil {
			return Perks{}, classifyStorageError(fmt.Errorf("查询用户权益失败: %w", err))
		}
	}
	return collectPerks(abilities, entitlements), nil
}

// touchSubject 更新名录并累加 at 所在的五个计数槽
func touchSubject(ctx context.Context, tx *repository.Store, st schema.SubjectType, subjectID, userID int64, at time.Time, loc *time.Location) error {
	if err := tx.Catalog.Touch(ctx, userID, st, subjectID, at); err != nil {
		return err
	}
	return tx.Counters.Increment(ctx, st, subjectID, userID, slotsAt(at, loc))
}

func visitActivity(user *schema.User, site *schema.Site, groups []schema.AffinityGroup, kind schema.VisitKind, count int64, at time.Time) *schema.ActivityLog {
	verb := "参拜了"
	if kind == schema.VisitRemote {
		verb = "遥拜了"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s%s", user.Name, verb, site.Name)
	groupIDs := make([]int64, 0, len(groups))
	if len(groups) > 0 {
		names := make([]string, 0, len(groups))
		for _, g := range groups {
			names = append(names, g.Name)
			groupIDs = append(groupIDs, g.ID)
		}
		fmt.Fprintf(&b, "（%s）", strings.Join(names, "、"))
	}
	fmt.Fprintf(&b, "，累计第 %s 次", humanize.Comma(count))

	return &schema.ActivityLog{
		UserID:  user.ID,
		Kind:    string(kind),
		Message: b.String(),
		Meta: datatypes.JSONMap{
			"site_id":   site.ID,
			"group_ids": groupIDs,
			"count":     count,
		},
		CreatedAt: at,
	}
}

func publishLevelUp(events EventPublisher, user *schema.User, gained int64) {
	events.Publish(eventbus.Event{
		Type:   eventbus.TypeLevelUp,
		UserID: user.ID,
		Data: map[string]any{
			"level":         user.Level,
			"experience":    user.Experience,
			"points_gained": gained,
		},
	})
}

func rejectionReason(err error) string {
	var (
		distErr  *DistanceExceededError
		dupErr   *AlreadyVisitedError
		quotaErr *RemoteQuotaError
	)
	switch {
	case errors.As(err, &distErr):
		return "distance"
	case errors.As(err, &dupErr):
		return "already_visited"
	case errors.As(err, &quotaErr):
		return "remote_quota"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrStorage):
		return "storage"
	}
	return "other"
}
