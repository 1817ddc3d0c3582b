package service

import (
	"context"
	"fmt"

	"github.com/yuqie6/Sanpai/internal/progression"
	"github.com/yuqie6/Sanpai/internal/repository"
	"github.com/yuqie6/Sanpai/internal/schema"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// LeaderboardEntry 排行榜一行
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	Count    int64  `json:"count"`
}

// UserProgress 用户进度视图
type UserProgress struct {
	UserID          int64   `json:"user_id"`
	Name            string  `json:"name"`
	Level           int     `json:"level"`
	MaxLevel        int     `json:"max_level"`
	Experience      int64   `json:"experience"`
	NextLevelExp    *int64  `json:"next_level_exp,omitempty"` // 满级时为空
	AbilityPoints   int64   `json:"ability_points"`
	AllowedRadius   float64 `json:"allowed_radius"`
	RemoteAllowance int64   `json:"remote_allowance"`
	RemoteUsed      int64   `json:"remote_used"`
	Perks           Perks   `json:"perks"`
}

// QueryService 只读查询
type QueryService struct {
	store        *repository.Store
	table        *progression.Table
	abilities    AbilityProvider
	entitlements EntitlementProvider
	opts         Options
}

// NewQueryService 创建查询服务
func NewQueryService(store *repository.Store, table *progression.Table, abilities AbilityProvider, entitlements EntitlementProvider, opts Options) *QueryService {
	return &QueryService{
		store:        store,
		table:        table,
		abilities:    abilities,
		entitlements: entitlements,
		opts:         opts.withDefaults(),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// Leaderboard 某对象在某时间窗当前周期内的排行（并列同名次）
func (q *QueryService) Leaderboard(ctx context.Context, st schema.SubjectType, subjectID int64, window schema.Window, limit int) ([]LeaderboardEntry, error) {
	if !st.Valid() {
		return nil, validationError("未知对象类型: %q", st)
	}
	if subjectID <= 0 {
		return nil, validationError("缺少对象")
	}
	if _, err := schema.ParseWindow(string(window)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	slot := schema.AllTime
	if kind := window.PeriodKind(); kind != "" {
		current, err := PeriodOf(kind, q.opts.Clock.Now(), q.opts.Location)
		if err != nil {
			return nil, err
		}
		slot = current.Slot()
	}
	ranked, err := q.store.Counters.Ranked(ctx, st, subjectID, slot, clampLimit(limit))
	if err != nil {
		return nil, classifyStorageError(err)
	}

	ids := make([]int64, 0, len(ranked))
	for _, e := range ranked {
		ids = append(ids, e.UserID)
	}
	names, err := q.store.Users.Names(ctx, ids)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	out := make([]LeaderboardEntry, 0, len(ranked))
	for _, e := range ranked {
		out = append(out, LeaderboardEntry{Rank: e.Rank, UserID: e.UserID, UserName: names[e.UserID], Count: e.Count})
	}
	return out, nil
}

// Activity 最近动态；userID 为 0 时返回全站
func (q *QueryService) Activity(ctx context.Context, userID int64, limit int) ([]schema.ActivityLog, error) {
	logs, err := q.store.Activity.Recent(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, classifyStorageError(err)
	}
	return logs, nil
}

// Titles 用户已获得的称号
func (q *QueryService) Titles(ctx context.Context, userID int64) ([]schema.TitleGrant, error) {
	if userID <= 0 {
		return nil, validationError("缺少用户")
	}
	grants, err := q.store.Titles.ListGrantsByUser(ctx, userID)
	if err != nil {
		return nil, classifyStorageError(err)
	}
	return grants, nil
}

// Progress 用户等级、经验与今日参拜额度
func (q *QueryService) Progress(ctx context.Context, userID int64) (*UserProgress, error) {
	if userID <= 0 {
		return nil, validationError("缺少用户")
	}
	user, err := q.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, classifyStorageError(err)
	}
	if user == nil {
		return nil, notFoundError("用户 %d", userID)
	}

	now := q.opts.Clock.Now()
	perks, err := loadPerks(ctx, q.abilities, q.entitlements, userID, now)
	if err != nil {
		return nil, err
	}
	level := q.table.LevelFor(user.Experience)
	def, err := q.table.Definition(level)
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd := repository.DayBounds(now, q.opts.Location)
	used, err := q.store.Visits.CountByKindBetween(ctx, userID, schema.VisitRemote, dayStart, dayEnd)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	p := &UserProgress{
		UserID:          user.ID,
		Name:            user.Name,
		Level:           level,
		MaxLevel:        q.table.MaxLevel(),
		Experience:      user.Experience,
		AbilityPoints:   user.AbilityPoints,
		AllowedRadius:   perks.AllowedRadius(def),
		RemoteAllowance: perks.RemoteAllowance(def),
		RemoteUsed:      used,
		Perks:           perks,
	}
	if next, ok := q.table.NextRequirement(level); ok {
		p.NextLevelExp = &next
	}
	return p, nil
}
