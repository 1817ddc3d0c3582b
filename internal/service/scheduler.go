package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yuqie6/Sanpai/internal/repository"
	"github.com/yuqie6/Sanpai/internal/schema"
)

// Scheduler 周期收割调度器
// 每次 tick 收割每类周期中已结束且仍有计数的周期，以及最近结束的周期；停机错过的边界在下次 tick 自动补上。
type Scheduler struct {
	store     *repository.Store
	harvester *Harvester
	interval  time.Duration
	opts      Options

	mu   sync.Mutex // 串行化 tick
	cron *cron.Cron
}

// NewScheduler 创建调度器；interval <= 0 时使用 30 秒
func NewScheduler(store *repository.Store, harvester *Harvester, interval time.Duration, opts Options) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		store:     store,
		harvester: harvester,
		interval:  interval,
		opts:      opts.withDefaults(),
	}
}

// PeriodStatus 某类周期的调度状态
type PeriodStatus struct {
	Kind          schema.PeriodKind     `json:"kind"`
	LastCompleted Period                `json:"last_completed"`
	Pending       bool                  `json:"pending"` // 最近结束的周期尚未收割
	Latest        *schema.HarvestMarker `json:"latest,omitempty"`
}

// Tick 执行一次检查，返回本次实际执行的收割
// 单类周期失败不影响其他周期，所有错误合并返回。
func (s *Scheduler) Tick(ctx context.Context) ([]HarvestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock.Now()
	var (
		reports []HarvestReport
		errs    []error
	)
	for _, kind := range schema.PeriodKinds {
		done, err := s.tickKind(ctx, kind, now)
		reports = append(reports, done...)
		if err != nil {
			slog.Error("周期收割失败", "kind", kind, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}
	return reports, errors.Join(errs...)
}

func (s *Scheduler) tickKind(ctx context.Context, kind schema.PeriodKind, now time.Time) ([]HarvestReport, error) {
	current, err := PeriodOf(kind, now, s.opts.Location)
	if err != nil {
		return nil, err
	}
	last, err := LastCompletedPeriod(kind, now, s.opts.Location)
	if err != nil {
		return nil, err
	}

	// 计数仍留在库里的已结束周期，加上最近结束的周期（即使没有计数也要落标记）
	stored, err := s.store.Counters.PeriodKeys(ctx, kind.Window())
	if err != nil {
		return nil, classifyStorageError(err)
	}
	keys := make([]string, 0, len(stored)+1)
	for _, key := range stored {
		if key < current.Key {
			keys = append(keys, key)
		}
	}
	if !slices.Contains(keys, last.Key) {
		keys = append(keys, last.Key)
		sort.Strings(keys)
	}

	var reports []HarvestReport
	for _, key := range keys {
		period, err := ParsePeriodKey(kind, key, s.opts.Location)
		if err != nil {
			slog.Warn("无法识别的计数周期，跳过", "kind", kind, "key", key, "error", err)
			continue
		}
		opts := HarvestOptions{}
		done, err := s.store.Markers.Exists(ctx, kind, key)
		if err != nil {
			return reports, classifyStorageError(err)
		}
		if done {
			// 已有标记但仍有计数：周期未结束时被手动收割过，结束后补收剩余部分
			rows, err := s.store.Counters.CountRows(ctx, kind.Window(), key)
			if err != nil {
				return reports, classifyStorageError(err)
			}
			if rows == 0 {
				continue
			}
			slog.Info("补收已标记周期的剩余计数", "period", period.ID(), "rows", rows)
			opts.Force = true
		}

		report, err := s.harvester.Harvest(ctx, kind, period.Start, opts)
		if err != nil {
			return reports, err
		}
		if report.AlreadyHarvested {
			continue
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// Status 各类周期的最近标记与待收割状态
func (s *Scheduler) Status(ctx context.Context) ([]PeriodStatus, error) {
	now := s.opts.Clock.Now()
	out := make([]PeriodStatus, 0, len(schema.PeriodKinds))
	for _, kind := range schema.PeriodKinds {
		period, err := LastCompletedPeriod(kind, now, s.opts.Location)
		if err != nil {
			return nil, err
		}
		latest, err := s.store.Markers.Latest(ctx, kind)
		if err != nil {
			return nil, classifyStorageError(err)
		}
		done, err := s.store.Markers.Exists(ctx, kind, period.Key)
		if err != nil {
			return nil, classifyStorageError(err)
		}
		out = append(out, PeriodStatus{
			Kind:          kind,
			LastCompleted: period,
			Pending:       !done,
			Latest:        latest,
		})
	}
	return out, nil
}

// Start 立即执行一次 tick，然后按固定间隔执行，直到 Stop
func (s *Scheduler) Start(ctx context.Context) error {
	s.runTick(ctx)

	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() { s.runTick(ctx) }); err != nil {
		return fmt.Errorf("注册调度任务失败: %w", err)
	}
	c.Start()
	s.cron = c
	slog.Info("收割调度已启动", "interval", s.interval.String(), "timezone", s.opts.Location.String())
	return nil
}

// Stop 停止调度并等待进行中的 tick 结束
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	slog.Info("收割调度已停止")
}

func (s *Scheduler) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	reports, err := s.Tick(ctx)
	if err != nil {
		// 已在 Tick 内逐项记录
		return
	}
	for _, r := range reports {
		slog.Debug("调度收割", "period", r.Period.ID(), "grants", r.Grants)
	}
}
