package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yuqie6/Sanpai/internal/eventbus"
	"github.com/yuqie6/Sanpai/internal/pkg/config"
	"github.com/yuqie6/Sanpai/internal/progression"
	"github.com/yuqie6/Sanpai/internal/repository"
	"github.com/yuqie6/Sanpai/internal/schema"
	"github.com/yuqie6/Sanpai/internal/testutil"
	"gorm.io/gorm"
)

var jst = time.FixedZone("JST", 9*3600)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(evt eventbus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *gorm.DB
	store     *repository.Store
	table     *progression.Table
	clock     *fakeClock
	events    *recordingPublisher
	opts      Options
	recorder  *Recorder
	harvester *Harvester

	site   *schema.Site
	groups []*schema.AffinityGroup
}

// newFixture 内存库 + 测试等级表 + 全部称号模板 + 一个关联两位祭神的地点
// 时钟固定在 2026-10-15 (周四) 10:00 JST。
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.OpenTestDB(t)
	store := repository.NewStore(db, nil)

	require.NoError(t, store.Levels.UpsertBatch(ctx, testutil.Levels()))
	require.NoError(t, store.Titles.UpsertTemplates(ctx, testutil.Templates()))
	table, err := progression.NewTable(testutil.Levels())
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 10, 15, 10, 0, 0, 0, jst)}
	events := &recordingPublisher{}
	opts := Options{
		Progression: config.ProgressionConfig{VisitExp: 10, RemoteExp: 10, WeeklyBonusExp: 50, TopN: 3},
		Location:    jst,
		Clock:       clock,
		Events:      events,
	}

	f := &fixture{
		t:         t,
		ctx:       ctx,
		db:        db,
		store:     store,
		table:     table,
		clock:     clock,
		events:    events,
		opts:      opts,
		recorder:  NewRecorder(store, table, store.Perks, store.Perks, opts),
		harvester: NewHarvester(store, table, opts),
	}
	f.site = f.newSite("伏見稲荷大社", 34.9671, 135.7727)
	f.groups = []*schema.AffinityGroup{f.newGroup("宇迦之御魂大神"), f.newGroup("佐田彦大神")}
	for _, g := range f.groups {
		require.NoError(t, store.Subjects.Link(ctx, f.site.ID, g.ID))
	}
	return f
}

func (f *fixture) newUser(name string, exp int64) *schema.User {
	f.t.Helper()
	u := &schema.User{Name: name, Experience: exp, Level: f.table.LevelFor(exp)}
	require.NoError(f.t, f.store.Users.Create(f.ctx, u))
	return u
}

func (f *fixture) newSite(name string, lat, lon float64) *schema.Site {
	f.t.Helper()
	s := &schema.Site{Name: name, Latitude: lat, Longitude: lon}
	require.NoError(f.t, f.store.Subjects.CreateSite(f.ctx, s))
	return s
}

func (f *fixture) newGroup(name string) *schema.AffinityGroup {
	f.t.Helper()
	g := &schema.AffinityGroup{Name: name}
	require.NoError(f.t, f.store.Subjects.CreateAffinityGroup(f.ctx, g))
	return g
}

// atSite 地点本身的坐标
func (f *fixture) atSite() *Location {
	return &Location{Latitude: f.site.Latitude, Longitude: f.site.Longitude}
}

func (f *fixture) direct(userID int64) RecordRequest {
	return RecordRequest{UserID: userID, SiteID: f.site.ID, Kind: schema.VisitDirect, Location: f.atSite()}
}

// slot 当前时钟下某时间窗所在的计数槽
func (f *fixture) slot(w schema.Window) schema.WindowSlot {
	f.t.Helper()
	kind := w.PeriodKind()
	if kind == "" {
		return schema.AllTime
	}
	p, err := PeriodOf(kind, f.clock.Now(), jst)
	require.NoError(f.t, err)
	return p.Slot()
}

// key 当前时钟下的计数键
func (f *fixture) key(st schema.SubjectType, subjectID, userID int64, w schema.Window) schema.CounterKey {
	return schema.CounterKey{SubjectType: st, SubjectID: subjectID, UserID: userID, Slot: f.slot(w)}
}

// bump 在当前时钟所在周期直接累加计数，模拟 n 次参拜
func (f *fixture) bump(st schema.SubjectType, subjectID, userID int64, n int, windows ...schema.Window) {
	f.t.Helper()
	if len(windows) == 0 {
		windows = schema.Windows
	}
	slots := make([]schema.WindowSlot, 0, len(windows))
	for _, w := range windows {
		slots = append(slots, f.slot(w))
	}
	for i := 0; i < n; i++ {
		require.NoError(f.t, f.store.Counters.Increment(f.ctx, st, subjectID, userID, slots))
	}
}

func (f *fixture) count(key schema.CounterKey) int64 {
	f.t.Helper()
	n, err := f.store.Counters.Get(f.ctx, key)
	require.NoError(f.t, err)
	return n
}

func (f *fixture) user(id int64) *schema.User {
	f.t.Helper()
	u, err := f.store.Users.GetByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, u)
	return u
}

func (f *fixture) rows(model any) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(model).Count(&n).Error)
	return n
}
