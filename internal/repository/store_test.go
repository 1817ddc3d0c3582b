package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yuqie6/Sanpai/internal/schema"
	"github.com/yuqie6/Sanpai/internal/testutil"
)

func TestStoreInTxRollsBackEverything(t *testing.T) {
	db := testutil.OpenTestDB(t)
	store := NewStore(db, nil)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx *Store) error {
		if err := tx.Visits.Create(ctx, &schema.VisitEvent{UserID: 1, SiteID: 1, Kind: schema.VisitDirect}); err != nil {
			return err
		}
		if err := tx.Counters.Increment(ctx, schema.SubjectSite, 1, 1, []schema.WindowSlot{schema.AllTime}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}

	var visits, counters int64
	db.Model(&schema.VisitEvent{}).Count(&visits)
	db.Model(&schema.AggregateCounter{}).Count(&counters)
	if visits != 0 || counters != 0 {
		t.Fatalf("visits=%d counters=%d, want nothing committed", visits, counters)
	}
}

func TestCatalogTouchKeepsFirstSeen(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()

	first := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)
	if err := repo.Touch(ctx, 1, schema.SubjectSite, 2, first); err != nil {
		t.Fatalf("Touch error: %v", err)
	}
	if err := repo.Touch(ctx, 1, schema.SubjectSite, 2, later); err != nil {
		t.Fatalf("Touch error: %v", err)
	}

	got, err := repo.Get(ctx, 1, schema.SubjectSite, 2)
	if err != nil || got == nil {
		t.Fatalf("Get got=%v err=%v", got, err)
	}
	if !got.FirstSeenAt.Equal(first) || !got.LastVisitedAt.Equal(later) {
		t.Fatalf("first=%v last=%v", got.FirstSeenAt, got.LastVisitedAt)
	}
}

func TestTitleUpsertGrantRefreshesExisting(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewTitleRepository(db)
	ctx := context.Background()

	g := &schema.TitleGrant{UserID: 1, TemplateCode: "monthly_site", VarsKey: "site:1:2026-10", Grade: 2, Display: "old", PeriodKey: "2026-10", AwardedAt: time.Now()}
	if err := repo.UpsertGrant(ctx, g); err != nil {
		t.Fatalf("UpsertGrant error: %v", err)
	}
	g2 := &schema.TitleGrant{UserID: 1, TemplateCode: "monthly_site", VarsKey: "site:1:2026-10", Grade: 1, Display: "new", PeriodKey: "2026-10", AwardedAt: time.Now()}
	if err := repo.UpsertGrant(ctx, g2); err != nil {
		t.Fatalf("UpsertGrant error: %v", err)
	}

	grants, err := repo.ListGrantsByUser(ctx, 1)
	if err != nil || len(grants) != 1 {
		t.Fatalf("grants=%v err=%v, want exactly one", grants, err)
	}
	if grants[0].Grade != 1 || grants[0].Display != "new" || grants[0].PeriodKey != "2026-10" {
		t.Fatalf("grant not refreshed: %+v", grants[0])
	}
}

func TestMarkerTryInsertOnlyOnce(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewMarkerRepository(db)
	ctx := context.Background()

	ok, err := repo.TryInsert(ctx, &schema.HarvestMarker{PeriodKind: schema.PeriodWeekly, PeriodKey: "2026-W41", RunID: "a"})
	if err != nil || !ok {
		t.Fatalf("first insert ok=%v err=%v", ok, err)
	}
	ok, err = repo.TryInsert(ctx, &schema.HarvestMarker{PeriodKind: schema.PeriodWeekly, PeriodKey: "2026-W41", RunID: "b"})
	if err != nil || ok {
		t.Fatalf("second insert ok=%v err=%v, want false nil", ok, err)
	}

	latest, err := repo.Latest(ctx, schema.PeriodWeekly)
	if err != nil || latest == nil || latest.RunID != "a" {
		t.Fatalf("latest=%+v err=%v", latest, err)
	}
	if exists, _ := repo.Exists(ctx, schema.PeriodMonthly, "2026-10"); exists {
		t.Fatalf("monthly marker should not exist")
	}
}

func TestVisitCountByKindBetween(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewVisitRepository(db)
	ctx := context.Background()

	tokyo := time.FixedZone("JST", 9*3600)
	day := time.Date(2026, 10, 15, 0, 30, 0, 0, tokyo)
	_ = repo.Create(ctx, &schema.VisitEvent{UserID: 1, SiteID: 1, Kind: schema.VisitRemote, CreatedAt: day})
	_ = repo.Create(ctx, &schema.VisitEvent{UserID: 1, SiteID: 2, Kind: schema.VisitRemote, CreatedAt: day.Add(-time.Hour)})
	_ = repo.Create(ctx, &schema.VisitEvent{UserID: 1, SiteID: 1, Kind: schema.VisitDirect, CreatedAt: day})

	start, end := DayBounds(day, tokyo)
	n, err := repo.CountByKindBetween(ctx, 1, schema.VisitRemote, start, end)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v, want 1 (previous-day remote excluded)", n, err)
	}
}

func TestPerkRepositoryActiveEntitlements(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewPerkRepository(db)
	ctx := context.Background()
	now := time.Now()

	_ = repo.GrantEntitlement(ctx, &schema.UserEntitlement{UserID: 1, Kind: schema.EntitlementRangeMultiplier, ExpiresAt: now.Add(time.Hour)})
	_ = repo.GrantEntitlement(ctx, &schema.UserEntitlement{UserID: 1, Kind: schema.EntitlementWorshipBoost, ExpiresAt: now.Add(-time.Hour)})

	kinds, err := repo.ActiveEntitlements(ctx, 1, now)
	if err != nil || len(kinds) != 1 || kinds[0] != schema.EntitlementRangeMultiplier {
		t.Fatalf("kinds=%v err=%v", kinds, err)
	}
}
