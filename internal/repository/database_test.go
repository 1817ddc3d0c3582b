package repository

import (
	"path/filepath"
	"testing"

	"github.com/yuqie6/Sanpai/internal/pkg/config"
	"github.com/yuqie6/Sanpai/internal/schema"
)

func TestNewDatabaseMigratesSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "sanpai.db")
	db, err := NewDatabase(config.StorageConfig{Driver: "sqlite", DBPath: path})
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	defer db.Close()

	if db.SafeMode {
		t.Fatalf("unexpected safe mode: %s", db.MigrationError)
	}
	if db.SchemaVersion != latestSchemaVersion {
		t.Fatalf("schema version=%d, want %d", db.SchemaVersion, latestSchemaVersion)
	}
	if db.TxOptions() != nil {
		t.Fatalf("sqlite should use default isolation")
	}
	for _, m := range schema.Models() {
		if !db.DB.Migrator().HasTable(m) {
			t.Fatalf("table for %T missing", m)
		}
	}
}

func TestNewDatabaseSafeModeOnNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sanpai.db")
	cfg := config.StorageConfig{Driver: "sqlite", DBPath: path}

	db, err := NewDatabase(cfg)
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	if err := db.DB.Model(&schema.SchemaMeta{}).Where("id = ?", 1).Update("schema_version", latestSchemaVersion+1).Error; err != nil {
		t.Fatalf("bump schema version: %v", err)
	}
	_ = db.Close()

	db, err = NewDatabase(cfg)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db.Close()
	if !db.SafeMode || db.MigrationError == "" {
		t.Fatalf("expected safe mode, got %+v", db)
	}
}

func TestNewDatabaseUpgradesUnkeyedCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sanpai.db")
	cfg := config.StorageConfig{Driver: "sqlite", DBPath: path}

	db, err := NewDatabase(cfg)
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	// 还原成 v1：四列唯一索引，时间窗行没有周期
	m := db.DB.Migrator()
	if err := m.DropIndex(&schema.AggregateCounter{}, "uniq_counter_slot"); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if err := db.DB.Exec("CREATE UNIQUE INDEX uniq_counter_key ON aggregate_counters (subject_type, subject_id, user_id, time_window)").Error; err != nil {
		t.Fatalf("create v1 index: %v", err)
	}
	rows := []schema.AggregateCounter{
		{SubjectType: schema.SubjectSite, SubjectID: 1, UserID: 1, Window: schema.WindowAll, VisitCount: 4},
		{SubjectType: schema.SubjectSite, SubjectID: 1, UserID: 1, Window: schema.WindowDaily, VisitCount: 1},
	}
	if err := db.DB.Create(&rows).Error; err != nil {
		t.Fatalf("seed rows: %v", err)
	}
	if err := db.DB.Model(&schema.SchemaMeta{}).Where("id = ?", 1).Update("schema_version", 1).Error; err != nil {
		t.Fatalf("set schema version: %v", err)
	}
	_ = db.Close()

	db, err = NewDatabase(cfg)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db.Close()
	if db.SafeMode || db.SchemaVersion != latestSchemaVersion {
		t.Fatalf("safe=%v version=%d err=%s", db.SafeMode, db.SchemaVersion, db.MigrationError)
	}
	m = db.DB.Migrator()
	if m.HasIndex(&schema.AggregateCounter{}, "uniq_counter_key") || !m.HasIndex(&schema.AggregateCounter{}, "uniq_counter_slot") {
		t.Fatalf("counter index not upgraded")
	}

	var left []schema.AggregateCounter
	if err := db.DB.Find(&left).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(left) != 1 || left[0].Window != schema.WindowAll || left[0].VisitCount != 4 {
		t.Fatalf("rows=%+v, want only the all-time row", left)
	}
}

func TestNewDatabaseRejectsUnknownDriver(t *testing.T) {
	if _, err := NewDatabase(config.StorageConfig{Driver: "mysql"}); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}
