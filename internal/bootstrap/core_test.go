package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yuqie6/Sanpai/internal/pkg/config"
)

func TestNewCoreFromConfigWiresServices(t *testing.T) {
	cfg := config.Default()
	cfg.App.Timezone = "UTC"
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "sanpai.db")

	core, err := NewCoreFromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewCoreFromConfig error: %v", err)
	}
	defer core.Close()

	if !core.Ready() {
		t.Fatalf("core should be ready")
	}
	if core.Table.MaxLevel() != 20 {
		t.Fatalf("default level table not seeded, max=%d", core.Table.MaxLevel())
	}
	if core.Services.Recorder == nil || core.Services.Harvester == nil || core.Services.Scheduler == nil || core.Services.Queries == nil {
		t.Fatalf("services not wired: %+v", core.Services)
	}
}
