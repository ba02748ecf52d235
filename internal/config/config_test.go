package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"wmscore/internal/core"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.Warehouse.Topology(); len(got.Zones) != 3 || got.RowsPerZone != 5 || got.ColsPerZone != 10 {
		t.Fatalf("unexpected default topology %+v", got)
	}
}

func TestLoadLayersSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wms.toml")
	writeFile(t, path, `
[log]
level = "debug"
format = "json"

[storage]
driver = "memory"

[warehouse]
zones = ["X", "Y"]
rows_per_zone = 3
cols_per_zone = 4
operation_timeout = "2s"

[serve]
stagnant_days = 10
audit_interval = "15m"
`)
	t.Setenv("WMS_LOG_LEVEL", "warn")
	t.Setenv("WMS_WAREHOUSE_MAX_CAPACITY", "25")
	t.Setenv("WMS_BLOB_S3_BUCKET", "archive")
	t.Setenv("WMS_SERVE_SNAPSHOT_KEEP", "4")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	if err := fs.Parse([]string{"--stagnant-days", "7"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Fatalf("env should override file for level: %+v", cfg.Log)
	}
	if cfg.Storage.Driver != core.StorageMemory {
		t.Fatalf("expected memory storage, got %s", cfg.Storage.Driver)
	}
	if strings.Join(cfg.Warehouse.Zones, ",") != "X,Y" || cfg.Warehouse.RowsPerZone != 3 || cfg.Warehouse.ColsPerZone != 4 {
		t.Fatalf("unexpected warehouse %+v", cfg.Warehouse)
	}
	if cfg.Warehouse.StandardCapacity != core.DefaultStandardCapacity || cfg.Warehouse.MaxCapacity != 25 {
		t.Fatalf("unexpected capacity %+v", cfg.Warehouse.Capacity())
	}
	if cfg.Warehouse.OperationTimeout.Std() != 2*time.Second || cfg.Serve.AuditInterval.Std() != 15*time.Minute {
		t.Fatalf("unexpected durations %v %v", cfg.Warehouse.OperationTimeout.Std(), cfg.Serve.AuditInterval.Std())
	}
	if cfg.Serve.StagnantDays != 7 {
		t.Fatalf("flag should win, got %d", cfg.Serve.StagnantDays)
	}
	if cfg.Blob.S3.Bucket != "archive" {
		t.Fatalf("expected nested env prefix to apply, got %q", cfg.Blob.S3.Bucket)
	}
	if cfg.Serve.SnapshotKeep != 4 {
		t.Fatalf("expected snapshot_keep from env, got %d", cfg.Serve.SnapshotKeep)
	}
}

func TestLoadUnchangedFlagsKeepConfig(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Serve.StagnantDays != 30 || cfg.Storage.Driver != core.StorageSQLite {
		t.Fatalf("unset flags must not override defaults: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.toml"), nil); err == nil {
		t.Fatalf("expected missing file error")
	}
	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, bad, "[log\nlevel=")
	if _, err := Load(bad, nil); err == nil {
		t.Fatalf("expected parse error")
	}
	t.Setenv("WMS_WAREHOUSE_ROWS_PER_ZONE", "many")
	if _, err := Load("", nil); err == nil {
		t.Fatalf("expected env parse error")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "shout"
	cfg.Storage.Driver = "postgres"
	cfg.Warehouse.Zones = nil
	cfg.Warehouse.StandardCapacity = 30
	cfg.Serve.AuditInterval = 0
	cfg.Serve.SnapshotKeep = -1
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"invalid log level", "postgres_dsn", "zone", "max capacity", "audit_interval", "snapshot_keep"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestFlagsPathFallsBackToEnv(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	lookup := func(key string) string {
		if key == "WMS_CONFIG" {
			return "/etc/wms.toml"
		}
		return ""
	}
	if got := flags.Path(lookup); got != "/etc/wms.toml" {
		t.Fatalf("expected env path, got %q", got)
	}
	if err := fs.Parse([]string{"--config", "local.toml"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := flags.Path(lookup); got != "local.toml" {
		t.Fatalf("expected flag path, got %q", got)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wms.toml")
	writeFile(t, path, "[log]\nlevel = \"info\"\n")

	applied := make(chan Config, 4)
	w := NewWatcher(path, func() (Config, error) { return Load(path, nil) }, func(cfg Config) { applied <- cfg }, nil)
	w.delay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-applied:
			if cfg.Log.Level != "debug" {
				t.Fatalf("expected reloaded level debug, got %s", cfg.Log.Level)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("run: %v", err)
			}
			return
		case <-tick.C:
			writeFile(t, path, "[log]\nlevel = \"debug\"\n")
		case <-deadline:
			t.Fatalf("watcher did not reload")
		}
	}
}

func TestWatcherReportsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wms.toml")
	writeFile(t, path, "")

	failures := make(chan error, 4)
	w := NewWatcher(path, func() (Config, error) { return Load(path, nil) }, func(Config) {}, func(err error) { failures <- err })
	w.delay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-failures:
			if !strings.Contains(err.Error(), "log level") {
				t.Fatalf("unexpected error %v", err)
			}
			return
		case <-tick.C:
			writeFile(t, path, "[log]\nlevel = \"loud\"\n")
		case <-deadline:
			t.Fatalf("watcher did not report failure")
		}
	}
}
