// Package config loads wmsctl settings from defaults, a TOML file, WMS_*
// environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"

	"wmscore/internal/blob"
	"wmscore/internal/core"
	"wmscore/internal/logging"
	"wmscore/internal/platform/otel"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "WMS_"

// Duration is a time.Duration written as a Go duration string ("90s", "1h").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Log configures process logging.
type Log struct {
	Level     string `toml:"level" env:"LEVEL"`
	Format    string `toml:"format" env:"FORMAT"`
	// AuditFile receives one JSON line per mutating operation when set.
	AuditFile string `toml:"audit_file" env:"AUDIT_FILE"`
}

// Warehouse describes the slot grid and pallet defaults.
type Warehouse struct {
	Zones            []string `toml:"zones" env:"ZONES" envSeparator:","`
	RowsPerZone      int      `toml:"rows_per_zone" env:"ROWS_PER_ZONE"`
	ColsPerZone      int      `toml:"cols_per_zone" env:"COLS_PER_ZONE"`
	HighPriorityRows int      `toml:"high_priority_rows" env:"HIGH_PRIORITY_ROWS"`
	StandardCapacity int      `toml:"standard_capacity" env:"STANDARD_CAPACITY"`
	MaxCapacity      int      `toml:"max_capacity" env:"MAX_CAPACITY"`
	OperationTimeout Duration `toml:"operation_timeout" env:"OPERATION_TIMEOUT"`
}

// Topology returns the bootstrap grid.
func (w Warehouse) Topology() core.Topology {
	return core.Topology{Zones: append([]string(nil), w.Zones...), RowsPerZone: w.RowsPerZone, ColsPerZone: w.ColsPerZone}
}

// Capacity returns the default pallet capacity.
func (w Warehouse) Capacity() core.Capacity {
	return core.Capacity{Standard: w.StandardCapacity, Max: w.MaxCapacity}
}

// Serve configures the long-running mode.
type Serve struct {
	MetricsAddr   string   `toml:"metrics_addr" env:"METRICS_ADDR"`
	StagnantDays  int      `toml:"stagnant_days" env:"STAGNANT_DAYS"`
	AuditInterval Duration `toml:"audit_interval" env:"AUDIT_INTERVAL"`
	SnapshotEvery Duration `toml:"snapshot_every" env:"SNAPSHOT_EVERY"`
	SnapshotKeep  int      `toml:"snapshot_keep" env:"SNAPSHOT_KEEP"`
}

// Config is the full wmsctl configuration.
type Config struct {
	Log       Log                 `toml:"log" envPrefix:"LOG_"`
	Storage   core.StorageOptions `toml:"storage" envPrefix:"STORAGE_"`
	Blob      blob.Options        `toml:"blob" envPrefix:"BLOB_"`
	Warehouse Warehouse           `toml:"warehouse" envPrefix:"WAREHOUSE_"`
	Serve     Serve               `toml:"serve" envPrefix:"SERVE_"`
	Telemetry otel.Config         `toml:"telemetry" envPrefix:"OTEL_"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:     Log{Level: "info", Format: logging.FormatConsole},
		Storage: core.StorageOptions{Driver: core.StorageSQLite, SQLitePath: "wms.db"},
		Blob:    blob.Options{Driver: "fs", FSRoot: "snapshots"},
		Warehouse: Warehouse{
			Zones:            []string{"A", "B", "C"},
			RowsPerZone:      5,
			ColsPerZone:      10,
			HighPriorityRows: core.DefaultHighPriorityRows,
			StandardCapacity: core.DefaultStandardCapacity,
			MaxCapacity:      core.DefaultMaxCapacity,
			OperationTimeout: Duration(10 * time.Second),
		},
		Serve: Serve{
			MetricsAddr:   ":9464",
			StagnantDays:  30,
			AuditInterval: Duration(time.Hour),
		},
	}
}

// LoadFile overlays a TOML file onto cfg. Keys absent from the file keep
// their current values.
func LoadFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays WMS_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load builds the effective configuration. An empty path skips the file.
// Flags changed on the command line win over every other source.
func Load(path string, flags *Flags) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if flags != nil {
		flags.Apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	switch c.Storage.Driver {
	case "", core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == core.StoragePostgres && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
	}
	if _, err := blob.ParseDriver(c.Blob.Driver); err != nil {
		errs = append(errs, err)
	}
	if err := c.Warehouse.Topology().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("warehouse: %w", err))
	}
	if c.Warehouse.HighPriorityRows < 0 {
		errs = append(errs, fmt.Errorf("warehouse.high_priority_rows must not be negative, got %d", c.Warehouse.HighPriorityRows))
	}
	if err := c.Warehouse.Capacity().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("warehouse: %w", err))
	}
	if c.Warehouse.OperationTimeout < 0 {
		errs = append(errs, errors.New("warehouse.operation_timeout must not be negative"))
	}
	if c.Serve.StagnantDays < 0 {
		errs = append(errs, fmt.Errorf("serve.stagnant_days must not be negative, got %d", c.Serve.StagnantDays))
	}
	if c.Serve.AuditInterval <= 0 {
		errs = append(errs, errors.New("serve.audit_interval must be positive"))
	}
	if c.Serve.SnapshotEvery < 0 {
		errs = append(errs, errors.New("serve.snapshot_every must not be negative"))
	}
	if c.Serve.SnapshotKeep < 0 {
		errs = append(errs, fmt.Errorf("serve.snapshot_keep must not be negative, got %d", c.Serve.SnapshotKeep))
	}
	return errors.Join(errs...)
}
