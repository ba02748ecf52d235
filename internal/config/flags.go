package config

import (
	"github.com/spf13/pflag"

	"wmscore/internal/core"
)

// Flag names shared by every wmsctl command.
const (
	FlagConfig       = "config"
	FlagLogLevel     = "log-level"
	FlagLogFormat    = "log-format"
	FlagStorage      = "storage"
	FlagSQLitePath   = "sqlite-path"
	FlagPostgresDSN  = "postgres-dsn"
	FlagBlobDriver   = "blob-driver"
	FlagBlobRoot     = "blob-root"
	FlagStagnantDays = "stagnant-days"
	FlagMetricsAddr  = "metrics-addr"
)

// Flags holds the command-line overrides registered on a flag set.
type Flags struct {
	fs *pflag.FlagSet

	ConfigPath   string
	LogLevel     string
	LogFormat    string
	Storage      string
	SQLitePath   string
	PostgresDSN  string
	BlobDriver   string
	BlobRoot     string
	StagnantDays int
	MetricsAddr  string
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, FlagConfig, "", "path to a TOML config file (env WMS_CONFIG)")
	fs.StringVar(&f.LogLevel, FlagLogLevel, "", "log level: debug|info|warn|error")
	fs.StringVar(&f.LogFormat, FlagLogFormat, "", "log format: console|json")
	fs.StringVar(&f.Storage, FlagStorage, "", "storage driver: memory|sqlite|postgres")
	fs.StringVar(&f.SQLitePath, FlagSQLitePath, "", "sqlite database file")
	fs.StringVar(&f.PostgresDSN, FlagPostgresDSN, "", "postgres connection string")
	fs.StringVar(&f.BlobDriver, FlagBlobDriver, "", "snapshot archive driver: fs|s3|memory")
	fs.StringVar(&f.BlobRoot, FlagBlobRoot, "", "snapshot archive directory for the fs driver")
	fs.IntVar(&f.StagnantDays, FlagStagnantDays, 0, "days after which a stored pallet counts as stagnant")
	fs.StringVar(&f.MetricsAddr, FlagMetricsAddr, "", "listen address for /metrics in serve mode")
	return f
}

// Apply copies every flag that was set explicitly onto cfg.
func (f *Flags) Apply(cfg *Config) {
	set := func(name string, apply func()) {
		if f.fs.Changed(name) {
			apply()
		}
	}
	set(FlagLogLevel, func() { cfg.Log.Level = f.LogLevel })
	set(FlagLogFormat, func() { cfg.Log.Format = f.LogFormat })
	set(FlagStorage, func() { cfg.Storage.Driver = core.StorageDriver(f.Storage) })
	set(FlagSQLitePath, func() { cfg.Storage.SQLitePath = f.SQLitePath })
	set(FlagPostgresDSN, func() { cfg.Storage.PostgresDSN = f.PostgresDSN })
	set(FlagBlobDriver, func() { cfg.Blob.Driver = f.BlobDriver })
	set(FlagBlobRoot, func() { cfg.Blob.FSRoot = f.BlobRoot })
	set(FlagStagnantDays, func() { cfg.Serve.StagnantDays = f.StagnantDays })
	set(FlagMetricsAddr, func() { cfg.Serve.MetricsAddr = f.MetricsAddr })
}

// Path returns the config file path from the flag, falling back to
// WMS_CONFIG.
func (f *Flags) Path(lookup func(string) string) string {
	if f.ConfigPath != "" {
		return f.ConfigPath
	}
	if lookup == nil {
		return ""
	}
	return lookup(EnvPrefix + "CONFIG")
}
