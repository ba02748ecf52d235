// Package blob selects the archive backend used for registry snapshot export
// and import.
package blob

import (
	"context"
	"fmt"

	"wmscore/internal/blob/core"
	"wmscore/internal/infra/blob/fs"
	"wmscore/internal/infra/blob/memory"
	"wmscore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

var (
	// ErrNotFound reports a missing key.
	ErrNotFound = core.ErrNotFound
	// ErrExists reports a write to an existing key.
	ErrExists = core.ErrExists
)

// Options selects and configures a backend.
//
//	driver  fs|s3|memory (default fs)
//	fs_root directory root when driver=fs (default ./snapshots)
type Options struct {
	Driver string    `toml:"driver" env:"DRIVER"`
	FSRoot string    `toml:"fs_root" env:"FS_ROOT"`
	S3     s3.Config `toml:"s3" envPrefix:"S3_"`
}

// ParseDriver validates a driver name; empty selects the filesystem.
func ParseDriver(raw string) (Driver, error) {
	return core.ParseDriver(raw)
}

// Open constructs the configured blob store.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver, err := core.ParseDriver(opts.Driver)
	if err != nil {
		return nil, err
	}
	switch driver {
	case core.DriverS3:
		return s3.New(ctx, opts.S3)
	case core.DriverMemory:
		return memory.New(), nil
	case core.DriverFilesystem:
		return fs.New(opts.FSRoot)
	default:
		return nil, fmt.Errorf("unsupported blob driver %s", driver)
	}
}
