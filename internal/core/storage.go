package core

import (
	"context"
	"fmt"
	"time"

	"wmscore/internal/infra/persistence/memory"
	"wmscore/internal/infra/persistence/postgres"
	"wmscore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures a backend. An empty driver means
// sqlite.
type StorageOptions struct {
	Driver      StorageDriver `toml:"driver" env:"DRIVER"`
	SQLitePath  string        `toml:"sqlite_path" env:"SQLITE_PATH"`
	PostgresDSN string        `toml:"postgres_dsn" env:"POSTGRES_DSN"`
}

// OpenPersistentStore opens the configured backend. clock stamps records; nil
// uses UTC wall time. Callers close the returned closer when done.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *RulesEngine, clock Clock) (PersistentStore, func() error, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	if clock == nil {
		clock = systemClock{}
	}
	withClock := memory.WithClock(func() time.Time { return clock.Now() })
	noClose := func() error { return nil }
	switch opts.Driver {
	case StorageMemory:
		return memory.NewStore(engine, withClock), noClose, nil
	case StorageSQLite, "":
		store, err := sqlite.NewStore(opts.SQLitePath, engine, withClock)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, opts.PostgresDSN, engine, withClock)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", opts.Driver)
	}
}
