// Package postgres keeps the registries in a PostgreSQL JSONB table through the
// pgx database/sql driver. Transactions run in the memory store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"wmscore/internal/infra/persistence/bucketdb"
	"wmscore/internal/infra/persistence/memory"
	"wmscore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/wms?sslmode=disable"
)

var (
	openMu  sync.Mutex
	sqlOpen = sql.Open
)

// Store is a memory store mirrored to Postgres.
type Store struct {
	*memory.Store
	db     *sql.DB
	saveMu sync.Mutex
}

// NewStore connects to dsn (defaultDSN when empty), creates the registry table
// and loads any saved registries.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	open := sqlOpen
	openMu.Unlock()
	db, err := open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	snapshot, found, err := prepare(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine, opts...)
	if found {
		mem.ImportState(snapshot)
	}
	return &Store{Store: mem, db: db}, nil
}

func prepare(ctx context.Context, db *sql.DB) (domain.Snapshot, bool, error) {
	if err := db.PingContext(ctx); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("ping postgres: %w", err)
	}
	if err := bucketdb.Ensure(ctx, db, bucketdb.Postgres); err != nil {
		return domain.Snapshot{}, false, err
	}
	return bucketdb.Load(ctx, db)
}

// RunInTransaction commits in memory and then upserts both buckets. A save
// failure wraps domain.ErrNotPersisted; the in-memory commit and res stand.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := bucketdb.Save(context.WithoutCancel(ctx), s.db, bucketdb.Postgres, s.ExportState(), s.NowFunc()()); err != nil {
		return res, fmt.Errorf("%w: save registries: %w", domain.ErrNotPersisted, err)
	}
	return res, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen replaces the connection opener until the returned func is
// called.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
