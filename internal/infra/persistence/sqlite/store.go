// Package sqlite keeps the registries in an embedded SQLite file. Transactions
// run in the memory store; each successful commit rewrites the registry table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"wmscore/internal/infra/persistence/bucketdb"
	"wmscore/internal/infra/persistence/memory"
	"wmscore/pkg/domain"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "wms.db"

// Store is a memory store mirrored to SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string

	saveMu    sync.Mutex
	lastSaved time.Time
}

// NewStore opens or creates the database at path and loads any saved
// registries into memory.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: SQLite allows a single writer and the registry table is
	// only ever rewritten as a whole.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := bucketdb.Ensure(ctx, db, bucketdb.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, found, err := bucketdb.Load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine, opts...)
	if found {
		mem.ImportState(snapshot)
	}
	return &Store{Store: mem, db: db, path: path}, nil
}

// RunInTransaction commits in memory and then saves the registries. A save
// failure wraps domain.ErrNotPersisted; the in-memory commit and res stand.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	now := s.NowFunc()()
	if err := bucketdb.Save(context.WithoutCancel(ctx), s.db, bucketdb.SQLite, s.ExportState(), now); err != nil {
		return res, fmt.Errorf("%w: save registries: %w", domain.ErrNotPersisted, err)
	}
	s.lastSaved = now
	return res, nil
}

// LastSaved reports when the registries were last written; zero before the
// first commit of this process.
func (s *Store) LastSaved() time.Time {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.lastSaved
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Path() string { return s.path }
