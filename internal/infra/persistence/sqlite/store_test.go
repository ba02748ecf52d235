package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wmscore/internal/infra/persistence/bucketdb"
	"wmscore/internal/infra/persistence/memory"
	"wmscore/pkg/domain"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store := newTestStore(t, path)
	var palletID string
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		p, e := tx.CreatePallet(domain.Pallet{ItemIDs: []string{"i1", "i2"}, StandardCapacity: 18, MaxCapacity: 20})
		if e != nil {
			return e
		}
		palletID = p.ID
		id := p.ID
		_, e = tx.CreateSlot(domain.Slot{Zone: "A", Row: 1, Column: 1, PriorityTier: domain.TierHigh, Status: domain.SlotOccupied, PalletID: &id})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = store.Close()

	reloaded := newTestStore(t, path)
	if got := len(reloaded.ListPallets()); got != 1 {
		t.Fatalf("expected 1 pallet, got %d", got)
	}
	p, ok := reloaded.GetPallet(palletID)
	if !ok || len(p.ItemIDs) != 2 || p.Status() != domain.PalletPartial {
		t.Fatalf("unexpected reloaded pallet %+v", p)
	}
	sl, ok := reloaded.GetSlot("A-1-1")
	if !ok || sl.PalletID == nil || *sl.PalletID != palletID || sl.PriorityTier != domain.TierHigh {
		t.Fatalf("unexpected reloaded slot %+v", sl)
	}
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
}

func TestSQLiteStoreCreatesRegistryTable(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	var name string
	if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", bucketdb.Table).Scan(&name); err != nil {
		t.Fatalf("lookup registry table: %v", err)
	}
	if name != bucketdb.Table {
		t.Fatalf("expected %s table, got %s", bucketdb.Table, name)
	}
	if !store.LastSaved().IsZero() {
		t.Fatalf("nothing committed yet, LastSaved = %v", store.LastSaved())
	}
}

func TestSQLiteStoreStampsSaveWithStoreClock(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine(), memory.WithClock(func() time.Time { return at }))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateSlot(domain.Slot{Zone: "A", Row: 1, Column: 1, Status: domain.SlotEmpty})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !store.LastSaved().Equal(at) {
		t.Fatalf("LastSaved = %v, want %v", store.LastSaved(), at)
	}
}

func TestSQLiteStoreSkipsPersistOnFailedTransaction(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.UpdateSlot("missing", func(*domain.Slot) error { return nil })
		return e
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM " + bucketdb.Table).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted buckets, got %d", count)
	}
}

func TestSQLiteStoreKeepsCommitWhenSaveFails(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	if err := store.DB().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
	var palletID string
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		p, e := tx.CreatePallet(domain.Pallet{ItemIDs: []string{"i1"}, StandardCapacity: 18, MaxCapacity: 20})
		palletID = p.ID
		return e
	})
	if !errors.Is(err, domain.ErrNotPersisted) {
		t.Fatalf("expected ErrNotPersisted, got %v", err)
	}
	if domain.KindOf(err) != "not_persisted" {
		t.Fatalf("kind = %q", domain.KindOf(err))
	}
	if _, ok := store.GetPallet(palletID); !ok {
		t.Fatalf("in-memory commit of %s was lost", palletID)
	}
	if !store.LastSaved().IsZero() {
		t.Fatalf("failed save must not advance LastSaved")
	}
}
