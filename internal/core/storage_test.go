package core_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"wmscore/internal/core"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, closeFn, err := core.OpenPersistentStore(context.Background(), core.StorageOptions{Driver: core.StorageMemory}, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = closeFn() }()
	svc := core.NewService(store)
	mustBootstrap(t, svc, []string{"A"}, 1, 1)
	if got := len(store.ListSlots()); got != 1 {
		t.Fatalf("expected 1 slot, got %d", got)
	}
}

func TestOpenPersistentStoreSQLiteReload(t *testing.T) {
	ctx := context.Background()
	opts := core.StorageOptions{Driver: core.StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "wms.db")}
	clock := newManualClock()

	store, closeFn, err := core.OpenPersistentStore(ctx, opts, nil, clock)
	if err != nil {
		if strings.Contains(err.Error(), "sqlite") {
			t.Skipf("sqlite unavailable: %v", err)
		}
		t.Fatalf("open: %v", err)
	}
	svc := core.NewService(store, core.WithClock(clock))
	mustBootstrap(t, svc, []string{"A"}, 1, 2)
	placed := mustInbound(t, svc, 3, "persist")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, closeAgain, err := core.OpenPersistentStore(ctx, opts, nil, clock)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = closeAgain() }()
	got, ok := reopened.GetPallet(placed.Pallet.ID)
	if !ok || *got.SlotID != placed.Slot.ID || !got.InboundAt.Equal(baseTime) {
		t.Fatalf("pallet not reloaded: %+v", got)
	}
	sl, ok := reopened.GetSlot(placed.Slot.ID)
	if !ok || sl.PalletID == nil || *sl.PalletID != placed.Pallet.ID {
		t.Fatalf("slot not reloaded: %+v", sl)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	if _, _, err := core.OpenPersistentStore(context.Background(), core.StorageOptions{Driver: "etcd"}, nil, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
