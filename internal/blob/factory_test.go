package blob_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"wmscore/internal/blob"
	"wmscore/internal/blob/core"
	"wmscore/internal/infra/blob/s3"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	mem, err := blob.Open(ctx, blob.Options{Driver: "memory"})
	if err != nil || mem.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver, got %v %v", mem, err)
	}
	fsStore, err := blob.Open(ctx, blob.Options{FSRoot: t.TempDir()})
	if err != nil || fsStore.Driver() != core.DriverFilesystem {
		t.Fatalf("expected default fs driver, got %v %v", fsStore, err)
	}
	if _, err := blob.Open(ctx, blob.Options{Driver: "s3"}); err == nil {
		t.Fatalf("expected s3 without bucket to fail")
	}
	if _, err := blob.Open(ctx, blob.Options{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	fsStore, err := blob.Open(ctx, blob.Options{Driver: "fs", FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	memStore, _ := blob.Open(ctx, blob.Options{Driver: "memory"})
	stores := map[string]blob.Store{
		"fs":     fsStore,
		"memory": memStore,
		"s3":     s3.NewMockForTests(),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			exerciseStore(t, store)
		})
	}
}

func exerciseStore(t *testing.T, store blob.Store) {
	t.Helper()
	ctx := context.Background()
	payload := `{"slots":{},"pallets":{}}`
	info, err := store.Put(ctx, "snapshots/b.json", strings.NewReader(payload), blob.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "snapshots/b.json" || info.Size != int64(len(payload)) {
		t.Fatalf("unexpected put info %+v", info)
	}
	if _, err := store.Put(ctx, "snapshots/b.json", strings.NewReader("x"), blob.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, "snapshots/a.json", strings.NewReader("{}"), blob.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	if _, err := store.Put(ctx, "other/c.json", strings.NewReader("{}"), blob.PutOptions{}); err != nil {
		t.Fatalf("put third: %v", err)
	}

	got, rc, err := store.Get(ctx, "snapshots/b.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != payload {
		t.Fatalf("unexpected body %q", body)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("expected content type, got %q", got.ContentType)
	}
	if _, _, err := store.Get(ctx, "snapshots/missing.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := store.List(ctx, "snapshots/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "snapshots/a.json" || list[1].Key != "snapshots/b.json" {
		t.Fatalf("unexpected listing %+v", list)
	}

	removed, err := store.Delete(ctx, "snapshots/a.json")
	if err != nil || !removed {
		t.Fatalf("expected delete to remove blob: %v %v", removed, err)
	}
	removed, err = store.Delete(ctx, "snapshots/a.json")
	if err != nil || removed {
		t.Fatalf("expected second delete to be a no-op: %v %v", removed, err)
	}
}
