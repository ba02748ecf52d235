package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"time"

	"wmscore/internal/blob"
	"wmscore/pkg/domain"
)

// SnapshotPrefix is the blob key prefix for exported registry snapshots.
const SnapshotPrefix = "snapshots/"

const snapshotVersion = 1

// snapshotKeyLayout sorts lexically in time order.
const snapshotKeyLayout = "20060102T150405.000000000Z"

// SnapshotDocument is the archived form of the registries.
type SnapshotDocument struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Snapshot
}

// ExportSnapshot writes the committed registries to store and returns the
// written object's metadata.
func (s *Service) ExportSnapshot(ctx context.Context, store blob.Store) (blob.Info, error) {
	var info blob.Info
	err := s.instrument(ctx, &opScope{name: "export_snapshot"}, true, func(ctx context.Context) error {
		var snap Snapshot
		if err := s.store.View(ctx, func(view TransactionView) error {
			snap = snapshotFromView(view)
			return nil
		}); err != nil {
			return err
		}
		at := s.clock.Now().UTC()
		doc := SnapshotDocument{Version: snapshotVersion, ExportedAt: at, Snapshot: snap}
		payload, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		key := SnapshotPrefix + at.Format(snapshotKeyLayout) + ".json"
		info, err = store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: "application/json",
			Metadata: map[string]string{
				"slots":   strconv.Itoa(len(snap.Slots)),
				"pallets": strconv.Itoa(len(snap.Pallets)),
			},
		})
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		return nil
	}, nil)
	return info, err
}

// ImportSnapshot replaces the registries with an archived snapshot. The
// replacement is validated by the rules engine like any other transaction.
func (s *Service) ImportSnapshot(ctx context.Context, store blob.Store, key string) (SnapshotDocument, Result, error) {
	// The object is fetched before the store lock is taken.
	doc, readErr := readSnapshot(ctx, store, key)
	res, err := s.mutate(ctx, &opScope{name: "import_snapshot"}, func(tx Transaction) error {
		if readErr != nil {
			return readErr
		}
		return tx.ReplaceState(doc.Snapshot)
	})
	return doc, res, err
}

// LatestSnapshot returns the key of the most recent export, or NotFound.
func (s *Service) LatestSnapshot(ctx context.Context, store blob.Store) (string, error) {
	var key string
	err := s.instrument(ctx, &opScope{name: "latest_snapshot"}, false, func(ctx context.Context) error {
		infos, err := store.List(ctx, SnapshotPrefix)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if path.Ext(info.Key) == ".json" && info.Key > key {
				key = info.Key
			}
		}
		if key == "" {
			return fail(domain.ErrNotFound, "", "", "no snapshot under "+SnapshotPrefix)
		}
		return nil
	}, nil)
	return key, err
}

// PruneSnapshots deletes all but the newest keep exports and returns the
// removed keys, oldest first. keep <= 0 keeps everything.
func (s *Service) PruneSnapshots(ctx context.Context, store blob.Store, keep int) ([]string, error) {
	removed := []string{}
	if keep <= 0 {
		return removed, nil
	}
	err := s.instrument(ctx, &opScope{name: "prune_snapshots"}, true, func(ctx context.Context) error {
		infos, err := store.List(ctx, SnapshotPrefix)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(infos))
		for _, info := range infos {
			if path.Ext(info.Key) == ".json" {
				keys = append(keys, info.Key)
			}
		}
		if len(keys) <= keep {
			return nil
		}
		sort.Strings(keys)
		for _, key := range keys[:len(keys)-keep] {
			if _, err := store.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			removed = append(removed, key)
		}
		return nil
	}, nil)
	return removed, err
}

func readSnapshot(ctx context.Context, store blob.Store, key string) (SnapshotDocument, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return SnapshotDocument{}, fail(domain.ErrNotFound, "", "", "snapshot "+key)
		}
		return SnapshotDocument{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	var doc SnapshotDocument
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return SnapshotDocument{}, fmt.Errorf("decode %s: %w", key, err)
	}
	if doc.Version != snapshotVersion {
		return SnapshotDocument{}, fail(domain.ErrInvalidState, "", "", fmt.Sprintf("unsupported snapshot version %d", doc.Version))
	}
	return doc, nil
}

func snapshotFromView(view TransactionView) Snapshot {
	snap := Snapshot{Slots: map[string]Slot{}, Pallets: map[string]Pallet{}}
	for _, sl := range view.ListSlots() {
		snap.Slots[sl.ID] = sl
	}
	for _, p := range view.ListPallets() {
		snap.Pallets[p.ID] = p
	}
	return snap
}
