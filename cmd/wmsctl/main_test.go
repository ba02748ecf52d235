package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"wmscore/pkg/domain"
)

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("WMS_CONFIG", "")
	dir := t.TempDir()
	return &cli{t: t, base: []string{
		"--storage", "sqlite",
		"--sqlite-path", filepath.Join(dir, "wms.db"),
		"--blob-driver", "fs",
		"--blob-root", filepath.Join(dir, "archive"),
		"--log-level", "error",
	}}
}

func (c *cli) run(args ...string) (string, string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	err := execute(context.Background(), append(append([]string{}, args...), c.base...), &out, &errOut)
	return out.String(), errOut.String(), err
}

func (c *cli) mustRun(v any, args ...string) string {
	c.t.Helper()
	out, errOut, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("wmsctl %s: %v\nstderr: %s", strings.Join(args, " "), err, errOut)
	}
	if v != nil {
		if err := json.Unmarshal([]byte(out), v); err != nil {
			c.t.Fatalf("decode output of %s: %v\n%s", args[0], err, out)
		}
	}
	return errOut
}

type placementOut struct {
	Pallet struct {
		ID     string  `json:"id"`
		SlotID *string `json:"slot_id"`
	} `json:"pallet"`
	Slot struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"slot"`
}

func TestInboundOutboundLifecycle(t *testing.T) {
	c := newCLI(t)

	var boot map[string]int
	c.mustRun(&boot, "bootstrap", "--zones", "A,B", "--rows", "3", "--cols", "2")
	if boot["slots"] != 12 || boot["high_priority"] != 8 {
		t.Fatalf("bootstrap = %v", boot)
	}

	var placed placementOut
	c.mustRun(&placed, "inbound", "--items", strings.Join(items(18), ","))
	if placed.Slot.ID != "A-1-1" || placed.Slot.Status != "occupied" {
		t.Fatalf("placed in %+v", placed.Slot)
	}

	var second placementOut
	c.mustRun(&second, "inbound", "--items", "x1,x2")
	if second.Slot.ID != "A-1-2" {
		t.Fatalf("second pallet in %s, want A-1-2", second.Slot.ID)
	}

	var shipped struct {
		OutboundAt       *string `json:"outbound_at"`
		CustomerOrderRef *string `json:"customer_order_ref"`
		SlotID           *string `json:"slot_id"`
	}
	c.mustRun(&shipped, "outbound", placed.Pallet.ID, "--order", "ORD-1")
	if shipped.OutboundAt == nil || shipped.SlotID != nil || *shipped.CustomerOrderRef != "ORD-1" {
		t.Fatalf("shipped = %+v", shipped)
	}

	var stats struct {
		Locations struct {
			Total    int    `json:"total"`
			Occupied int    `json:"occupied"`
			Rate     string `json:"utilization_rate"`
		} `json:"locations"`
		Pallets struct {
			Shipped     int `json:"shipped"`
			InWarehouse int `json:"in_warehouse"`
		} `json:"pallets"`
	}
	c.mustRun(&stats, "stats")
	if stats.Locations.Total != 12 || stats.Locations.Occupied != 1 || stats.Locations.Rate != "0.0833" {
		t.Fatalf("locations = %+v", stats.Locations)
	}
	if stats.Pallets.Shipped != 1 || stats.Pallets.InWarehouse != 1 {
		t.Fatalf("pallets = %+v", stats.Pallets)
	}

	var found []struct {
		ID string `json:"id"`
	}
	c.mustRun(&found, "search", "--order", "ORD-1")
	if len(found) != 1 || found[0].ID != placed.Pallet.ID {
		t.Fatalf("search = %+v", found)
	}
}

func TestOutboundBatchAndRelocate(t *testing.T) {
	c := newCLI(t)
	c.mustRun(nil, "bootstrap", "--zones", "A", "--rows", "2", "--cols", "2")

	var first, second placementOut
	c.mustRun(&first, "inbound", "--items", "a1,a2,a3")
	c.mustRun(&second, "inbound", "--items", "b1,b2,b3")

	var moved placementOut
	c.mustRun(&moved, "relocate", first.Pallet.ID, "A-2-2")
	if moved.Slot.ID != "A-2-2" || *moved.Pallet.SlotID != "A-2-2" {
		t.Fatalf("relocated = %+v", moved)
	}

	var batch struct {
		Shipped []struct {
			ID string `json:"id"`
		} `json:"shipped"`
		TotalItems int  `json:"total_items"`
		TargetMet  bool `json:"target_met"`
	}
	c.mustRun(&batch, "outbound-batch", "--target", "2", "--order", "ORD-B")
	if len(batch.Shipped) != 1 || batch.Shipped[0].ID != first.Pallet.ID || !batch.TargetMet || batch.TotalItems != 3 {
		t.Fatalf("batch = %+v", batch)
	}
}

func TestSlotCommands(t *testing.T) {
	c := newCLI(t)
	c.mustRun(nil, "bootstrap", "--zones", "A", "--rows", "1", "--cols", "2")

	var sl struct {
		Status string `json:"status"`
	}
	c.mustRun(&sl, "slot", "reserve", "A-1-1")
	if sl.Status != "reserved" {
		t.Fatalf("reserve -> %s", sl.Status)
	}

	var free []struct {
		ID string `json:"id"`
	}
	c.mustRun(&free, "slot", "list", "--free")
	if len(free) != 1 || free[0].ID != "A-1-2" {
		t.Fatalf("free slots = %+v", free)
	}

	c.mustRun(&sl, "slot", "release", "A-1-1")
	c.mustRun(&sl, "slot", "maintenance", "A-1-1")
	if sl.Status != "maintenance" {
		t.Fatalf("maintenance -> %s", sl.Status)
	}
	c.mustRun(&sl, "slot", "maintenance", "A-1-1", "--off")
	if sl.Status != "empty" {
		t.Fatalf("maintenance --off -> %s", sl.Status)
	}
}

func TestPalletCommands(t *testing.T) {
	c := newCLI(t)
	c.mustRun(nil, "bootstrap", "--zones", "A", "--rows", "1", "--cols", "1")

	var p struct {
		ID      string   `json:"id"`
		ItemIDs []string `json:"item_ids"`
	}
	c.mustRun(&p, "pallet", "create", "--items", "i1", "--standard-capacity", "1", "--max-capacity", "2")
	c.mustRun(&p, "pallet", "add-item", p.ID, "i2", "--tag", "t2")
	if len(p.ItemIDs) != 2 {
		t.Fatalf("items = %v", p.ItemIDs)
	}

	_, _, err := c.run("pallet", "add-item", p.ID, "i3")
	if !errors.Is(err, domain.ErrCapacityExceeded) || exitCode(err) != 3 {
		t.Fatalf("add past max: err=%v code=%d", err, exitCode(err))
	}

	var removed struct {
		Removed bool `json:"removed"`
	}
	c.mustRun(&removed, "pallet", "remove-item", p.ID, "missing")
	if removed.Removed {
		t.Fatal("removing an absent item reported a removal")
	}

	var placed placementOut
	c.mustRun(&placed, "pallet", "allocate", p.ID)
	if placed.Slot.ID != "A-1-1" {
		t.Fatalf("allocated to %s", placed.Slot.ID)
	}

	_, _, err = c.run("inbound", "--items", "z1")
	if !errors.Is(err, domain.ErrNoAvailableSlot) {
		t.Fatalf("inbound into a full grid: %v", err)
	}
	var all []struct {
		ID string `json:"id"`
	}
	c.mustRun(&all, "pallet", "list")
	if len(all) != 1 {
		t.Fatalf("failed inbound left %d pallets", len(all))
	}
}

func TestExportImportLatest(t *testing.T) {
	c := newCLI(t)
	c.mustRun(nil, "bootstrap", "--zones", "A", "--rows", "1", "--cols", "2")
	var placed placementOut
	c.mustRun(&placed, "inbound", "--items", "a,b")

	var info struct {
		Key string `json:"key"`
	}
	c.mustRun(&info, "export")
	if !strings.HasPrefix(info.Key, "snapshots/") {
		t.Fatalf("key = %q", info.Key)
	}

	c.mustRun(nil, "outbound", placed.Pallet.ID, "--order", "ORD-9")

	var imported struct {
		Key     string `json:"key"`
		Pallets int    `json:"pallets"`
	}
	c.mustRun(&imported, "import")
	if imported.Key != info.Key || imported.Pallets != 1 {
		t.Fatalf("import = %+v", imported)
	}

	var sl struct {
		Status string `json:"status"`
	}
	c.mustRun(&sl, "slot", "show", "A-1-1")
	if sl.Status != "occupied" {
		t.Fatalf("after import A-1-1 is %s", sl.Status)
	}
}

func TestStagnantUsesConfiguredThreshold(t *testing.T) {
	c := newCLI(t)
	c.mustRun(nil, "bootstrap", "--zones", "A", "--rows", "1", "--cols", "1")
	c.mustRun(nil, "inbound", "--items", "a")

	var found []any
	c.mustRun(&found, "stagnant")
	if len(found) != 0 {
		t.Fatalf("fresh pallet reported stagnant: %v", found)
	}
	_, _, err := c.run("stagnant", "--days", "-1")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("negative threshold: %v", err)
	}
}

func TestExitCodes(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("outbound", "P-missing")
	if exitCode(err) != 2 {
		t.Fatalf("missing --order: code %d (%v)", exitCode(err), err)
	}
	_, _, err = c.run("stats", "--no-such-flag")
	if exitCode(err) != 2 {
		t.Fatalf("unknown flag: code %d (%v)", exitCode(err), err)
	}
	for _, args := range [][]string{
		{"relocate", "only-one-arg"},
		{"bootstrap", "extra"},
		{"slot", "reserve"},
		{"import", "a", "b"},
	} {
		_, _, err = c.run(args...)
		if exitCode(err) != 2 {
			t.Fatalf("%v: code %d (%v)", args, exitCode(err), err)
		}
	}
	_, _, err = c.run("outbound", "P-missing", "--order", "O")
	if !errors.Is(err, domain.ErrNotFound) || exitCode(err) != 3 {
		t.Fatalf("unknown pallet: code %d (%v)", exitCode(err), err)
	}
	if got := exitCode(errors.New("disk on fire")); got != 1 {
		t.Fatalf("internal error code = %d", got)
	}
	lost := &domain.OpError{Op: "outbound_single", Err: fmt.Errorf("%w: save registries: disk full", domain.ErrNotPersisted)}
	if got := exitCode(lost); got != 1 {
		t.Fatalf("unsaved commit code = %d", got)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	var out, errOut bytes.Buffer
	t.Setenv("WMS_CONFIG", "")
	err := execute(context.Background(), []string{"stats", "--storage", "memory", "--log-level", "loud"}, &out, &errOut)
	if err == nil {
		t.Fatal("expected invalid log level to fail")
	}
}

func items(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "it" + string(rune('a'+i))
	}
	return out
}
