package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wmscore/internal/core"
	"wmscore/pkg/domain"
)

var baseTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// manualClock is advanced explicitly by tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock { return &manualClock{now: baseTime} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, opts ...core.ServiceOption) (*core.Service, *manualClock) {
	t.Helper()
	clock := newManualClock()
	svc := core.NewInMemoryService(nil, append([]core.ServiceOption{core.WithClock(clock)}, opts...)...)
	return svc, clock
}

func mustBootstrap(t *testing.T, svc *core.Service, zones []string, rows, cols int) []core.Slot {
	t.Helper()
	slots, _, err := svc.Bootstrap(context.Background(), core.Topology{Zones: zones, RowsPerZone: rows, ColsPerZone: cols})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return slots
}

func items(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + "-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
	}
	return out
}

func mustInbound(t *testing.T, svc *core.Service, n int, prefix string) core.Placement {
	t.Helper()
	placed, _, err := svc.CreateAndInbound(context.Background(), core.PalletSpec{ItemIDs: items(prefix, n)})
	if err != nil {
		t.Fatalf("create and inbound: %v", err)
	}
	return placed
}

func expectKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	var opErr *domain.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected *domain.OpError, got %T", err)
	}
	if opErr.Op == "" {
		t.Fatalf("expected operation name on %v", err)
	}
}
