package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"wmscore/internal/core"
	"wmscore/pkg/domain"
)

type metricsCall struct {
	op      string
	outcome string
}

type captureMetrics struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetrics) Observe(_ context.Context, op, outcome string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, outcome: outcome})
}

func (c *captureMetrics) has(op, outcome string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.outcome == outcome {
			return true
		}
	}
	return false
}

type logLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) find(level, msg string) (logLine, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line.level == level && line.msg == msg {
			return line, true
		}
	}
	return logLine{}, false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	mu    sync.Mutex
	ended []spanRecord
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (t *captureTracer) Start(ctx context.Context, op string) (context.Context, core.TraceSpan) {
	return ctx, &captureSpan{tracer: t, op: op}
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

func TestServiceInstrumentsOperations(t *testing.T) {
	metrics := &captureMetrics{}
	logger := &captureLogger{}
	tracer := &captureTracer{}
	var auditBuf bytes.Buffer
	audit := core.NewJSONAuditRecorder(&auditBuf)
	svc, _ := newTestService(t,
		core.WithMetricsRecorder(metrics),
		core.WithLogger(logger),
		core.WithTracer(tracer),
		core.WithAuditRecorder(audit),
	)
	ctx := context.Background()
	mustBootstrap(t, svc, []string{"A"}, 1, 1)
	placed := mustInbound(t, svc, 2, "obs")
	_, _, err := svc.CreateAndInbound(ctx, core.PalletSpec{ItemIDs: []string{"late"}})
	expectKind(t, err, domain.ErrNoAvailableSlot)
	if _, err := svc.ListSlots(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}

	if !metrics.has("create_and_inbound", "success") || !metrics.has("create_and_inbound", "no_available_slot") || !metrics.has("list_slots", "success") {
		t.Fatalf("missing metrics calls: %+v", metrics.calls)
	}
	if len(tracer.ended) != 4 || tracer.ended[2].err == nil {
		t.Fatalf("unexpected spans %+v", tracer.ended)
	}

	entries := audit.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries for mutations only, got %d", len(entries))
	}
	if entries[1].Operation != "create_and_inbound" || entries[1].PalletID != placed.Pallet.ID || entries[1].SlotID != "A-1-1" {
		t.Fatalf("unexpected inbound audit entry %+v", entries[1])
	}
	if entries[2].Status != core.AuditStatusError || entries[2].Kind != "no_available_slot" {
		t.Fatalf("unexpected failure audit entry %+v", entries[2])
	}
	lines := strings.Split(strings.TrimSpace(auditBuf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 json lines, got %d", len(lines))
	}
	var decoded core.AuditEntry
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil || decoded.Operation != "bootstrap" {
		t.Fatalf("decode audit line: %v %+v", err, decoded)
	}

	if _, ok := logger.find("info", "operation rejected"); !ok {
		t.Fatalf("expected rejection logged at info")
	}
	if _, ok := logger.find("debug", "operation completed"); !ok {
		t.Fatalf("expected completion logged at debug")
	}
}

func TestServiceLogsRuleWarnings(t *testing.T) {
	logger := &captureLogger{}
	svc, _ := newTestService(t, core.WithLogger(logger))
	archive := openMemoryBlob(t)
	p := domain.Pallet{Base: domain.Base{ID: "p"}, ItemIDs: items("w", 3), StandardCapacity: 1, MaxCapacity: 2}
	putDocument(t, archive, "snapshots/w.json", core.SnapshotDocument{Version: 1, Snapshot: core.Snapshot{Pallets: map[string]core.Pallet{"p": p}}})

	if _, _, err := svc.ImportSnapshot(context.Background(), archive, "snapshots/w.json"); err != nil {
		t.Fatalf("import: %v", err)
	}
	line, ok := logger.find("warn", "rule warning")
	if !ok {
		t.Fatalf("expected rule warning log")
	}
	if !strings.Contains(fmt.Sprint(line.args...), "pallet_capacity") {
		t.Fatalf("expected rule name in log args, got %v", line.args)
	}
}

func TestServiceErrorsCarryOperationContext(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.OutboundSingle(context.Background(), "p-404", "ORD")
	var opErr *domain.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OpError, got %T", err)
	}
	if opErr.Op != "outbound_single" || opErr.PalletID != "p-404" {
		t.Fatalf("unexpected op error %+v", opErr)
	}
	if !strings.Contains(err.Error(), "outbound_single pallet=p-404: not found") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestServiceHonoursCancelledContext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := svc.Bootstrap(ctx, core.Topology{Zones: []string{"A"}, RowsPerZone: 1, ColsPerZone: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if domain.KindOf(err) != "internal" {
		t.Fatalf("expected internal kind, got %s", domain.KindOf(err))
	}
	slots, err := svc.ListSlots(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("cancelled bootstrap must not commit, got %d slots", len(slots))
	}
}

func TestServiceOptionsIgnoreNil(t *testing.T) {
	svc := core.NewInMemoryService(nil,
		core.WithClock(nil),
		core.WithLogger(nil),
		core.WithMetricsRecorder(nil),
		core.WithTracer(nil),
		core.WithAuditRecorder(nil),
		core.WithOperationTimeout(time.Second),
	)
	if svc.Now().IsZero() {
		t.Fatalf("expected system clock")
	}
	if svc.DefaultCapacity() != (core.Capacity{Standard: 18, Max: 20}) {
		t.Fatalf("unexpected default capacity %+v", svc.DefaultCapacity())
	}
	if _, _, err := svc.Bootstrap(context.Background(), core.Topology{Zones: []string{"A"}, RowsPerZone: 1, ColsPerZone: 1}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
}
