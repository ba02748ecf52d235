package core

import (
	"context"
	"errors"
	"time"

	"wmscore/internal/infra/persistence/memory"
	"wmscore/pkg/domain"
)

// Service is the single entry point for registry mutations and reporting. It
// is constructed once at startup and shared; every mutating call runs as one
// store transaction so pallet and slot records change together.
type Service struct {
	store    PersistentStore
	clock    Clock
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	capacity Capacity
	highRows int
	timeout  time.Duration
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	svc := &Service{
		store:    store,
		clock:    systemClock{},
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		audit:    noopAudit{},
		capacity: Capacity{Standard: DefaultStandardCapacity, Max: DefaultMaxCapacity},
		highRows: DefaultHighPriorityRows,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store. The
// store stamps records with the service clock.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	svc := NewService(nil, opts...)
	svc.store = memory.NewStore(engine, memory.WithClock(func() time.Time { return svc.clock.Now() }))
	return svc
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// DefaultCapacity returns the capacity applied to pallets created without one.
func (s *Service) DefaultCapacity() Capacity {
	return s.capacity
}

// opScope carries the identifiers an operation touched so that logs, audit
// entries and errors agree.
type opScope struct {
	name     string
	palletID string
	slotID   string
	itemID   string
}

// mutate runs fn inside a store transaction wrapped by timeout, tracing,
// metrics, logging and audit. An error wrapping domain.ErrNotPersisted means
// the commit took effect in memory only; the values fn produced are the
// committed ones and callers return them alongside the error.
func (s *Service) mutate(ctx context.Context, scope *opScope, fn func(tx Transaction) error) (Result, error) {
	var res Result
	err := s.instrument(ctx, scope, true, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, fn)
		for _, v := range res.Violations {
			if v.Severity == SeverityWarn {
				s.logger.Warn("rule warning", "op", scope.name, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
			}
		}
		return err
	}, &res)
	return res, err
}

// read runs fn against a consistent view with the same instrumentation as
// mutations, minus auditing.
func (s *Service) read(ctx context.Context, scope *opScope, fn func(view TransactionView) error) error {
	return s.instrument(ctx, scope, false, func(ctx context.Context) error {
		return s.store.View(ctx, fn)
	}, nil)
}

func (s *Service) instrument(ctx context.Context, scope *opScope, audited bool, fn func(context.Context) error, res *Result) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx, span := s.tracer.Start(ctx, scope.name)
	started := time.Now()
	err := fn(ctx)
	if err != nil {
		err = wrapOpError(scope, err)
	}
	elapsed := time.Since(started)
	span.End(err)

	outcome := "success"
	if err != nil {
		outcome = domain.KindOf(err)
	}
	s.metrics.Observe(ctx, scope.name, outcome, elapsed)

	args := []any{"op", scope.name, "duration", elapsed}
	if scope.palletID != "" {
		args = append(args, "pallet_id", scope.palletID)
	}
	if scope.slotID != "" {
		args = append(args, "slot_id", scope.slotID)
	}
	switch {
	case err == nil:
		s.logger.Debug("operation completed", args...)
	case outcome == "internal":
		s.logger.Error("operation failed", append(args, "kind", outcome, "error", err)...)
	default:
		s.logger.Info("operation rejected", append(args, "kind", outcome, "error", err)...)
	}

	if audited {
		entry := AuditEntry{
			Operation: scope.name,
			Status:    AuditStatusSuccess,
			PalletID:  scope.palletID,
			SlotID:    scope.slotID,
			Duration:  elapsed,
			At:        s.clock.Now(),
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Kind = outcome
			entry.Error = err.Error()
		}
		if res != nil {
			for _, v := range res.Violations {
				if v.Severity != SeverityBlock {
					entry.Warnings = append(entry.Warnings, v.Rule+": "+v.Message)
				}
			}
		}
		s.audit.Record(ctx, entry)
	}
	return err
}

// wrapOpError guarantees every returned error is an *domain.OpError naming
// the operation. Errors raised by helpers keep their own identifiers.
func wrapOpError(scope *opScope, err error) error {
	var opErr *domain.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "" {
			opErr.Op = scope.name
		}
		if scope.palletID == "" {
			scope.palletID = opErr.PalletID
		}
		if scope.slotID == "" {
			scope.slotID = opErr.SlotID
		}
		return err
	}
	return &domain.OpError{Op: scope.name, PalletID: scope.palletID, SlotID: scope.slotID, ItemID: scope.itemID, Err: err}
}

// fail builds an OpError for helpers running inside a transaction.
func fail(kind error, palletID, slotID, detail string) *domain.OpError {
	return &domain.OpError{PalletID: palletID, SlotID: slotID, Detail: detail, Err: kind}
}
