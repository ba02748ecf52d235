// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"wmscore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Pallet aliases domain.Pallet for in-memory persistence operations.
	Pallet = domain.Pallet
	// Slot aliases domain.Slot.
	Slot = domain.Slot
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// Snapshot aliases domain.Snapshot, the exported registry state.
	Snapshot = domain.Snapshot
)

type memoryState struct {
	slots   map[string]Slot
	pallets map[string]Pallet
}

func newMemoryState() memoryState {
	return memoryState{
		slots:   make(map[string]Slot),
		pallets: make(map[string]Pallet),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Slots:   make(map[string]Slot, len(state.slots)),
		Pallets: make(map[string]Pallet, len(state.pallets)),
	}
	for k, v := range state.slots {
		s.Slots[k] = cloneSlot(v)
	}
	for k, v := range state.pallets {
		s.Pallets[k] = clonePallet(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Slots {
		state.slots[k] = cloneSlot(v)
	}
	for k, v := range s.Pallets {
		state.pallets[k] = clonePallet(v)
	}
	return state
}

// migrateSnapshot normalises snapshots written by older versions or edited by
// hand: nil collections become empty, map keys follow record ids and nil item
// lists become empty. Referential mismatches are left in place so the rules
// engine can report them.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Slots == nil {
		snapshot.Slots = map[string]Slot{}
	}
	if snapshot.Pallets == nil {
		snapshot.Pallets = map[string]Pallet{}
	}
	for key, slot := range snapshot.Slots {
		if slot.ID == "" {
			slot.ID = key
		}
		if slot.Status == "" {
			slot.Status = domain.SlotEmpty
			if slot.PalletID != nil {
				slot.Status = domain.SlotOccupied
			}
		}
		if slot.PriorityTier == "" {
			slot.PriorityTier = domain.TierNormal
		}
		if slot.ID != key {
			delete(snapshot.Slots, key)
		}
		snapshot.Slots[slot.ID] = slot
	}
	for key, pallet := range snapshot.Pallets {
		if pallet.ID == "" {
			pallet.ID = key
		}
		if pallet.ItemIDs == nil {
			pallet.ItemIDs = []string{}
		}
		if pallet.TagIDs == nil {
			pallet.TagIDs = []string{}
		}
		if pallet.ID != key {
			delete(snapshot.Pallets, key)
		}
		snapshot.Pallets[pallet.ID] = pallet
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.slots {
		cloned.slots[k] = cloneSlot(v)
	}
	for k, v := range s.pallets {
		cloned.pallets[k] = clonePallet(v)
	}
	return cloned
}

func cloneSlot(s Slot) Slot {
	cp := s
	cp.PalletID = cloneStringPtr(s.PalletID)
	return cp
}

func clonePallet(p Pallet) Pallet {
	cp := p
	cp.ItemIDs = append([]string{}, p.ItemIDs...)
	cp.TagIDs = append([]string{}, p.TagIDs...)
	cp.SlotID = cloneStringPtr(p.SlotID)
	cp.CustomerOrderRef = cloneStringPtr(p.CustomerOrderRef)
	cp.InboundAt = cloneTimePtr(p.InboundAt)
	cp.OutboundAt = cloneTimePtr(p.OutboundAt)
	return cp
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneTimePtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Store provides an in-memory transactional store for the core domain. A
// single RWMutex guards both registries: transactions hold the write lock for
// their full duration, views clone under the read lock.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot without
// running rules. It is used to hydrate from a trusted persistence backend.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// transaction represents a mutation set applied to a private copy of the
// store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListPallets returns all pallets within the snapshot.
func (v transactionView) ListPallets() []Pallet {
	out := make([]Pallet, 0, len(v.state.pallets))
	for _, p := range v.state.pallets {
		out = append(out, clonePallet(p))
	}
	return out
}

// ListSlots returns all slots within the snapshot.
func (v transactionView) ListSlots() []Slot {
	out := make([]Slot, 0, len(v.state.slots))
	for _, sl := range v.state.slots {
		out = append(out, cloneSlot(sl))
	}
	return out
}

// FindPallet retrieves a pallet by id from the snapshot.
func (v transactionView) FindPallet(id string) (Pallet, bool) {
	p, ok := v.state.pallets[id]
	if !ok {
		return Pallet{}, false
	}
	return clonePallet(p), true
}

// FindSlot retrieves a slot by id from the snapshot.
func (v transactionView) FindSlot(id string) (Slot, bool) {
	sl, ok := v.state.slots[id]
	if !ok {
		return Slot{}, false
	}
	return cloneSlot(sl), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces committed state only when fn succeeds and no blocking rule
// fires; otherwise it is discarded.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	view := newTransactionView(&snapshot)
	return fn(view)
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every mutation in the transaction.
func (tx *transaction) Now() time.Time {
	return tx.now
}

// FindPallet exposes pallet lookup within the transaction scope.
func (tx *transaction) FindPallet(id string) (Pallet, bool) {
	p, ok := tx.state.pallets[id]
	if !ok {
		return Pallet{}, false
	}
	return clonePallet(p), true
}

// FindSlot exposes slot lookup within the transaction scope.
func (tx *transaction) FindSlot(id string) (Slot, bool) {
	sl, ok := tx.state.slots[id]
	if !ok {
		return Slot{}, false
	}
	return cloneSlot(sl), true
}

// CreatePallet stores a new pallet within the transaction.
func (tx *transaction) CreatePallet(p Pallet) (Pallet, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.pallets[p.ID]; exists {
		return Pallet{}, fmt.Errorf("pallet %q already exists", p.ID)
	}
	if p.ItemIDs == nil {
		p.ItemIDs = []string{}
	}
	if p.TagIDs == nil {
		p.TagIDs = []string{}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.pallets[p.ID] = clonePallet(p)
	tx.recordChange(Change{Entity: domain.EntityPallet, Action: domain.ActionCreate, After: clonePallet(p)})
	return clonePallet(p), nil
}

// UpdatePallet mutates a pallet using the provided mutator function.
func (tx *transaction) UpdatePallet(id string, mutator func(*Pallet) error) (Pallet, error) {
	current, ok := tx.state.pallets[id]
	if !ok {
		return Pallet{}, fmt.Errorf("pallet %q: %w", id, domain.ErrNotFound)
	}
	before := clonePallet(current)
	if err := mutator(&current); err != nil {
		return Pallet{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.pallets[id] = clonePallet(current)
	tx.recordChange(Change{Entity: domain.EntityPallet, Action: domain.ActionUpdate, Before: before, After: clonePallet(current)})
	return clonePallet(current), nil
}

// CreateSlot stores a new slot. Slot ids are derived from coordinates and must
// be unique.
func (tx *transaction) CreateSlot(sl Slot) (Slot, error) {
	if sl.Zone == "" {
		return Slot{}, fmt.Errorf("slot requires zone")
	}
	if sl.Row <= 0 || sl.Column <= 0 {
		return Slot{}, fmt.Errorf("slot row and column must be positive")
	}
	id := domain.SlotID(sl.Zone, sl.Row, sl.Column)
	if sl.ID != "" && sl.ID != id {
		return Slot{}, fmt.Errorf("slot id %q does not match coordinates %q", sl.ID, id)
	}
	sl.ID = id
	if _, exists := tx.state.slots[id]; exists {
		return Slot{}, fmt.Errorf("slot %q already exists", id)
	}
	if sl.Status == "" {
		sl.Status = domain.SlotEmpty
	}
	if sl.PriorityTier == "" {
		sl.PriorityTier = domain.TierNormal
	}
	sl.CreatedAt = tx.now
	sl.UpdatedAt = tx.now
	tx.state.slots[id] = cloneSlot(sl)
	tx.recordChange(Change{Entity: domain.EntitySlot, Action: domain.ActionCreate, After: cloneSlot(sl)})
	return cloneSlot(sl), nil
}

// UpdateSlot mutates an existing slot. Coordinates are fixed at creation and
// cannot be changed by the mutator.
func (tx *transaction) UpdateSlot(id string, mutator func(*Slot) error) (Slot, error) {
	current, ok := tx.state.slots[id]
	if !ok {
		return Slot{}, fmt.Errorf("slot %q: %w", id, domain.ErrNotFound)
	}
	before := cloneSlot(current)
	if err := mutator(&current); err != nil {
		return Slot{}, err
	}
	current.ID = id
	current.Zone = before.Zone
	current.Row = before.Row
	current.Column = before.Column
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.slots[id] = cloneSlot(current)
	tx.recordChange(Change{Entity: domain.EntitySlot, Action: domain.ActionUpdate, Before: before, After: cloneSlot(current)})
	return cloneSlot(current), nil
}

// ReplaceState swaps the transactional state for the provided snapshot. Rules
// still run before commit, so an inconsistent snapshot is rejected.
func (tx *transaction) ReplaceState(snapshot Snapshot) error {
	next := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	for _, p := range tx.state.pallets {
		tx.recordChange(Change{Entity: domain.EntityPallet, Action: domain.ActionDelete, Before: clonePallet(p)})
	}
	for _, sl := range tx.state.slots {
		tx.recordChange(Change{Entity: domain.EntitySlot, Action: domain.ActionDelete, Before: cloneSlot(sl)})
	}
	for _, sl := range next.slots {
		tx.recordChange(Change{Entity: domain.EntitySlot, Action: domain.ActionCreate, After: cloneSlot(sl)})
	}
	for _, p := range next.pallets {
		tx.recordChange(Change{Entity: domain.EntityPallet, Action: domain.ActionCreate, After: clonePallet(p)})
	}
	tx.state = next
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetPallet retrieves a pallet by id from committed state.
func (s *Store) GetPallet(id string) (Pallet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.pallets[id]
	if !ok {
		return Pallet{}, false
	}
	return clonePallet(p), true
}

// ListPallets returns all pallets from committed state.
func (s *Store) ListPallets() []Pallet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Pallet, 0, len(s.state.pallets))
	for _, p := range s.state.pallets {
		out = append(out, clonePallet(p))
	}
	return out
}

// GetSlot retrieves a slot by id from committed state.
func (s *Store) GetSlot(id string) (Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.state.slots[id]
	if !ok {
		return Slot{}, false
	}
	return cloneSlot(sl), true
}

// ListSlots returns all slots from committed state.
func (s *Store) ListSlots() []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Slot, 0, len(s.state.slots))
	for _, sl := range s.state.slots {
		out = append(out, cloneSlot(sl))
	}
	return out
}
