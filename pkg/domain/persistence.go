package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreatePallet(Pallet) (Pallet, error)
	UpdatePallet(id string, mutator func(*Pallet) error) (Pallet, error)
	CreateSlot(Slot) (Slot, error)
	UpdateSlot(id string, mutator func(*Slot) error) (Slot, error)
	ReplaceState(Snapshot) error
	FindPallet(id string) (Pallet, bool)
	FindSlot(id string) (Slot, bool)
	Now() time.Time
}

// TransactionView provides read-only access to snapshot data for rules and
// reporting.
type TransactionView interface {
	ListPallets() []Pallet
	ListSlots() []Slot
	FindPallet(id string) (Pallet, bool)
	FindSlot(id string) (Slot, bool)
}

// Snapshot captures the full registry state: both collections keyed by id.
type Snapshot struct {
	Slots   map[string]Slot   `json:"slots"`
	Pallets map[string]Pallet `json:"pallets"`
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ExportState() Snapshot
	GetPallet(id string) (Pallet, bool)
	ListPallets() []Pallet
	GetSlot(id string) (Slot, bool)
	ListSlots() []Slot
}
