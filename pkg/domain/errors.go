package domain

import (
	"errors"
	"strings"
)

// Error kinds returned by registry, allocation and coordinator operations.
// Callers match them with errors.Is; OpError carries the identifiers involved.
var (
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrSlotOccupied       = errors.New("slot occupied")
	ErrSlotUnavailable    = errors.New("slot unavailable")
	ErrNoAvailableSlot    = errors.New("no available slot")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyShipped     = errors.New("pallet already shipped")
	ErrEmptyPallet        = errors.New("pallet is empty")
	ErrNoPalletsAvailable = errors.New("no pallets available")
	ErrInvalidState       = errors.New("invalid state")

	// ErrNotPersisted marks a commit that was applied in memory but could not
	// be written to durable storage. The operation's results are valid and
	// must not be retried.
	ErrNotPersisted = errors.New("committed but not persisted")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrSlotOccupied, "slot_occupied"},
	{ErrSlotUnavailable, "slot_unavailable"},
	{ErrNoAvailableSlot, "no_available_slot"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyShipped, "already_shipped"},
	{ErrEmptyPallet, "empty_pallet"},
	{ErrNoPalletsAvailable, "no_pallets_available"},
	{ErrInvalidState, "invalid_state"},
	{ErrNotPersisted, "not_persisted"},
}

// OpError describes a failed operation together with the entities it touched.
type OpError struct {
	Op       string
	PalletID string
	SlotID   string
	ItemID   string
	Detail   string
	Err      error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.PalletID != "" {
		b.WriteString(" pallet=")
		b.WriteString(e.PalletID)
	}
	if e.SlotID != "" {
		b.WriteString(" slot=")
		b.WriteString(e.SlotID)
	}
	if e.ItemID != "" {
		b.WriteString(" item=")
		b.WriteString(e.ItemID)
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// KindOf returns a stable label for the error kind, "rule_violation" for
// blocked commits, "internal" for anything else and "" for nil.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	var rv RuleViolationError
	if errors.As(err, &rv) {
		return "rule_violation"
	}
	return "internal"
}
