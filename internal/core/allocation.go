package core

import (
	"context"
	"sort"

	"wmscore/pkg/domain"
)

// Placement pairs a pallet with the slot holding it.
type Placement struct {
	Pallet Pallet `json:"pallet"`
	Slot   Slot   `json:"slot"`
}

// slotPrecedes is the allocation order: high tier first, then zone, row and
// column ascending. It is a total order over distinct coordinates, so the
// chosen slot never depends on map iteration.
func slotPrecedes(a, b Slot) bool {
	aHigh, bHigh := a.PriorityTier == domain.TierHigh, b.PriorityTier == domain.TierHigh
	if aHigh != bHigh {
		return aHigh
	}
	if a.Zone != b.Zone {
		return a.Zone < b.Zone
	}
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Column < b.Column
}

// rankCandidates returns the empty slots in allocation order.
func rankCandidates(slots []Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, sl := range slots {
		if sl.Status == domain.SlotEmpty {
			out = append(out, sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return slotPrecedes(out[i], out[j]) })
	return out
}

// selectSlot picks the best empty slot in a linear scan.
func selectSlot(slots []Slot) (Slot, bool) {
	var best Slot
	found := false
	for _, sl := range slots {
		if sl.Status != domain.SlotEmpty {
			continue
		}
		if !found || slotPrecedes(sl, best) {
			best, found = sl, true
		}
	}
	return best, found
}

// allocate binds an unstored pallet to the best empty slot and marks it
// inbound. Both writes share the caller's transaction.
func allocate(tx Transaction, palletID string) (Placement, error) {
	p, err := loadPallet(tx, palletID)
	if err != nil {
		return Placement{}, err
	}
	if p.Shipped() {
		return Placement{}, fail(domain.ErrAlreadyShipped, palletID, "", "")
	}
	if p.SlotID != nil {
		return Placement{}, fail(domain.ErrInvalidState, palletID, *p.SlotID, "pallet already stored")
	}
	candidate, ok := selectSlot(tx.Snapshot().ListSlots())
	if !ok {
		return Placement{}, fail(domain.ErrNoAvailableSlot, palletID, "", "")
	}
	sl, err := assignSlot(tx, candidate.ID, palletID)
	if err != nil {
		return Placement{}, err
	}
	p, err = markInbound(tx, palletID, sl.ID)
	if err != nil {
		return Placement{}, err
	}
	return Placement{Pallet: p, Slot: sl}, nil
}

// Allocate stores an existing pallet that is awaiting a slot.
func (s *Service) Allocate(ctx context.Context, palletID string) (Placement, Result, error) {
	scope := &opScope{name: "allocate", palletID: palletID}
	var placed Placement
	res, err := s.mutate(ctx, scope, func(tx Transaction) error {
		var err error
		placed, err = allocate(tx, palletID)
		scope.slotID = placed.Slot.ID
		return err
	})
	return placed, res, err
}

// AllocationOrder lists the empty slots in the order Allocate would use them.
func (s *Service) AllocationOrder(ctx context.Context) ([]Slot, error) {
	var out []Slot
	err := s.read(ctx, &opScope{name: "allocation_order"}, func(view TransactionView) error {
		out = rankCandidates(view.ListSlots())
		return nil
	})
	return out, err
}
