package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"wmscore/pkg/domain"
)

// Topology describes the slot grid seeded at bootstrap.
type Topology struct {
	Zones       []string
	RowsPerZone int
	ColsPerZone int
}

// Validate rejects grids that cannot produce unambiguous slot ids.
func (t Topology) Validate() error {
	if len(t.Zones) == 0 {
		return fmt.Errorf("at least one zone is required")
	}
	if t.RowsPerZone <= 0 || t.ColsPerZone <= 0 {
		return fmt.Errorf("rows and columns per zone must be positive, got %dx%d", t.RowsPerZone, t.ColsPerZone)
	}
	seen := make(map[string]struct{}, len(t.Zones))
	for _, z := range t.Zones {
		if strings.TrimSpace(z) == "" || strings.Contains(z, "-") {
			return fmt.Errorf("invalid zone name %q", z)
		}
		if _, dup := seen[z]; dup {
			return fmt.Errorf("duplicate zone %q", z)
		}
		seen[z] = struct{}{}
	}
	return nil
}

// bootstrapSlots seeds the grid. It is a one-time migration: a registry that
// already holds slots is rejected.
func bootstrapSlots(tx Transaction, topo Topology, highRows int) ([]Slot, error) {
	if err := topo.Validate(); err != nil {
		return nil, fail(domain.ErrInvalidState, "", "", err.Error())
	}
	if existing := len(tx.Snapshot().ListSlots()); existing > 0 {
		return nil, fail(domain.ErrInvalidState, "", "", fmt.Sprintf("registry already holds %d slots", existing))
	}
	out := make([]Slot, 0, len(topo.Zones)*topo.RowsPerZone*topo.ColsPerZone)
	for _, zone := range topo.Zones {
		for row := 1; row <= topo.RowsPerZone; row++ {
			tier := domain.TierNormal
			if row <= highRows {
				tier = domain.TierHigh
			}
			for col := 1; col <= topo.ColsPerZone; col++ {
				created, err := tx.CreateSlot(Slot{Zone: zone, Row: row, Column: col, PriorityTier: tier, Status: domain.SlotEmpty})
				if err != nil {
					return nil, err
				}
				out = append(out, created)
			}
		}
	}
	return out, nil
}

func loadSlot(tx Transaction, slotID string) (Slot, error) {
	sl, ok := tx.FindSlot(slotID)
	if !ok {
		return Slot{}, fail(domain.ErrNotFound, "", slotID, "slot")
	}
	return sl, nil
}

// assignSlot binds palletID to the slot. Only the allocation and relocation
// paths call it, always together with the pallet-side update.
func assignSlot(tx Transaction, slotID, palletID string) (Slot, error) {
	sl, err := loadSlot(tx, slotID)
	if err != nil {
		return Slot{}, err
	}
	switch sl.Status {
	case domain.SlotOccupied:
		return Slot{}, fail(domain.ErrSlotOccupied, palletID, slotID, "held by "+deref(sl.PalletID))
	case domain.SlotMaintenance:
		return Slot{}, fail(domain.ErrSlotUnavailable, palletID, slotID, "slot under maintenance")
	}
	return tx.UpdateSlot(slotID, func(s *Slot) error {
		s.Status = domain.SlotOccupied
		s.PalletID = &palletID
		return nil
	})
}

// releaseSlot clears the slot; a slot that is already empty is left alone.
func releaseSlot(tx Transaction, slotID string) (Slot, error) {
	sl, err := loadSlot(tx, slotID)
	if err != nil {
		return Slot{}, err
	}
	if sl.Status == domain.SlotEmpty && sl.PalletID == nil {
		return sl, nil
	}
	return tx.UpdateSlot(slotID, func(s *Slot) error {
		s.Status = domain.SlotEmpty
		s.PalletID = nil
		return nil
	})
}

func reserveSlot(tx Transaction, slotID string) (Slot, error) {
	sl, err := loadSlot(tx, slotID)
	if err != nil {
		return Slot{}, err
	}
	if sl.Status != domain.SlotEmpty {
		return Slot{}, fail(domain.ErrInvalidState, "", slotID, "cannot reserve a "+string(sl.Status)+" slot")
	}
	return tx.UpdateSlot(slotID, func(s *Slot) error {
		s.Status = domain.SlotReserved
		return nil
	})
}

func releaseReservation(tx Transaction, slotID string) (Slot, error) {
	sl, err := loadSlot(tx, slotID)
	if err != nil {
		return Slot{}, err
	}
	if sl.Status != domain.SlotReserved {
		return Slot{}, fail(domain.ErrInvalidState, "", slotID, "slot is "+string(sl.Status)+", not reserved")
	}
	return tx.UpdateSlot(slotID, func(s *Slot) error {
		s.Status = domain.SlotEmpty
		return nil
	})
}

// setMaintenance toggles maintenance. Enabling drops a reservation; disabling a
// slot that is not under maintenance changes nothing.
func setMaintenance(tx Transaction, slotID string, enabled bool) (Slot, error) {
	sl, err := loadSlot(tx, slotID)
	if err != nil {
		return Slot{}, err
	}
	var next domain.SlotStatus
	switch {
	case enabled && sl.Status == domain.SlotOccupied:
		return Slot{}, fail(domain.ErrSlotOccupied, deref(sl.PalletID), slotID, "cannot take an occupied slot offline")
	case enabled && sl.Status != domain.SlotMaintenance:
		next = domain.SlotMaintenance
	case !enabled && sl.Status == domain.SlotMaintenance:
		next = domain.SlotEmpty
	default:
		return sl, nil
	}
	return tx.UpdateSlot(slotID, func(s *Slot) error {
		s.Status = next
		return nil
	})
}

// Bootstrap seeds the slot grid. Rows up to the configured high-priority row
// count are tagged high tier.
func (s *Service) Bootstrap(ctx context.Context, topo Topology) ([]Slot, Result, error) {
	var created []Slot
	res, err := s.mutate(ctx, &opScope{name: "bootstrap"}, func(tx Transaction) error {
		var err error
		created, err = bootstrapSlots(tx, topo, s.highRows)
		return err
	})
	return created, res, err
}

// ReserveSlot holds an empty slot out of allocation.
func (s *Service) ReserveSlot(ctx context.Context, slotID string) (Slot, Result, error) {
	return s.slotMutation(ctx, "reserve_slot", slotID, func(tx Transaction) (Slot, error) {
		return reserveSlot(tx, slotID)
	})
}

// ReleaseReservation returns a reserved slot to the pool.
func (s *Service) ReleaseReservation(ctx context.Context, slotID string) (Slot, Result, error) {
	return s.slotMutation(ctx, "release_reservation", slotID, func(tx Transaction) (Slot, error) {
		return releaseReservation(tx, slotID)
	})
}

// SetMaintenance takes a slot offline or brings it back.
func (s *Service) SetMaintenance(ctx context.Context, slotID string, enabled bool) (Slot, Result, error) {
	return s.slotMutation(ctx, "set_maintenance", slotID, func(tx Transaction) (Slot, error) {
		return setMaintenance(tx, slotID, enabled)
	})
}

func (s *Service) slotMutation(ctx context.Context, op, slotID string, fn func(Transaction) (Slot, error)) (Slot, Result, error) {
	var out Slot
	res, err := s.mutate(ctx, &opScope{name: op, slotID: slotID}, func(tx Transaction) error {
		var err error
		out, err = fn(tx)
		return err
	})
	return out, res, err
}

// GetSlot returns a committed slot.
func (s *Service) GetSlot(ctx context.Context, slotID string) (Slot, error) {
	var out Slot
	err := s.read(ctx, &opScope{name: "get_slot", slotID: slotID}, func(view TransactionView) error {
		sl, ok := view.FindSlot(slotID)
		if !ok {
			return fail(domain.ErrNotFound, "", slotID, "slot")
		}
		out = sl
		return nil
	})
	return out, err
}

// ListSlots returns every slot ordered by zone, row and column.
func (s *Service) ListSlots(ctx context.Context) ([]Slot, error) {
	var out []Slot
	err := s.read(ctx, &opScope{name: "list_slots"}, func(view TransactionView) error {
		out = view.ListSlots()
		sortSlotsByCoordinate(out)
		return nil
	})
	return out, err
}

func sortSlotsByCoordinate(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Zone != b.Zone {
			return a.Zone < b.Zone
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Column < b.Column
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
