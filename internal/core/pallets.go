package core

import (
	"context"
	"errors"
	"fmt"

	"wmscore/pkg/domain"
)

// PalletSpec describes a pallet to create. A nil Capacity selects the service
// default.
type PalletSpec struct {
	ItemIDs  []string
	TagIDs   []string
	Capacity *Capacity
}

func (s *Service) capacityFor(spec PalletSpec) Capacity {
	if spec.Capacity != nil {
		return *spec.Capacity
	}
	return s.capacity
}

// buildPallet validates a spec and returns the unsaved record.
func buildPallet(spec PalletSpec, capacity Capacity) (Pallet, error) {
	if err := capacity.Validate(); err != nil {
		return Pallet{}, fail(domain.ErrInvalidState, "", "", err.Error())
	}
	seen := make(map[string]struct{}, len(spec.ItemIDs))
	for _, id := range spec.ItemIDs {
		if id == "" {
			return Pallet{}, fail(domain.ErrInvalidState, "", "", "item id must not be empty")
		}
		if _, dup := seen[id]; dup {
			return Pallet{}, &domain.OpError{ItemID: id, Detail: "duplicate item id", Err: domain.ErrInvalidState}
		}
		seen[id] = struct{}{}
	}
	if len(spec.TagIDs) > len(spec.ItemIDs) {
		return Pallet{}, fail(domain.ErrInvalidState, "", "", fmt.Sprintf("%d tags for %d items", len(spec.TagIDs), len(spec.ItemIDs)))
	}
	for _, tag := range spec.TagIDs {
		if tag == "" {
			return Pallet{}, fail(domain.ErrInvalidState, "", "", "tag id must not be empty")
		}
	}
	if len(spec.ItemIDs) > capacity.Max {
		return Pallet{}, fail(domain.ErrCapacityExceeded, "", "", fmt.Sprintf("%d items exceed max capacity %d", len(spec.ItemIDs), capacity.Max))
	}
	return Pallet{
		ItemIDs:          append([]string{}, spec.ItemIDs...),
		TagIDs:           append([]string{}, spec.TagIDs...),
		StandardCapacity: capacity.Standard,
		MaxCapacity:      capacity.Max,
	}, nil
}

func createPallet(tx Transaction, spec PalletSpec, capacity Capacity) (Pallet, error) {
	p, err := buildPallet(spec, capacity)
	if err != nil {
		return Pallet{}, err
	}
	return tx.CreatePallet(p)
}

// loadPallet fetches a pallet or returns a NotFound OpError.
func loadPallet(tx Transaction, palletID string) (Pallet, error) {
	p, ok := tx.FindPallet(palletID)
	if !ok {
		return Pallet{}, fail(domain.ErrNotFound, palletID, "", "pallet")
	}
	return p, nil
}

func addItem(tx Transaction, palletID, itemID, tagID string) (Pallet, error) {
	p, err := loadPallet(tx, palletID)
	if err != nil {
		return Pallet{}, err
	}
	switch {
	case itemID == "":
		return Pallet{}, fail(domain.ErrInvalidState, palletID, "", "item id must not be empty")
	case p.Shipped():
		return Pallet{}, &domain.OpError{PalletID: palletID, ItemID: itemID, Detail: "pallet is shipped", Err: domain.ErrInvalidState}
	case len(p.ItemIDs) >= p.MaxCapacity:
		return Pallet{}, &domain.OpError{PalletID: palletID, ItemID: itemID, Detail: fmt.Sprintf("pallet holds %d/%d items", len(p.ItemIDs), p.MaxCapacity), Err: domain.ErrCapacityExceeded}
	case p.ItemIndex(itemID) >= 0:
		return Pallet{}, &domain.OpError{PalletID: palletID, ItemID: itemID, Detail: "item already loaded", Err: domain.ErrInvalidState}
	case tagID != "" && len(p.TagIDs) != len(p.ItemIDs):
		return Pallet{}, &domain.OpError{PalletID: palletID, ItemID: itemID, Detail: "tag would not line up with its item", Err: domain.ErrInvalidState}
	}
	return tx.UpdatePallet(palletID, func(p *Pallet) error {
		p.ItemIDs = append(p.ItemIDs, itemID)
		if tagID != "" {
			p.TagIDs = append(p.TagIDs, tagID)
		}
		return nil
	})
}

// removeItem drops an item and its positional tag. An absent item leaves the
// pallet untouched and reports removed=false.
func removeItem(tx Transaction, palletID, itemID string) (Pallet, bool, error) {
	p, err := loadPallet(tx, palletID)
	if err != nil {
		return Pallet{}, false, err
	}
	if p.Shipped() {
		return Pallet{}, false, &domain.OpError{PalletID: palletID, ItemID: itemID, Detail: "pallet is shipped", Err: domain.ErrInvalidState}
	}
	idx := p.ItemIndex(itemID)
	if idx < 0 {
		return p, false, nil
	}
	updated, err := tx.UpdatePallet(palletID, func(p *Pallet) error {
		p.ItemIDs = append(p.ItemIDs[:idx:idx], p.ItemIDs[idx+1:]...)
		if idx < len(p.TagIDs) {
			p.TagIDs = append(p.TagIDs[:idx:idx], p.TagIDs[idx+1:]...)
		}
		return nil
	})
	if err != nil {
		return Pallet{}, false, err
	}
	return updated, true, nil
}

// markInbound records that a pallet was put into slotID now.
func markInbound(tx Transaction, palletID, slotID string) (Pallet, error) {
	now := tx.Now()
	return tx.UpdatePallet(palletID, func(p *Pallet) error {
		p.SlotID = &slotID
		p.InboundAt = &now
		return nil
	})
}

// markOutbound ships a pallet. The caller releases its slot first.
func markOutbound(tx Transaction, palletID, orderRef string) (Pallet, error) {
	p, err := loadPallet(tx, palletID)
	if err != nil {
		return Pallet{}, err
	}
	if p.Shipped() {
		return Pallet{}, fail(domain.ErrInvalidState, palletID, "", "pallet already shipped")
	}
	if len(p.ItemIDs) == 0 {
		return Pallet{}, fail(domain.ErrInvalidState, palletID, "", "pallet has no items")
	}
	now := tx.Now()
	return tx.UpdatePallet(palletID, func(p *Pallet) error {
		p.OutboundAt = &now
		p.CustomerOrderRef = &orderRef
		p.SlotID = nil
		return nil
	})
}

// CreatePallet registers a new, unallocated pallet.
func (s *Service) CreatePallet(ctx context.Context, spec PalletSpec) (Pallet, Result, error) {
	scope := &opScope{name: "create_pallet"}
	capacity := s.capacityFor(spec)
	var created Pallet
	res, err := s.mutate(ctx, scope, func(tx Transaction) error {
		var err error
		created, err = createPallet(tx, spec, capacity)
		scope.palletID = created.ID
		return err
	})
	return created, res, err
}

// AddItem loads one item, optionally with its tracking tag, onto a pallet.
func (s *Service) AddItem(ctx context.Context, palletID, itemID, tagID string) (Pallet, Result, error) {
	scope := &opScope{name: "add_item", palletID: palletID, itemID: itemID}
	var updated Pallet
	res, err := s.mutate(ctx, scope, func(tx Transaction) error {
		var err error
		updated, err = addItem(tx, palletID, itemID, tagID)
		return err
	})
	return updated, res, err
}

// RemoveItem unloads an item. removed is false when the item was not on the
// pallet, in which case nothing changes.
func (s *Service) RemoveItem(ctx context.Context, palletID, itemID string) (pallet Pallet, removed bool, res Result, err error) {
	scope := &opScope{name: "remove_item", palletID: palletID, itemID: itemID}
	res, err = s.mutate(ctx, scope, func(tx Transaction) error {
		var err error
		pallet, removed, err = removeItem(tx, palletID, itemID)
		return err
	})
	if err != nil && !errors.Is(err, domain.ErrNotPersisted) {
		return Pallet{}, false, res, err
	}
	return pallet, removed, res, err
}

// GetPallet returns a committed pallet.
func (s *Service) GetPallet(ctx context.Context, palletID string) (Pallet, error) {
	scope := &opScope{name: "get_pallet", palletID: palletID}
	var out Pallet
	err := s.read(ctx, scope, func(view TransactionView) error {
		p, ok := view.FindPallet(palletID)
		if !ok {
			return fail(domain.ErrNotFound, palletID, "", "pallet")
		}
		out = p
		return nil
	})
	return out, err
}

// ListPallets returns every pallet ordered by creation time then id.
func (s *Service) ListPallets(ctx context.Context) ([]Pallet, error) {
	var out []Pallet
	err := s.read(ctx, &opScope{name: "list_pallets"}, func(view TransactionView) error {
		out = view.ListPallets()
		sortPallets(out)
		return nil
	})
	return out, err
}
