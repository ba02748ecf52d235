package core

import (
	"context"
	"fmt"

	"wmscore/pkg/domain"
)

// NewSlotBindingRule returns the rule that keeps slots and pallets pointing at
// each other: an occupied slot names a pallet stored there, a stored pallet
// names an occupied slot holding it, and shipped pallets hold no slot.
func NewSlotBindingRule() domain.Rule {
	return slotBindingRule{}
}

type slotBindingRule struct{}

func (slotBindingRule) Name() string { return "slot_binding" }

func (slotBindingRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	slots := view.ListSlots()
	holders := make(map[string]string, len(slots))
	for _, sl := range slots {
		switch {
		case sl.Status == domain.SlotOccupied && sl.PalletID == nil:
			res.Violations = append(res.Violations, bindingViolation(domain.EntitySlot, sl.ID, fmt.Sprintf("slot %s is occupied without a pallet", sl.ID)))
			continue
		case sl.Status != domain.SlotOccupied && sl.PalletID != nil:
			res.Violations = append(res.Violations, bindingViolation(domain.EntitySlot, sl.ID, fmt.Sprintf("slot %s is %s but references pallet %s", sl.ID, sl.Status, *sl.PalletID)))
			continue
		case sl.PalletID == nil:
			continue
		}
		palletID := *sl.PalletID
		if other, dup := holders[palletID]; dup {
			res.Violations = append(res.Violations, bindingViolation(domain.EntitySlot, sl.ID, fmt.Sprintf("pallet %s is held by slots %s and %s", palletID, other, sl.ID)))
			continue
		}
		holders[palletID] = sl.ID
		p, ok := view.FindPallet(palletID)
		switch {
		case !ok:
			res.Violations = append(res.Violations, bindingViolation(domain.EntitySlot, sl.ID, fmt.Sprintf("slot %s references missing pallet %s", sl.ID, palletID)))
		case p.SlotID == nil || *p.SlotID != sl.ID:
			res.Violations = append(res.Violations, bindingViolation(domain.EntitySlot, sl.ID, fmt.Sprintf("slot %s holds pallet %s which points at %q", sl.ID, palletID, deref(p.SlotID))))
		}
	}

	for _, p := range view.ListPallets() {
		if p.SlotID == nil {
			continue
		}
		if p.Shipped() {
			res.Violations = append(res.Violations, bindingViolation(domain.EntityPallet, p.ID, fmt.Sprintf("shipped pallet %s still references slot %s", p.ID, *p.SlotID)))
			continue
		}
		if holder, ok := holders[p.ID]; !ok || holder != *p.SlotID {
			res.Violations = append(res.Violations, bindingViolation(domain.EntityPallet, p.ID, fmt.Sprintf("pallet %s references slot %s which does not hold it", p.ID, *p.SlotID)))
		}
	}
	return res, nil
}

func bindingViolation(entity domain.EntityType, id, message string) domain.Violation {
	return domain.Violation{
		Rule:     "slot_binding",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}
