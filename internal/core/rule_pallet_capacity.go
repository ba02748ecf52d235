package core

import (
	"context"
	"fmt"

	"wmscore/pkg/domain"
)

// NewPalletCapacityRule returns the rule flagging pallets above their maximum
// capacity. Mutations already refuse to overfill, so this only fires for
// imported state and warns instead of blocking.
func NewPalletCapacityRule() domain.Rule {
	return palletCapacityRule{}
}

type palletCapacityRule struct{}

func (palletCapacityRule) Name() string { return "pallet_capacity" }

func (palletCapacityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityPallet || change.After == nil {
			continue
		}
		p, ok := change.After.(domain.Pallet)
		if !ok || p.Shipped() || len(p.ItemIDs) <= p.MaxCapacity {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "pallet_capacity",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("pallet %s over capacity: %d/%d items", p.ID, len(p.ItemIDs), p.MaxCapacity),
			Entity:   domain.EntityPallet,
			EntityID: p.ID,
		})
	}
	return res, nil
}
