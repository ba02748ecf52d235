package core

import (
	"container/heap"
	"context"
	"fmt"

	"wmscore/pkg/domain"
)

// BatchOutbound reports a FIFO batch shipment. TargetMet is false when the
// candidates ran out before TotalItems reached Target.
type BatchOutbound struct {
	Shipped    []Pallet `json:"shipped"`
	TotalItems int      `json:"total_items"`
	Target     int      `json:"target"`
	TargetMet  bool     `json:"target_met"`
}

// fifoQueue is a min-heap of stored pallets keyed by inbound time, ties
// broken by id.
type fifoQueue []Pallet

func (q fifoQueue) Len() int { return len(q) }

func (q fifoQueue) Less(i, j int) bool {
	a, b := q[i].InboundAt, q[j].InboundAt
	if !a.Equal(*b) {
		return a.Before(*b)
	}
	return q[i].ID < q[j].ID
}

func (q fifoQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *fifoQueue) Push(x any) { *q = append(*q, x.(Pallet)) }

func (q *fifoQueue) Pop() any {
	old := *q
	n := len(old)
	p := old[n-1]
	*q = old[:n-1]
	return p
}

// batchCandidates collects pallets eligible for batch shipment: stored at some
// point, not shipped, and either full or partial.
func batchCandidates(pallets []Pallet) *fifoQueue {
	q := make(fifoQueue, 0, len(pallets))
	for _, p := range pallets {
		if p.InboundAt == nil {
			continue
		}
		switch p.Status() {
		case domain.PalletFull, domain.PalletPartial:
			q = append(q, p)
		}
	}
	heap.Init(&q)
	return &q
}

// shipPallet releases the pallet's slot and marks it outbound.
func shipPallet(tx Transaction, palletID, orderRef string) (Pallet, error) {
	p, err := loadPallet(tx, palletID)
	if err != nil {
		return Pallet{}, err
	}
	if p.Shipped() {
		return Pallet{}, fail(domain.ErrAlreadyShipped, palletID, "", "shipped to "+deref(p.CustomerOrderRef))
	}
	if len(p.ItemIDs) == 0 {
		return Pallet{}, fail(domain.ErrEmptyPallet, palletID, "", "")
	}
	if p.SlotID != nil {
		if _, err := releaseSlot(tx, *p.SlotID); err != nil {
			return Pallet{}, err
		}
	}
	return markOutbound(tx, palletID, orderRef)
}

func shipBatch(tx Transaction, target int, orderRef string) (BatchOutbound, error) {
	if target <= 0 {
		return BatchOutbound{}, fail(domain.ErrInvalidState, "", "", fmt.Sprintf("target item count must be positive, got %d", target))
	}
	queue := batchCandidates(tx.Snapshot().ListPallets())
	if queue.Len() == 0 {
		return BatchOutbound{}, fail(domain.ErrNoPalletsAvailable, "", "", "")
	}
	out := BatchOutbound{Target: target, Shipped: []Pallet{}}
	for out.TotalItems < target && queue.Len() > 0 {
		next := heap.Pop(queue).(Pallet)
		shipped, err := shipPallet(tx, next.ID, orderRef)
		if err != nil {
			return BatchOutbound{}, err
		}
		out.Shipped = append(out.Shipped, shipped)
		out.TotalItems += len(shipped.ItemIDs)
	}
	out.TargetMet = out.TotalItems >= target
	return out, nil
}

// relocatePallet moves a pallet into an empty slot, releasing its current one.
// The original inbound time is kept so FIFO order is unaffected.
func relocatePallet(tx Transaction, palletID, slotID string) (Placement, error) {
	p, err := loadPallet(tx, palletID)
	if err != nil {
		return Placement{}, err
	}
	if p.Shipped() {
		return Placement{}, fail(domain.ErrAlreadyShipped, palletID, slotID, "")
	}
	dest, err := loadSlot(tx, slotID)
	if err != nil {
		return Placement{}, err
	}
	if dest.Status != domain.SlotEmpty {
		return Placement{}, fail(domain.ErrSlotUnavailable, palletID, slotID, "destination is "+string(dest.Status))
	}
	if p.SlotID != nil {
		if _, err := releaseSlot(tx, *p.SlotID); err != nil {
			return Placement{}, err
		}
	}
	sl, err := assignSlot(tx, slotID, palletID)
	if err != nil {
		return Placement{}, err
	}
	now := tx.Now()
	p, err = tx.UpdatePallet(palletID, func(p *Pallet) error {
		p.SlotID = &slotID
		if p.InboundAt == nil {
			p.InboundAt = &now
		}
		return nil
	})
	if err != nil {
		return Placement{}, err
	}
	return Placement{Pallet: p, Slot: sl}, nil
}

// CreateAndInbound creates a pallet and stores it in one transaction. When no
// slot is free the pallet is not kept and ErrNoAvailableSlot is returned.
func (s *Service) CreateAndInbound(ctx context.Context, spec PalletSpec) (Placement, Result, error) {
	scope := &opScope{name: "create_and_inbound"}
	capacity := s.capacityFor(spec)
	var placed Placement
	res, err := s.mutate(ctx, scope, func(tx Transaction) error {
		created, err := createPallet(tx, spec, capacity)
		if err != nil {
			return err
		}
		scope.palletID = created.ID
		placed, err = allocate(tx, created.ID)
		scope.slotID = placed.Slot.ID
		return err
	})
	return placed, res, err
}

// OutboundSingle ships one pallet against a customer order.
func (s *Service) OutboundSingle(ctx context.Context, palletID, orderRef string) (Pallet, Result, error) {
	scope := &opScope{name: "outbound_single", palletID: palletID}
	var shipped Pallet
	res, err := s.mutate(ctx, scope, func(tx Transaction) error {
		if p, ok := tx.FindPallet(palletID); ok {
			scope.slotID = deref(p.SlotID)
		}
		var err error
		shipped, err = shipPallet(tx, palletID, orderRef)
		return err
	})
	return shipped, res, err
}

// OutboundBatch ships the oldest stored pallets until at least target items
// leave. Falling short is reported through TargetMet, not as an error.
func (s *Service) OutboundBatch(ctx context.Context, target int, orderRef string) (BatchOutbound, Result, error) {
	var out BatchOutbound
	res, err := s.mutate(ctx, &opScope{name: "outbound_batch"}, func(tx Transaction) error {
		var err error
		out, err = shipBatch(tx, target, orderRef)
		return err
	})
	return out, res, err
}

// Relocate moves a stored pallet to an empty slot.
func (s *Service) Relocate(ctx context.Context, palletID, slotID string) (Placement, Result, error) {
	var placed Placement
	res, err := s.mutate(ctx, &opScope{name: "relocate", palletID: palletID, slotID: slotID}, func(tx Transaction) error {
		var err error
		placed, err = relocatePallet(tx, palletID, slotID)
		return err
	})
	return placed, res, err
}
