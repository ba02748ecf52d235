// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by wmscore.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPallet identifies a pallet record.
	EntityPallet EntityType = "pallet"
	// EntitySlot identifies a warehouse slot record.
	EntitySlot EntityType = "slot"
)

// PalletStatus is the derived load state of a pallet.
type PalletStatus string

// Pallet statuses. Only Shipped is driven by an explicit transition; the rest
// follow from the item count relative to the pallet capacities.
const (
	PalletEmpty      PalletStatus = "empty"
	PalletPartial    PalletStatus = "partial"
	PalletFull       PalletStatus = "full"
	PalletOverloaded PalletStatus = "overloaded"
	PalletShipped    PalletStatus = "shipped"
)

// ParsePalletStatus validates a textual pallet status.
func ParsePalletStatus(s string) (PalletStatus, error) {
	switch st := PalletStatus(s); st {
	case PalletEmpty, PalletPartial, PalletFull, PalletOverloaded, PalletShipped:
		return st, nil
	}
	return "", fmt.Errorf("unknown pallet status %q", s)
}

// SlotStatus captures the occupancy state of a slot.
type SlotStatus string

// Slot statuses.
const (
	SlotEmpty       SlotStatus = "empty"
	SlotOccupied    SlotStatus = "occupied"
	SlotReserved    SlotStatus = "reserved"
	SlotMaintenance SlotStatus = "maintenance"
)

// PriorityTier biases allocation toward rows nearest the dock.
type PriorityTier string

// Priority tiers assigned at bootstrap.
const (
	TierHigh   PriorityTier = "high"
	TierNormal PriorityTier = "normal"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Capacity bounds the number of items a pallet carries.
type Capacity struct {
	Standard int `json:"standard_capacity"`
	Max      int `json:"max_capacity"`
}

// Validate enforces 0 < Standard <= Max.
func (c Capacity) Validate() error {
	if c.Standard <= 0 {
		return fmt.Errorf("standard capacity must be positive, got %d", c.Standard)
	}
	if c.Max < c.Standard {
		return fmt.Errorf("max capacity %d below standard capacity %d", c.Max, c.Standard)
	}
	return nil
}

// Pallet is a physical unit load tracked through inbound and outbound.
type Pallet struct {
	Base
	ItemIDs          []string   `json:"item_ids"`
	TagIDs           []string   `json:"tag_ids"`
	SlotID           *string    `json:"slot_id"`
	StandardCapacity int        `json:"standard_capacity"`
	MaxCapacity      int        `json:"max_capacity"`
	InboundAt        *time.Time `json:"inbound_at"`
	OutboundAt       *time.Time `json:"outbound_at"`
	CustomerOrderRef *string    `json:"customer_order_ref"`
}

// DerivePalletStatus maps an item count onto a load status.
func DerivePalletStatus(items, standard, max int, shipped bool) PalletStatus {
	switch {
	case shipped:
		return PalletShipped
	case items == 0:
		return PalletEmpty
	case items > max:
		return PalletOverloaded
	case items >= standard:
		return PalletFull
	default:
		return PalletPartial
	}
}

// Status returns the derived status of the pallet.
func (p Pallet) Status() PalletStatus {
	return DerivePalletStatus(len(p.ItemIDs), p.StandardCapacity, p.MaxCapacity, p.Shipped())
}

// Shipped reports whether the pallet has left the warehouse.
func (p Pallet) Shipped() bool { return p.OutboundAt != nil }

// Stored reports whether the pallet currently sits in a slot.
func (p Pallet) Stored() bool { return p.SlotID != nil }

// Capacity returns the pallet capacity bounds.
func (p Pallet) Capacity() Capacity {
	return Capacity{Standard: p.StandardCapacity, Max: p.MaxCapacity}
}

// ItemIndex returns the position of itemID or -1.
func (p Pallet) ItemIndex(itemID string) int {
	for i, id := range p.ItemIDs {
		if id == itemID {
			return i
		}
	}
	return -1
}

// HasTag reports whether tagID is attached to the pallet.
func (p Pallet) HasTag(tagID string) bool {
	for _, id := range p.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}

type palletAlias Pallet

// MarshalJSON includes the derived status so snapshot readers see it without
// recomputing. Nullable fields are always emitted.
func (p Pallet) MarshalJSON() ([]byte, error) {
	type payload struct {
		palletAlias
		Status PalletStatus `json:"status"`
	}
	alias := palletAlias(p)
	if alias.ItemIDs == nil {
		alias.ItemIDs = []string{}
	}
	if alias.TagIDs == nil {
		alias.TagIDs = []string{}
	}
	return json.Marshal(payload{palletAlias: alias, Status: p.Status()})
}

// UnmarshalJSON decodes a pallet; the status field is ignored because it is
// derived.
func (p *Pallet) UnmarshalJSON(data []byte) error {
	var aux palletAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Pallet(aux)
	if p.ItemIDs == nil {
		p.ItemIDs = []string{}
	}
	if p.TagIDs == nil {
		p.TagIDs = []string{}
	}
	return nil
}

// Slot is a fixed storage location identified by zone, row and column.
type Slot struct {
	Base
	Zone         string       `json:"zone"`
	Row          int          `json:"row"`
	Column       int          `json:"column"`
	PriorityTier PriorityTier `json:"priority_tier"`
	Status       SlotStatus   `json:"status"`
	PalletID     *string      `json:"pallet_id"`
}

// SlotID derives the deterministic identifier for a coordinate triple.
func SlotID(zone string, row, column int) string {
	return fmt.Sprintf("%s-%d-%d", zone, row, column)
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
