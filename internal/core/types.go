package core

import "wmscore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Pallet             = domain.Pallet
	PalletStatus       = domain.PalletStatus
	Slot               = domain.Slot
	SlotStatus         = domain.SlotStatus
	PriorityTier       = domain.PriorityTier
	Capacity           = domain.Capacity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
	Snapshot           = domain.Snapshot
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityPallet = domain.EntityPallet
	EntitySlot   = domain.EntitySlot
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

// Default pallet capacity and slot topology applied when callers supply none.
const (
	DefaultStandardCapacity = 18
	DefaultMaxCapacity      = 20
	DefaultHighPriorityRows = 2
)
