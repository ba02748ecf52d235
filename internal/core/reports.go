package core

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wmscore/pkg/domain"
)

const utilizationPlaces = 4

// maxStagnantDays bounds the threshold so the cutoff date stays representable.
// No stored pallet is older than ten thousand years.
const maxStagnantDays = 10000 * 366

// ZoneStats breaks slot occupancy down for one zone.
type ZoneStats struct {
	Zone        string          `json:"zone"`
	Total       int             `json:"total"`
	Empty       int             `json:"empty"`
	Occupied    int             `json:"occupied"`
	Reserved    int             `json:"reserved"`
	Maintenance int             `json:"maintenance"`
	Utilization decimal.Decimal `json:"utilization_rate"`
}

// LocationStats summarizes slot occupancy. Utilization is occupied over total
// and is zero when no slots exist.
type LocationStats struct {
	Total       int             `json:"total"`
	Empty       int             `json:"empty"`
	Occupied    int             `json:"occupied"`
	Reserved    int             `json:"reserved"`
	Maintenance int             `json:"maintenance"`
	Utilization decimal.Decimal `json:"utilization_rate"`
	Zones       []ZoneStats     `json:"zones"`
}

// PalletStats counts pallets by derived status.
type PalletStats struct {
	Total       int `json:"total"`
	Empty       int `json:"empty"`
	Partial     int `json:"partial"`
	Full        int `json:"full"`
	Overloaded  int `json:"overloaded"`
	Shipped     int `json:"shipped"`
	InWarehouse int `json:"in_warehouse"`
	// TotalItems counts items on every pallet, shipped ones included.
	TotalItems       int `json:"total_items"`
	ItemsInWarehouse int `json:"items_in_warehouse"`
}

// PalletFilter selects pallets in SearchPallets. Empty fields match anything
// and set fields combine with AND.
type PalletFilter struct {
	Status   PalletStatus
	SlotID   string
	ItemID   string
	TagID    string
	OrderRef string
}

// Match reports whether p satisfies every set field.
func (f PalletFilter) Match(p Pallet) bool {
	if f.Status != "" && p.Status() != f.Status {
		return false
	}
	if f.SlotID != "" && deref(p.SlotID) != f.SlotID {
		return false
	}
	if f.ItemID != "" && p.ItemIndex(f.ItemID) < 0 {
		return false
	}
	if f.TagID != "" && !p.HasTag(f.TagID) {
		return false
	}
	if f.OrderRef != "" && deref(p.CustomerOrderRef) != f.OrderRef {
		return false
	}
	return true
}

// StagnantPallet is a stored pallet that has not moved for too long.
type StagnantPallet struct {
	Pallet        Pallet `json:"pallet"`
	DaysInStorage int    `json:"days_in_storage"`
}

func ratio(part, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).DivRound(decimal.NewFromInt(int64(total)), utilizationPlaces)
}

func computeLocationStats(slots []Slot) LocationStats {
	var out LocationStats
	zones := map[string]*ZoneStats{}
	for _, sl := range slots {
		z, ok := zones[sl.Zone]
		if !ok {
			z = &ZoneStats{Zone: sl.Zone}
			zones[sl.Zone] = z
		}
		out.Total++
		z.Total++
		switch sl.Status {
		case domain.SlotEmpty:
			out.Empty++
			z.Empty++
		case domain.SlotOccupied:
			out.Occupied++
			z.Occupied++
		case domain.SlotReserved:
			out.Reserved++
			z.Reserved++
		case domain.SlotMaintenance:
			out.Maintenance++
			z.Maintenance++
		}
	}
	out.Utilization = ratio(out.Occupied, out.Total)
	out.Zones = make([]ZoneStats, 0, len(zones))
	for _, z := range zones {
		z.Utilization = ratio(z.Occupied, z.Total)
		out.Zones = append(out.Zones, *z)
	}
	sort.Slice(out.Zones, func(i, j int) bool { return out.Zones[i].Zone < out.Zones[j].Zone })
	return out
}

func computePalletStats(pallets []Pallet) PalletStats {
	var out PalletStats
	for _, p := range pallets {
		out.Total++
		out.TotalItems += len(p.ItemIDs)
		switch p.Status() {
		case domain.PalletEmpty:
			out.Empty++
		case domain.PalletPartial:
			out.Partial++
		case domain.PalletFull:
			out.Full++
		case domain.PalletOverloaded:
			out.Overloaded++
		case domain.PalletShipped:
			out.Shipped++
		}
		if p.Stored() && !p.Shipped() {
			out.InWarehouse++
			out.ItemsInWarehouse += len(p.ItemIDs)
		}
	}
	return out
}

// findStagnant returns unshipped pallets whose inbound time is more than
// thresholdDays before now, oldest first.
func findStagnant(pallets []Pallet, now time.Time, thresholdDays int) []StagnantPallet {
	out := []StagnantPallet{}
	if thresholdDays > maxStagnantDays {
		return out
	}
	cutoff := now.AddDate(0, 0, -thresholdDays)
	for _, p := range pallets {
		if p.Shipped() || p.InboundAt == nil || !p.InboundAt.Before(cutoff) {
			continue
		}
		days := int(now.Sub(*p.InboundAt) / (24 * time.Hour))
		out = append(out, StagnantPallet{Pallet: p, DaysInStorage: days})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Pallet, out[j].Pallet
		if !a.InboundAt.Equal(*b.InboundAt) {
			return a.InboundAt.Before(*b.InboundAt)
		}
		return a.ID < b.ID
	})
	return out
}

func sortPallets(pallets []Pallet) {
	sort.Slice(pallets, func(i, j int) bool {
		a, b := pallets[i], pallets[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// LocationStats reports slot occupancy overall and per zone.
func (s *Service) LocationStats(ctx context.Context) (LocationStats, error) {
	var out LocationStats
	err := s.read(ctx, &opScope{name: "location_stats"}, func(view TransactionView) error {
		out = computeLocationStats(view.ListSlots())
		return nil
	})
	return out, err
}

// PalletStats reports pallet counts by status.
func (s *Service) PalletStats(ctx context.Context) (PalletStats, error) {
	var out PalletStats
	err := s.read(ctx, &opScope{name: "pallet_stats"}, func(view TransactionView) error {
		out = computePalletStats(view.ListPallets())
		return nil
	})
	return out, err
}

// Inventory returns both summaries from one consistent view. It is not
// traced, counted or logged so that metric scrapes leave no trace in the
// operation metrics.
func (s *Service) Inventory(ctx context.Context) (LocationStats, PalletStats, error) {
	var (
		loc LocationStats
		ps  PalletStats
	)
	err := s.store.View(ctx, func(view TransactionView) error {
		loc = computeLocationStats(view.ListSlots())
		ps = computePalletStats(view.ListPallets())
		return nil
	})
	return loc, ps, err
}

// SearchPallets returns pallets matching filter, ordered like ListPallets.
func (s *Service) SearchPallets(ctx context.Context, filter PalletFilter) ([]Pallet, error) {
	out := []Pallet{}
	err := s.read(ctx, &opScope{name: "search_pallets"}, func(view TransactionView) error {
		for _, p := range view.ListPallets() {
			if filter.Match(p) {
				out = append(out, p)
			}
		}
		sortPallets(out)
		return nil
	})
	return out, err
}

// StagnantPallets lists stored pallets older than thresholdDays.
func (s *Service) StagnantPallets(ctx context.Context, thresholdDays int) ([]StagnantPallet, error) {
	var out []StagnantPallet
	err := s.read(ctx, &opScope{name: "stagnant_pallets"}, func(view TransactionView) error {
		if thresholdDays < 0 {
			return fail(domain.ErrInvalidState, "", "", "threshold must not be negative")
		}
		out = findStagnant(view.ListPallets(), s.clock.Now(), thresholdDays)
		return nil
	})
	return out, err
}
