package main

import (
	"strings"

	"github.com/spf13/cobra"

	"wmscore/internal/core"
	"wmscore/pkg/domain"
)

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// palletSpecFlags registers the flags describing a new pallet.
type palletSpecFlags struct {
	items       string
	tags        string
	standardCap int
	maxCap      int
}

func (f *palletSpecFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.items, "items", "", "comma separated item ids")
	cmd.Flags().StringVar(&f.tags, "tags", "", "comma separated tag ids, positionally matching items")
	cmd.Flags().IntVar(&f.standardCap, "standard-capacity", 0, "standard capacity (default from config)")
	cmd.Flags().IntVar(&f.maxCap, "max-capacity", 0, "max capacity (default from config)")
}

func (f *palletSpecFlags) spec(defaults core.Capacity) core.PalletSpec {
	spec := core.PalletSpec{ItemIDs: splitList(f.items), TagIDs: splitList(f.tags)}
	if f.standardCap != 0 || f.maxCap != 0 {
		capacity := defaults
		if f.standardCap != 0 {
			capacity.Standard = f.standardCap
		}
		if f.maxCap != 0 {
			capacity.Max = f.maxCap
		}
		spec.Capacity = &capacity
	}
	return spec
}

func newBootstrapCmd(a *app) *cobra.Command {
	var zones string
	var rows, cols int
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Seed the slot grid (one-time)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo := a.cfg.Warehouse.Topology()
			if cmd.Flags().Changed("zones") {
				topo.Zones = splitList(zones)
			}
			if cmd.Flags().Changed("rows") {
				topo.RowsPerZone = rows
			}
			if cmd.Flags().Changed("cols") {
				topo.ColsPerZone = cols
			}
			slots, res, err := a.svc.Bootstrap(cmd.Context(), topo)
			if err != nil {
				return err
			}
			high := 0
			for _, sl := range slots {
				if sl.PriorityTier == domain.TierHigh {
					high++
				}
			}
			return a.print(map[string]int{"slots": len(slots), "high_priority": high}, res)
		},
	}
	cmd.Flags().StringVar(&zones, "zones", "", "comma separated zone names")
	cmd.Flags().IntVar(&rows, "rows", 0, "rows per zone")
	cmd.Flags().IntVar(&cols, "cols", 0, "columns per zone")
	return cmd
}

func newPalletCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "pallet", Short: "Manage pallets"}

	var spec palletSpecFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a pallet without storing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, res, err := a.svc.CreatePallet(cmd.Context(), spec.spec(a.svc.DefaultCapacity()))
			if err != nil {
				return err
			}
			return a.print(p, res)
		},
	}
	spec.register(create)

	var tag string
	addItem := &cobra.Command{
		Use:   "add-item PALLET_ID ITEM_ID",
		Short: "Load an item onto a pallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, res, err := a.svc.AddItem(cmd.Context(), args[0], args[1], tag)
			if err != nil {
				return err
			}
			return a.print(p, res)
		},
	}
	addItem.Flags().StringVar(&tag, "tag", "", "tracking tag for the item")

	removeItem := &cobra.Command{
		Use:   "remove-item PALLET_ID ITEM_ID",
		Short: "Unload an item from a pallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, removed, res, err := a.svc.RemoveItem(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.print(struct {
				Pallet  core.Pallet `json:"pallet"`
				Removed bool        `json:"removed"`
			}{p, removed}, res)
		},
	}

	allocate := &cobra.Command{
		Use:   "allocate PALLET_ID",
		Short: "Store an existing pallet in the best free slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			placed, res, err := a.svc.Allocate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(placed, res)
		},
	}

	show := &cobra.Command{
		Use:   "show PALLET_ID",
		Short: "Print a pallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.svc.GetPallet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(p)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every pallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pallets, err := a.svc.ListPallets(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(pallets)
		},
	}

	cmd.AddCommand(create, addItem, removeItem, allocate, show, list)
	return cmd
}

func newInboundCmd(a *app) *cobra.Command {
	var spec palletSpecFlags
	cmd := &cobra.Command{
		Use:   "inbound",
		Short: "Create a pallet and store it in one step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			placed, res, err := a.svc.CreateAndInbound(cmd.Context(), spec.spec(a.svc.DefaultCapacity()))
			if err != nil {
				return err
			}
			return a.print(placed, res)
		},
	}
	spec.register(cmd)
	return cmd
}

func newOutboundCmd(a *app) *cobra.Command {
	var order string
	cmd := &cobra.Command{
		Use:   "outbound PALLET_ID",
		Short: "Ship one pallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if order == "" {
				return usagef("--order is required")
			}
			p, res, err := a.svc.OutboundSingle(cmd.Context(), args[0], order)
			if err != nil {
				return err
			}
			return a.print(p, res)
		},
	}
	cmd.Flags().StringVar(&order, "order", "", "customer order reference")
	return cmd
}

func newOutboundBatchCmd(a *app) *cobra.Command {
	var order string
	var target int
	cmd := &cobra.Command{
		Use:   "outbound-batch",
		Short: "Ship the oldest pallets until the item target is met",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if order == "" {
				return usagef("--order is required")
			}
			out, res, err := a.svc.OutboundBatch(cmd.Context(), target, order)
			if err != nil {
				return err
			}
			return a.print(out, res)
		},
	}
	cmd.Flags().StringVar(&order, "order", "", "customer order reference")
	cmd.Flags().IntVar(&target, "target", 0, "number of items to ship")
	return cmd
}

func newRelocateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "relocate PALLET_ID SLOT_ID",
		Short: "Move a stored pallet to an empty slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			placed, res, err := a.svc.Relocate(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.print(placed, res)
		},
	}
}

func newSlotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "slot", Short: "Manage slots"}

	slotOp := func(use, short string, fn func(cmd *cobra.Command, id string) (core.Slot, core.Result, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " SLOT_ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sl, res, err := fn(cmd, args[0])
				if err != nil {
					return err
				}
				return a.print(sl, res)
			},
		}
	}

	reserve := slotOp("reserve", "Hold an empty slot out of allocation", func(cmd *cobra.Command, id string) (core.Slot, core.Result, error) {
		return a.svc.ReserveSlot(cmd.Context(), id)
	})
	release := slotOp("release", "Return a reserved slot to the pool", func(cmd *cobra.Command, id string) (core.Slot, core.Result, error) {
		return a.svc.ReleaseReservation(cmd.Context(), id)
	})
	var off bool
	maintenance := slotOp("maintenance", "Take a slot offline (--off brings it back)", func(cmd *cobra.Command, id string) (core.Slot, core.Result, error) {
		return a.svc.SetMaintenance(cmd.Context(), id, !off)
	})
	maintenance.Flags().BoolVar(&off, "off", false, "end maintenance instead of starting it")

	show := &cobra.Command{
		Use:   "show SLOT_ID",
		Short: "Print a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sl, err := a.svc.GetSlot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(sl)
		},
	}

	var free bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List slots by coordinate (--free lists them in allocation order)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var slots []core.Slot
			var err error
			if free {
				slots, err = a.svc.AllocationOrder(cmd.Context())
			} else {
				slots, err = a.svc.ListSlots(cmd.Context())
			}
			if err != nil {
				return err
			}
			return a.print(slots)
		},
	}
	list.Flags().BoolVar(&free, "free", false, "only empty slots, in allocation order")

	cmd.AddCommand(reserve, release, maintenance, show, list)
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print slot occupancy and pallet counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := a.svc.LocationStats(cmd.Context())
			if err != nil {
				return err
			}
			pallets, err := a.svc.PalletStats(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(struct {
				Locations core.LocationStats `json:"locations"`
				Pallets   core.PalletStats   `json:"pallets"`
			}{loc, pallets})
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var f core.PalletFilter
	var status string
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find pallets matching every given filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status != "" {
				st, err := domain.ParsePalletStatus(status)
				if err != nil {
					return usagef("%v", err)
				}
				f.Status = st
			}
			pallets, err := a.svc.SearchPallets(cmd.Context(), f)
			if err != nil {
				return err
			}
			return a.print(pallets)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "empty|partial|full|overloaded|shipped")
	cmd.Flags().StringVar(&f.SlotID, "slot", "", "slot id")
	cmd.Flags().StringVar(&f.ItemID, "item", "", "item id")
	cmd.Flags().StringVar(&f.TagID, "tag", "", "tag id")
	cmd.Flags().StringVar(&f.OrderRef, "order", "", "customer order reference")
	return cmd
}

func newStagnantCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stagnant",
		Short: "List stored pallets older than a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			threshold := a.cfg.Serve.StagnantDays
			if cmd.Flags().Changed("days") {
				threshold = days
			}
			found, err := a.svc.StagnantPallets(cmd.Context(), threshold)
			if err != nil {
				return err
			}
			return a.print(found)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "threshold in days (default from config)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Archive the registries to the snapshot store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			archive, err := a.openBlob(cmd.Context())
			if err != nil {
				return err
			}
			info, err := a.svc.ExportSnapshot(cmd.Context(), archive)
			if err != nil {
				return err
			}
			return a.print(info)
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import [KEY]",
		Short: "Replace the registries with an archived snapshot (latest when KEY is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.openBlob(cmd.Context())
			if err != nil {
				return err
			}
			var key string
			if len(args) == 1 {
				key = args[0]
			} else if key, err = a.svc.LatestSnapshot(cmd.Context(), archive); err != nil {
				return err
			}
			doc, res, err := a.svc.ImportSnapshot(cmd.Context(), archive, key)
			if err != nil {
				return err
			}
			return a.print(map[string]any{
				"key":         key,
				"exported_at": doc.ExportedAt,
				"slots":       len(doc.Slots),
				"pallets":     len(doc.Pallets),
			}, res)
		},
	}
}
