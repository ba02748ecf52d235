// Package metrics exposes service operations and registry occupancy to
// Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"wmscore/internal/core"
)

const namespace = "wms"

// Recorder counts and times service operations by outcome.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var _ core.MetricsRecorder = (*Recorder)(nil)

// NewRecorder registers the operation metrics on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of service operations",
			},
			[]string{"op", "outcome"}, // outcome: success or an error kind
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Service operation latency in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op"},
		),
	}
}

// Observe implements core.MetricsRecorder.
func (r *Recorder) Observe(_ context.Context, operation, outcome string, duration time.Duration) {
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// InventorySource reads the current registry summaries without recording
// them as service operations.
type InventorySource interface {
	Inventory(ctx context.Context) (core.LocationStats, core.PalletStats, error)
}

// InventoryCollector reports slot and pallet counts at scrape time.
type InventoryCollector struct {
	source      InventorySource
	slots       *prometheus.Desc
	pallets     *prometheus.Desc
	utilization *prometheus.Desc
	items       *prometheus.Desc
	timeout     time.Duration
}

var _ prometheus.Collector = (*InventoryCollector)(nil)

// NewInventoryCollector builds a collector over source.
func NewInventoryCollector(source InventorySource) *InventoryCollector {
	return &InventoryCollector{
		source: source,
		slots: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "slots"),
			"Number of slots by status", []string{"zone", "status"}, nil),
		pallets: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "pallets"),
			"Number of pallets by status", []string{"status"}, nil),
		utilization: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "slot_utilization_ratio"),
			"Occupied slots over total slots", nil, nil),
		items: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "items_in_warehouse"),
			"Items on stored, unshipped pallets", nil, nil),
		timeout: 5 * time.Second,
	}
}

// Describe implements prometheus.Collector.
func (c *InventoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.slots
	ch <- c.pallets
	ch <- c.utilization
	ch <- c.items
}

// Collect implements prometheus.Collector.
func (c *InventoryCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	loc, ps, err := c.source.Inventory(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.slots, err)
		ch <- prometheus.NewInvalidMetric(c.pallets, err)
		return
	}
	for _, z := range loc.Zones {
		c.gauge(ch, c.slots, z.Empty, z.Zone, "empty")
		c.gauge(ch, c.slots, z.Occupied, z.Zone, "occupied")
		c.gauge(ch, c.slots, z.Reserved, z.Zone, "reserved")
		c.gauge(ch, c.slots, z.Maintenance, z.Zone, "maintenance")
	}
	ratio, _ := loc.Utilization.Float64()
	ch <- prometheus.MustNewConstMetric(c.utilization, prometheus.GaugeValue, ratio)

	c.gauge(ch, c.pallets, ps.Empty, "empty")
	c.gauge(ch, c.pallets, ps.Partial, "partial")
	c.gauge(ch, c.pallets, ps.Full, "full")
	c.gauge(ch, c.pallets, ps.Overloaded, "overloaded")
	c.gauge(ch, c.pallets, ps.Shipped, "shipped")
	c.gauge(ch, c.items, ps.ItemsInWarehouse)
}

func (c *InventoryCollector) gauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v int, labels ...string) {
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v), labels...)
}
