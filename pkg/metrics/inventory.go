package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for inventory operations.
const (
	OutcomeOK                = "ok"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeNotFound          = "not_found"
	OutcomeInvalid           = "invalid"
	OutcomeConflict          = "conflict"
	OutcomeUnavailable       = "unavailable"
	OutcomeError             = "error"
)

// InventoryMetrics exports ledger operation counters and stock gauges.
type InventoryMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	clamped    prometheus.Counter
	cache      *prometheus.CounterVec
	lowStock   prometheus.Gauge
	violations prometheus.Gauge
}

// NewInventoryMetrics registers the inventory collectors on reg. A nil
// registerer yields a no-op instance.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	m := &InventoryMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_operations_total",
			Help: "Inventory ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inventory_operation_duration_seconds",
			Help:    "Latency of inventory ledger operations.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		clamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_release_clamped_total",
			Help: "Releases that asked for more than was reserved and were clamped to zero.",
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_stock_cache_total",
			Help: "Stock cache lookups by result.",
		}, []string{"result"}),
		lowStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inventory_low_stock_skus",
			Help: "SKUs at or below their low stock threshold as of the last audit.",
		}),
		violations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inventory_invariant_violations",
			Help: "Records breaking quantity invariants as of the last audit.",
		}),
	}
	reg.MustRegister(m.operations, m.latency, m.clamped, m.cache, m.lowStock, m.violations)
	return m
}

// ObserveOperation records one ledger call.
func (m *InventoryMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	op := normalizeLabel(operation)
	m.operations.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *InventoryMetrics) IncReleaseClamped() {
	if m == nil || m.clamped == nil {
		return
	}
	m.clamped.Inc()
}

// IncCache counts a cache lookup result: hit, miss or error.
func (m *InventoryMetrics) IncCache(result string) {
	if m == nil || m.cache == nil {
		return
	}
	m.cache.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *InventoryMetrics) SetLowStockSkus(count int) {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.Set(float64(count))
}

func (m *InventoryMetrics) SetInvariantViolations(count int) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.Set(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
