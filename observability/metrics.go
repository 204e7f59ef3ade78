// Package observability wires the pool's metrics and telemetry surfaces.
package observability

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lendpool/core/events"
)

// PoolMetrics records pool operation activity and per-reserve market gauges.
type PoolMetrics struct {
	ops          *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations prometheus.Counter
	utilization  *prometheus.GaugeVec
	borrowRate   *prometheus.GaugeVec
	supplyRate   *prometheus.GaugeVec
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics
)

// Pool returns the lazily-initialised pool metrics registry.
func Pool() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			ops: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "ops",
				Name:      "requests_total",
				Help:      "Total pool operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendpool",
				Subsystem: "ops",
				Name:      "duration_seconds",
				Help:      "Latency distribution for pool operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "risk",
				Name:      "liquidations_total",
				Help:      "Total settled liquidation calls.",
			}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendpool",
				Subsystem: "reserve",
				Name:      "utilization",
				Help:      "Reserve utilization as a fraction of total assets.",
			}, []string{"asset"}),
			borrowRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendpool",
				Subsystem: "reserve",
				Name:      "borrow_rate",
				Help:      "Per-second borrow rate scaled from RAY.",
			}, []string{"asset"}),
			supplyRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendpool",
				Subsystem: "reserve",
				Name:      "supply_rate",
				Help:      "Per-second supply rate scaled from RAY.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			poolRegistry.ops,
			poolRegistry.latency,
			poolRegistry.liquidations,
			poolRegistry.utilization,
			poolRegistry.borrowRate,
			poolRegistry.supplyRate,
		)
	})
	return poolRegistry
}

// RecordOp counts one operation and observes its latency.
func (m *PoolMetrics) RecordOp(op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// EventObserver bridges pool events into the prometheus gauges. It satisfies
// the events.Emitter interface so it can be fanned in next to other
// subscribers.
type EventObserver struct {
	metrics *PoolMetrics
}

// NewEventObserver constructs an observer feeding the shared registry.
func NewEventObserver() *EventObserver {
	return &EventObserver{metrics: Pool()}
}

// Emit implements events.Emitter.
func (o *EventObserver) Emit(evt events.Event) {
	if o == nil || o.metrics == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case events.ReserveUpdated:
		o.metrics.utilization.WithLabelValues(e.Asset).Set(fractionOf(e.UtilizationWad, wadFloatScale))
		o.metrics.borrowRate.WithLabelValues(e.Asset).Set(fractionOf(e.BorrowRateRay, rayFloatScale))
		o.metrics.supplyRate.WithLabelValues(e.Asset).Set(fractionOf(e.LiquidityRateRay, rayFloatScale))
	case events.Liquidation:
		o.metrics.liquidations.Inc()
	}
}

var (
	wadFloatScale = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	rayFloatScale = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil))
)

// fractionOf renders a fixed-point integer as a float gauge value. Precision
// loss here is acceptable: gauges are for dashboards, never for accounting.
func fractionOf(value *big.Int, scale *big.Float) float64 {
	if value == nil {
		return 0
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(value), scale).Float64()
	return out
}

// Outcome renders an error as a metrics label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
