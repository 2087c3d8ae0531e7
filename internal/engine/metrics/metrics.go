// Package metrics wraps Prometheus collectors for the wagering engine: entry
// lifecycle counters, settled volume, resolution latency, outbound call pools
// and HTTP traffic. Each Collector owns a private registry.
package metrics

import (
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/wager_layer/internal/engine/bus"
)

// Collector provides engine metrics collection.
type Collector struct {
	registry *prometheus.Registry

	// Lifecycle metrics
	entriesSubmitted *prometheus.CounterVec
	entriesResolved  *prometheus.CounterVec
	entriesWithdrawn *prometheus.CounterVec
	entriesPending   prometheus.Gauge
	withdrawEligible prometheus.Gauge
	opFailures       *prometheus.CounterVec
	opLatency        *prometheus.HistogramVec

	// Settlement metrics
	unitsPlayed    *prometheus.CounterVec
	volume         *prometheus.CounterVec
	stoppedEarly   prometheus.Counter
	bonusMints     *prometheus.CounterVec
	resolveLatency *prometheus.HistogramVec
	batchFailures  prometheus.Counter
	refundFailures prometheus.Counter

	// Outbound pools
	busActive  *prometheus.GaugeVec
	busWaiting *prometheus.GaugeVec

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewCollector creates a new engine metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "wager"
	}

	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	c.entriesSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "submitted_total",
			Help:      "Total number of submitted entries",
		},
		[]string{"game", "provider"},
	)

	c.entriesResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "resolved_total",
			Help:      "Total number of resolved entries",
		},
		[]string{"game", "provider"},
	)

	c.entriesWithdrawn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "withdrawn_total",
			Help:      "Total number of withdrawn entries",
		},
		[]string{"provider"},
	)

	c.entriesPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "pending",
			Help:      "Entries waiting for randomness",
		},
	)

	c.withdrawEligible = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "withdraw_eligible",
			Help:      "Pending entries past their withdrawal delay",
		},
	)

	c.opFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "failures_total",
			Help:      "Rejected engine operations by reason",
		},
		[]string{"operation", "reason"},
	)

	c.opLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Time taken by engine operations",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "result"},
	)

	c.unitsPlayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "units_total",
			Help:      "Units settled by classification",
		},
		[]string{"game", "class"},
	)

	c.volume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "volume_tokens_total",
			Help:      "Tokens moved by settlement, in whole tokens",
		},
		[]string{"flow"},
	)

	c.stoppedEarly = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "stopped_early_total",
			Help:      "Entries truncated by stop-loss or stop-gain",
		},
	)

	c.bonusMints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "bonus_mints_total",
			Help:      "Bonus collectible mints",
		},
		[]string{"result"},
	)

	c.resolveLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "resolve_delay_seconds",
			Help:      "Time from submission to resolution",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27m
		},
		[]string{"provider"},
	)

	c.batchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "failures_total",
			Help:      "Request ids reported as failed by batch resolution",
		},
	)

	c.refundFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "refund_failures_total",
			Help:      "Stakes debited for a failed submission that could not be refunded",
		},
	)

	c.busActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "active",
			Help:      "Outbound calls holding a permit",
		},
		[]string{"kind"},
	)

	c.busWaiting = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "waiting",
			Help:      "Outbound calls waiting for a permit",
		},
		[]string{"kind"},
	)

	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	c.httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Engine uptime in seconds",
		},
		func() float64 { return time.Since(c.startTime).Seconds() },
	)

	c.registry.MustRegister(
		c.entriesSubmitted,
		c.entriesResolved,
		c.entriesWithdrawn,
		c.entriesPending,
		c.withdrawEligible,
		c.opFailures,
		c.opLatency,
		c.unitsPlayed,
		c.volume,
		c.stoppedEarly,
		c.bonusMints,
		c.resolveLatency,
		c.batchFailures,
		c.refundFailures,
		c.busActive,
		c.busWaiting,
		c.httpRequests,
		c.httpLatency,
		c.uptime,
		collectors.NewGoCollector(),
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordSubmitted counts a new entry.
func (c *Collector) RecordSubmitted(game, provider string) {
	c.entriesSubmitted.WithLabelValues(game, provider).Inc()
	c.entriesPending.Inc()
}

// RecordResolved counts a settled entry and how long it waited.
func (c *Collector) RecordResolved(game, provider string, waited time.Duration) {
	c.entriesResolved.WithLabelValues(game, provider).Inc()
	c.entriesPending.Dec()
	c.resolveLatency.WithLabelValues(provider).Observe(waited.Seconds())
}

// RecordWithdrawn counts a refunded entry.
func (c *Collector) RecordWithdrawn(provider string) {
	c.entriesWithdrawn.WithLabelValues(provider).Inc()
	c.entriesPending.Dec()
}

// SetPending resets the pending gauge, used after loading persisted entries.
func (c *Collector) SetPending(n int) {
	c.entriesPending.Set(float64(n))
}

// SetWithdrawEligible records the sweeper's count.
func (c *Collector) SetWithdrawEligible(n int) {
	c.withdrawEligible.Set(float64(n))
}

// RecordOperation observes an engine operation and counts failures by reason.
func (c *Collector) RecordOperation(operation string, duration time.Duration, reason string) {
	result := "success"
	if reason != "" {
		result = "error"
		c.opFailures.WithLabelValues(operation, reason).Inc()
	}
	c.opLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// RecordUnit counts one settled unit.
func (c *Collector) RecordUnit(game, class string) {
	c.unitsPlayed.WithLabelValues(game, class).Inc()
}

// RecordVolume adds a base-unit amount (1e18 per token) to flow.
func (c *Collector) RecordVolume(flow string, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	c.volume.WithLabelValues(flow).Add(tokens(amount))
}

// RecordStoppedEarly counts a truncated entry.
func (c *Collector) RecordStoppedEarly() {
	c.stoppedEarly.Inc()
}

// RecordBonusMint counts a bonus mint attempt.
func (c *Collector) RecordBonusMint(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.bonusMints.WithLabelValues(result).Inc()
}

// RecordBatchFailures adds n failed ids.
func (c *Collector) RecordBatchFailures(n int) {
	c.batchFailures.Add(float64(n))
}

// RecordRefundFailure counts a stake left debited after a failed submission.
func (c *Collector) RecordRefundFailure() {
	c.refundFailures.Inc()
}

// RecordBus copies limiter statistics into gauges.
func (c *Collector) RecordBus(stats map[bus.Kind]bus.Stats) {
	for kind, s := range stats {
		c.busActive.WithLabelValues(string(kind)).Set(float64(s.Active))
		c.busWaiting.WithLabelValues(string(kind)).Set(float64(s.Waiting))
	}
}

// RecordHTTP observes one HTTP request.
func (c *Collector) RecordHTTP(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

var tokenScale = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func tokens(amount *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), tokenScale).Float64()
	return f
}
