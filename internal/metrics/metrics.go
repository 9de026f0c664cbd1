package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks trade lifecycle operations by outcome.
	TradeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_trade_operations_total",
			Help: "Total number of trade operations processed (by operation and result).",
		},
		[]string{"operation", "result"}, // result = "ok" | "error"
	)

	// Measures settlement duration per operation.
	SettlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_settlement_duration_seconds",
			Help:    "Duration of trade settlement operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"operation"},
	)

	// Tracks fee volume routed per bucket (platform, commission, cashback).
	FeeVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_fee_volume_total",
			Help: "Cumulative quote-denominated fee volume by destination.",
		},
		[]string{"destination"},
	)

	// Tracks NATS messages processed by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages processed.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks RabbitMQ command consumption by queue and result.
	CommandCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_commands_total",
			Help: "Total number of queued commands consumed.",
		},
		[]string{"queue", "result"},
	)

	// Tracks cache hits and misses for secrets / credentials.
	SecretsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secrets_cache_access_total",
			Help: "Number of cache hits/misses in secret cache.",
		},
		[]string{"result"}, // hit | miss
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_errors_total",
			Help: "Count of engine-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the number of currently open orders.
	OpenOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swap_open_orders",
			Help: "Number of trades currently open and fillable.",
		},
	)
)

// ObserveDuration records the time taken for a function and updates the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// silently ignore counters; they're not meant for duration tracking
	}
}

func IncTradeOp(operation, result string) {
	TradeOpsTotal.WithLabelValues(operation, result).Inc()
}

func AddFeeVolume(destination string, amount float64) {
	FeeVolume.WithLabelValues(destination).Add(amount)
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncCommand(queue, result string) {
	CommandCount.WithLabelValues(queue, result).Inc()
}

func IncCacheHit(result string) {
	SecretsCacheHits.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetOpenOrders(n int) {
	OpenOrders.Set(float64(n))
}
