// Package observability registers and records the prometheus metrics the
// protocol core emits: per-exchange counters and latency, chunk retries,
// and transfer session outcomes.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlink",
			Subsystem: "protocol",
			Name:      "exchanges_total",
			Help:      "Request/response exchanges by scheme and result.",
		},
		[]string{"scheme", "result"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "devlink",
			Subsystem: "protocol",
			Name:      "exchange_duration_seconds",
			Help:      "Exchange round-trip latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"scheme", "result"},
	)
	chunkRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlink",
			Subsystem: "transfer",
			Name:      "chunk_retries_total",
			Help:      "Chunk exchanges retried after a transient failure.",
		},
		[]string{"kind"},
	)
	transferOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlink",
			Subsystem: "transfer",
			Name:      "sessions_total",
			Help:      "Transfer sessions by terminal outcome.",
		},
		[]string{"kind", "outcome"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlink",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Payload bytes moved by completed chunk exchanges.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(exchanges, exchangeDuration, chunkRetries, transferOutcomes, transferBytes)
	})
}

func RecordExchange(scheme string, err error, duration time.Duration) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "error"
	}
	exchanges.WithLabelValues(scheme, result).Inc()
	exchangeDuration.WithLabelValues(scheme, result).Observe(duration.Seconds())
}

func RecordChunkRetry(kind string) {
	RegisterMetrics()
	chunkRetries.WithLabelValues(kind).Inc()
}

func RecordTransferOutcome(kind, outcome string) {
	RegisterMetrics()
	transferOutcomes.WithLabelValues(kind, outcome).Inc()
}

func RecordTransferBytes(kind string, n int64) {
	RegisterMetrics()
	if n > 0 {
		transferBytes.WithLabelValues(kind).Add(float64(n))
	}
}
