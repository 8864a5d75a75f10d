package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ricirt/pubsub-outbox/internal/domain"
	"github.com/ricirt/pubsub-outbox/internal/outbox"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	Inserted     *prometheus.CounterVec
	Removed      *prometheus.CounterVec
	SendFailures *prometheus.CounterVec
	SendLatency  *prometheus.HistogramVec

	reg prometheus.Registerer
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Inserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_inserted_total",
			Help: "Total number of messages staged in the outbox.",
		}, []string{"kind"}),

		Removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_removed_total",
			Help: "Total number of messages that left the outbox, by reason.",
		}, []string{"reason"}),

		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_send_failures_total",
			Help: "Total number of transport send attempts that failed.",
		}, []string{"kind"}),

		SendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "outbox_send_seconds",
			Help:    "Latency of a single transport send.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		reg: reg,
	}

	reg.MustRegister(
		m.Inserted,
		m.Removed,
		m.SendFailures,
		m.SendLatency,
	)

	return m
}

// OutboxHooks returns observer callbacks counting inserts and removals.
func (m *Metrics) OutboxHooks() outbox.Hooks {
	return outbox.Hooks{
		OnInsert: func(e outbox.Event) {
			m.Inserted.WithLabelValues(domain.Kind(e.Kind).String()).Inc()
		},
		OnRemove: func(e outbox.Event) {
			m.Removed.WithLabelValues(string(e.Reason)).Inc()
		},
	}
}

// DispatchHooks returns the metric callback functions expected by worker.MetricHooks.
// Centralises the prometheus observation calls so the worker stays import-free.
func (m *Metrics) DispatchHooks() (
	onSent func(kind domain.Kind, latency time.Duration),
	onFailed func(kind domain.Kind),
) {
	onSent = func(kind domain.Kind, latency time.Duration) {
		m.SendLatency.WithLabelValues(kind.String()).Observe(latency.Seconds())
	}
	onFailed = func(kind domain.Kind) {
		m.SendFailures.WithLabelValues(kind.String()).Inc()
	}
	return
}

// TrackStats registers gauges sampled from stats at scrape time.
func (m *Metrics) TrackStats(stats func() domain.Stats) {
	gauge := func(name, help string, pick func(domain.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(pick(stats()))
		})
	}

	m.reg.MustRegister(
		gauge("outbox_bytes", "Payload bytes currently held in the outbox.",
			func(s domain.Stats) int { return s.Bytes }),
		gauge("outbox_items", "Messages currently held in the outbox.",
			func(s domain.Stats) int { return s.Items }),
		gauge("outbox_pending_items", "Messages sent and awaiting acknowledgment.",
			func(s domain.Stats) int { return s.Pending }),
		gauge("outbox_max_bytes", "Configured eviction bound in bytes.",
			func(s domain.Stats) int { return s.MaxBytes }),
	)
}
