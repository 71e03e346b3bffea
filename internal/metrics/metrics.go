// Package metrics exposes scanner counters and gauges to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "whalescope"

// Metrics groups every collector. A nil *Metrics is a valid no-op.
type Metrics struct {
	Cycles        *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	Events        *prometheus.CounterVec
	Suppressed    *prometheus.CounterVec
	Checkpoint    *prometheus.GaugeVec
	Head          *prometheus.GaugeVec
	CycleDuration *prometheus.HistogramVec
	QueueDepth    prometheus.Gauge
	RemoteUp      prometheus.Gauge
}

// New creates the collectors and registers them with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_cycles_total",
			Help:      "Scan cycles by chain and outcome.",
		}, []string{"chain", "outcome"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed chain fetches by chain and stage.",
		}, []string{"chain", "stage"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whale_events_total",
			Help:      "Persisted whale events by chain and type.",
		}, []string{"chain", "type"}),
		Suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_transfers_total",
			Help:      "Transfers suppressed as internal or self transfers.",
		}, []string{"chain", "reason"}),
		Checkpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_position",
			Help:      "Last fully processed block or slot.",
		}, []string{"chain"}),
		Head: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "head_position",
			Help:      "Latest block or slot reported by the chain.",
		}, []string{"chain"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_cycle_seconds",
			Help:      "Scan cycle duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chain"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_queue_depth",
			Help:      "Remote writes waiting for retry.",
		}),
		RemoteUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_store_up",
			Help:      "1 when the remote store answered its last health check.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Cycles,
			m.FetchFailures,
			m.Events,
			m.Suppressed,
			m.Checkpoint,
			m.Head,
			m.CycleDuration,
			m.QueueDepth,
			m.RemoteUp,
		)
	}
	return m
}

func (m *Metrics) ObserveCycle(chain, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(chain, outcome).Inc()
	m.CycleDuration.WithLabelValues(chain).Observe(seconds)
}

func (m *Metrics) FetchFailed(chain, stage string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(chain, stage).Inc()
}

func (m *Metrics) EventPersisted(chain, txType string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(chain, txType).Inc()
}

func (m *Metrics) TransferSuppressed(chain, reason string) {
	if m == nil {
		return
	}
	m.Suppressed.WithLabelValues(chain, reason).Inc()
}

func (m *Metrics) SetPositions(chain string, head, checkpoint uint64) {
	if m == nil {
		return
	}
	m.Head.WithLabelValues(chain).Set(float64(head))
	m.Checkpoint.WithLabelValues(chain).Set(float64(checkpoint))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) SetRemoteUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.RemoteUp.Set(1)
		return
	}
	m.RemoteUp.Set(0)
}
