// Package metrics exposes prometheus collectors for the dispatch layer.
//
// Collectors are always created and updated; they are only exported when the
// client options carry a Registerer. This keeps the instrumentation free of
// nil checks while leaving exposition opt-in.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for the resolved-requests counter. Every sent or queued
// request ends in exactly one of these.
const (
	OutcomeSuccess        = "success"
	OutcomeRemoteError    = "remote_error"
	OutcomeTimeout        = "timeout"
	OutcomeCanceled       = "canceled"
	OutcomeConnectionLost = "connection_lost"
	OutcomeDiscarded      = "discarded"
)

// Metrics holds the SDK collectors.
type Metrics struct {
	// Sent counts requests handed to the transport (queue replays included).
	Sent prometheus.Counter
	// Resolved counts terminal resolutions by outcome.
	Resolved *prometheus.CounterVec
	// Reconnects counts successful reconnections.
	Reconnects prometheus.Counter
	// QueueDepth tracks the current offline queue length.
	QueueDepth prometheus.Gauge
}

// New creates the collectors and, when reg is non-nil, registers them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kuzzle_requests_sent_total",
			Help: "Requests transmitted to the backend.",
		}),
		Resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kuzzle_requests_resolved_total",
			Help: "Terminal request resolutions by outcome.",
		}, []string{"outcome"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kuzzle_reconnects_total",
			Help: "Successful reconnections.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kuzzle_offline_queue_depth",
			Help: "Requests currently waiting in the offline queue.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Sent, m.Resolved, m.Reconnects, m.QueueDepth)
	}
	return m
}

// Resolve records one terminal resolution.
func (m *Metrics) Resolve(outcome string) {
	m.Resolved.WithLabelValues(outcome).Inc()
}
