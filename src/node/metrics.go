package node

import (
	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tabsync"

// Metrics are the protocol counters of a node.
type Metrics struct {
	sent       *prometheus.CounterVec
	accepted   *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	merges     prometheus.Counter
	sendErrors prometheus.Counter
	leader     prometheus.Gauge
	rosterSize prometheus.Gauge
}

// NewMetrics creates the node's metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "envelopes_sent_total",
			Help:      "Envelopes broadcast, including forwarded ones.",
		}, []string{"action"}),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "envelopes_accepted_total",
			Help:      "Inbound envelopes that passed validation.",
		}, []string{"action"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "envelopes_rejected_total",
			Help:      "Inbound messages dropped by the validator.",
		}, []string{"reason"}),
		merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "merges_total",
			Help:      "Remote states merged into the local store.",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "send_errors_total",
			Help:      "Broadcasts that failed for at least one peer.",
		}),
		leader: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "leader",
			Help:      "1 if the node is the leader.",
		}),
		rosterSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "roster_size",
			Help:      "Number of participants known to the node.",
		}),
	}

	reg.MustRegister(
		m.sent,
		m.accepted,
		m.rejected,
		m.merges,
		m.sendErrors,
		m.leader,
		m.rosterSize,
	)

	return m
}

func (m *Metrics) envelopeSent(env *envelope.Envelope) {
	m.sent.WithLabelValues(string(env.Action)).Inc()
}

func (m *Metrics) envelopeAccepted(env *envelope.Envelope) {
	m.accepted.WithLabelValues(string(env.Action)).Inc()
}

func (m *Metrics) envelopeRejected(rej *envelope.Rejection) {
	m.rejected.WithLabelValues(rej.Reason.String()).Inc()
}

func (m *Metrics) setLeader(leader bool, rosterSize int) {
	if leader {
		m.leader.Set(1)
	} else {
		m.leader.Set(0)
	}
	m.rosterSize.Set(float64(rosterSize))
}
