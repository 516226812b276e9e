// Package slpmetrics exposes goslp daemon state as Prometheus metrics.
package slpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "goslp"
	subsystem = "agent"
)

// Label names for SLP metrics.
const (
	labelScope    = "scope"
	labelSource   = "source"
	labelFunction = "function"
	labelPeerAddr = "peer_addr"
)

// Collector holds all goslp Prometheus metrics.
//
//   - Registrations tracks live entries in the registration database,
//     labeled by scope and source (remote/local/static, spec.md §4.6).
//   - KnownDAs tracks entries in the Known-DA tracker, labeled by scope.
//   - MessagesSent/Received/Dropped count wire traffic per message
//     function id.
//   - DispatchRetransmits counts multicast-convergence retransmit rounds
//     (spec.md §4.7).
//   - AuthFailures counts authenticator verification failures per peer.
type Collector struct {
	// Registrations tracks currently live registration-database entries.
	Registrations *prometheus.GaugeVec

	// KnownDAs tracks currently tracked Known-DA entries.
	KnownDAs *prometheus.GaugeVec

	// MessagesSent counts messages transmitted, labeled by function id.
	MessagesSent *prometheus.CounterVec

	// MessagesReceived counts messages received, labeled by function id.
	MessagesReceived *prometheus.CounterVec

	// MessagesDropped counts messages dropped (parse error, auth failure,
	// unmatched reply xid), labeled by function id.
	MessagesDropped *prometheus.CounterVec

	// DispatchRetransmits counts multicast-convergence retransmit rounds
	// issued by the dispatcher (spec.md §4.7).
	DispatchRetransmits prometheus.Counter

	// AuthFailures counts authenticator verification failures per peer.
	AuthFailures *prometheus.CounterVec
}

// NewCollector creates a Collector with all goslp metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Registrations,
		c.KnownDAs,
		c.MessagesSent,
		c.MessagesReceived,
		c.MessagesDropped,
		c.DispatchRetransmits,
		c.AuthFailures,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	scopeSourceLabels := []string{labelScope, labelSource}
	scopeLabels := []string{labelScope}
	functionLabels := []string{labelFunction}

	return &Collector{
		Registrations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "registrations",
			Help:      "Number of live entries in the registration database.",
		}, scopeSourceLabels),

		KnownDAs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "known_das",
			Help:      "Number of Directory Agents currently tracked.",
		}, scopeLabels),

		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Total SLPv2 messages transmitted, by function id.",
		}, functionLabels),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_received_total",
			Help:      "Total SLPv2 messages received, by function id.",
		}, functionLabels),

		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dropped_total",
			Help:      "Total SLPv2 messages dropped (parse error, auth failure, unmatched reply), by function id.",
		}, functionLabels),

		DispatchRetransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_retransmits_total",
			Help:      "Total multicast-convergence retransmit rounds issued by the dispatcher.",
		}),

		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auth_failures_total",
			Help:      "Total authenticator verification failures (RFC 2608 §9.2), by peer address.",
		}, []string{labelPeerAddr}),
	}
}

// -------------------------------------------------------------------------
// Registration database
// -------------------------------------------------------------------------

// SetRegistrations sets the current registration count for a scope/source
// pair. Called after each registration-database mutation sweep.
func (c *Collector) SetRegistrations(scope, source string, count int) {
	c.Registrations.WithLabelValues(scope, source).Set(float64(count))
}

// -------------------------------------------------------------------------
// Known-DA tracker
// -------------------------------------------------------------------------

// SetKnownDAs sets the current tracked-DA count for a scope.
func (c *Collector) SetKnownDAs(scope string, count int) {
	c.KnownDAs.WithLabelValues(scope).Set(float64(count))
}

// -------------------------------------------------------------------------
// Message counters
// -------------------------------------------------------------------------

// IncMessagesSent increments the sent-messages counter for function.
func (c *Collector) IncMessagesSent(function string) {
	c.MessagesSent.WithLabelValues(function).Inc()
}

// IncMessagesReceived increments the received-messages counter for function.
func (c *Collector) IncMessagesReceived(function string) {
	c.MessagesReceived.WithLabelValues(function).Inc()
}

// IncMessagesDropped increments the dropped-messages counter for function.
func (c *Collector) IncMessagesDropped(function string) {
	c.MessagesDropped.WithLabelValues(function).Inc()
}

// -------------------------------------------------------------------------
// Dispatcher
// -------------------------------------------------------------------------

// IncDispatchRetransmits increments the dispatcher retransmit counter.
func (c *Collector) IncDispatchRetransmits() {
	c.DispatchRetransmits.Inc()
}

// -------------------------------------------------------------------------
// Authentication
// -------------------------------------------------------------------------

// IncAuthFailures increments the authentication failure counter for peer.
func (c *Collector) IncAuthFailures(peer string) {
	c.AuthFailures.WithLabelValues(peer).Inc()
}
