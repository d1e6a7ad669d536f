// Package metrics exposes the bus counters to Prometheus. Every method is safe
// to call on a nil *Metrics, which records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Invocation outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeUnknownHandle = "unknown_handle"
	OutcomeNoResponder   = "no_responder"
	OutcomeFailed        = "failed"
	OutcomeTimeout       = "timeout"
	OutcomeError         = "error"
)

// Metrics holds the bus collectors.
type Metrics struct {
	dispatched        *prometheus.CounterVec
	rejected          *prometheus.CounterVec
	handlerFailures   *prometheus.CounterVec
	invocations       *prometheus.CounterVec
	responderReplaced *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "netbus_dispatched_total", Help: "dispatches by side and handle"},
			[]string{"side", "handle"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "netbus_rejected_total", Help: "inbound frames rejected by side and channel"},
			[]string{"side", "channel"},
		),
		handlerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "netbus_handler_failures_total", Help: "failed or panicking handlers by side and handle"},
			[]string{"side", "handle"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "netbus_invocations_total", Help: "outbound invocations by side, handle and outcome"},
			[]string{"side", "handle", "outcome"},
		),
		responderReplaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "netbus_responder_replaced_total", Help: "responders replaced by a later registration"},
			[]string{"side"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.dispatched, m.rejected, m.handlerFailures, m.invocations, m.responderReplaced)
	}
	return m
}

// Dispatched counts one dispatch of handle.
func (m *Metrics) Dispatched(side, handle string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(side, handle).Inc()
}

// Rejected counts one inbound frame dropped on channel.
func (m *Metrics) Rejected(side, channel string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(side, channel).Inc()
}

// HandlerFailed counts one failed handler invocation.
func (m *Metrics) HandlerFailed(side, handle string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(side, handle).Inc()
}

// Invoked counts one outbound invocation with its outcome.
func (m *Metrics) Invoked(side, handle, outcome string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(side, handle, outcome).Inc()
}

// ResponderReplaced counts one responder replacement.
func (m *Metrics) ResponderReplaced(side string) {
	if m == nil {
		return
	}
	m.responderReplaced.WithLabelValues(side).Inc()
}
