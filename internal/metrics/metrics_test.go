package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetrics_RecordsNothing(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.Dispatched("server", "ping")
		m.Rejected("server", "events")
		m.HandlerFailed("server", "ping")
		m.Invoked("client", "add", OutcomeOK)
		m.ResponderReplaced("server")
	})
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg := prometheus.NewRegistry()
	m := New(reg)

	// --- Act ---
	m.Dispatched("server", "ping")
	m.Dispatched("server", "ping")
	m.Rejected("server", "functions")
	m.Invoked("client", "add", OutcomeTimeout)
	m.ResponderReplaced("server")

	// --- Assert ---
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatched.WithLabelValues("server", "ping")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("server", "functions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("client", "add", OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.responderReplaced.WithLabelValues("server")))

	expected := `
# HELP netbus_responder_replaced_total responders replaced by a later registration
# TYPE netbus_responder_replaced_total counter
netbus_responder_replaced_total{side="server"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "netbus_responder_replaced_total"))
}

func TestNew_NilRegisterer(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.HandlerFailed("local", "x")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlerFailures.WithLabelValues("local", "x")))
}
