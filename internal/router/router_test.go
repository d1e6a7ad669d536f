package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/specialistvlad/netbus/internal/metrics"
	"github.com/specialistvlad/netbus/internal/testutil"
	"github.com/specialistvlad/netbus/internal/transport"
	"github.com/specialistvlad/netbus/internal/transport/memory"
	"github.com/specialistvlad/netbus/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	server    *Router
	client    *Router
	serverLog *testutil.SafeBuffer
	clientLog *testutil.SafeBuffer
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
}

// newPair connects a server router and one client router, "alice", over an
// in-memory link.
func newPair(t *testing.T, serverIn, clientIn Contract, opts ...Option) *pair {
	t.Helper()

	hub := memory.NewHub()
	serverEP, err := hub.Create(t.Name())
	require.NoError(t, err)
	clientEP, err := hub.AttachAs(context.Background(), t.Name(), "alice")
	require.NoError(t, err)
	t.Cleanup(func() { serverEP.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	serverLogger, serverLog := testutil.NewLogger(t)
	clientLogger, clientLog := testutil.NewLogger(t)

	serverOpts := append([]Option{WithLogger(serverLogger), WithMetrics(m)}, opts...)
	clientOpts := append([]Option{WithLogger(clientLogger), WithMetrics(m)}, opts...)
	return &pair{
		server:    New(serverEP, serverIn, serverOpts...),
		client:    New(clientEP, clientIn, clientOpts...),
		serverLog: serverLog,
		clientLog: clientLog,
		metrics:   m,
		registry:  reg,
	}
}

func waitCalls(t *testing.T, rec *testutil.Recorder, n int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for len(rec.Calls()) < n {
		select {
		case <-rec.Seen():
		case <-deadline:
			t.Fatalf("timed out waiting for %d calls, got %v", n, rec.Calls())
		}
	}
	return rec.Calls()
}

func recordEvent(rec *testutil.Recorder, label string) EventHandler {
	return func(_ context.Context, sender transport.Peer, payload []byte) error {
		rec.Record(fmt.Sprintf("%s:%s:%s", label, sender, payload))
		return nil
	}
}

func TestOn_HandlersRunInOrderWithSender(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := newPair(t, NewContract([]string{"x"}, nil), Contract{})
	rec := testutil.NewRecorder(8)
	p.server.On("x", recordEvent(rec, "h1"))
	p.server.On("x", recordEvent(rec, "h2"))

	// --- Act ---
	require.NoError(t, p.client.Emit(context.Background(), transport.Server, "x", []byte("p")))

	// --- Assert ---
	want := []string{"h1:alice:p", "h2:alice:p"}
	if diff := cmp.Diff(want, waitCalls(t, rec, 2)); diff != "" {
		t.Errorf("handler calls mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1.0, promtest.ToFloat64(p.counter("netbus_dispatched_total", map[string]string{"side": "server", "handle": "x"})))
}

func TestOnEvent_UnknownHandleRejected(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := newPair(t, NewContract([]string{"known"}, nil), Contract{})
	rec := testutil.NewRecorder(8)
	p.server.On("known", recordEvent(rec, "known"))

	// --- Act ---
	ctx := context.Background()
	require.NoError(t, p.client.Emit(ctx, transport.Server, "unknown", []byte("1")))
	// Events from one peer are delivered in order, so once "known" arrives
	// the unknown frame has been processed.
	require.NoError(t, p.client.Emit(ctx, transport.Server, "known", []byte("2")))
	waitCalls(t, rec, 1)

	// --- Assert ---
	assert.Equal(t, []string{"known:alice:2"}, rec.Calls())
	assert.Equal(t, 1, p.serverLog.Count("Dropping event with unknown handle."))
	assert.Equal(t, 1, p.serverLog.Count("sender=alice event=unknown"))
	assert.Equal(t, 1.0, promtest.ToFloat64(p.rejected("server", "events")))
}

func (p *pair) rejected(side, channel string) prometheus.Collector {
	return p.counter("netbus_rejected_total", map[string]string{"side": side, "channel": channel})
}

func (p *pair) counter(name string, want map[string]string) prometheus.Collector {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "probe"})
	families, _ := p.registry.Gather()
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if v, ok := want[l.GetName()]; ok && v != l.GetValue() {
					continue metrics
				}
			}
			c.Add(m.GetCounter().GetValue())
		}
	}
	return c
}

func TestOnEvent_MalformedFrameRejected(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	hub := memory.NewHub()
	serverEP, err := hub.Create("raw")
	require.NoError(t, err)
	t.Cleanup(func() { serverEP.Close() })
	clientEP, err := hub.AttachAs(context.Background(), "raw", "mallory")
	require.NoError(t, err)

	logger, logs := testutil.NewLogger(t)
	server := New(serverEP, NewContract([]string{"x"}, nil), WithLogger(logger))
	rec := testutil.NewRecorder(4)
	server.On("x", recordEvent(rec, "x"))

	// --- Act ---
	ctx := context.Background()
	require.NoError(t, clientEP.Send(ctx, transport.Server, []byte("garbage")))
	frame, err := wire.EncodeMessage(wire.JSON, "x", []byte("ok"))
	require.NoError(t, err)
	require.NoError(t, clientEP.Send(ctx, transport.Server, frame))
	waitCalls(t, rec, 1)

	// --- Assert ---
	assert.Equal(t, 1, logs.Count("Dropping malformed event frame."))
	assert.Equal(t, []string{"x:mallory:ok"}, rec.Calls())
}

func TestUnbind(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := newPair(t, NewContract([]string{"x"}, nil), Contract{})
	rec := testutil.NewRecorder(8)
	id := p.server.On("x", recordEvent(rec, "gone"))
	p.server.On("x", recordEvent(rec, "kept"))

	// --- Act ---
	first := p.server.Unbind(id)
	second := p.server.Unbind(id)
	require.NoError(t, p.client.Emit(context.Background(), transport.Server, "x", []byte("1")))

	// --- Assert ---
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, []string{"kept:alice:1"}, waitCalls(t, rec, 1))
}

func TestOn_HandlerFailureDoesNotStopChain(t *testing.T) {
	t.Parallel()

	p := newPair(t, NewContract([]string{"x"}, nil), Contract{})
	rec := testutil.NewRecorder(8)
	p.server.On("x", func(context.Context, transport.Peer, []byte) error { return errors.New("boom") })
	p.server.On("x", func(context.Context, transport.Peer, []byte) error { panic("bad") })
	p.server.On("x", recordEvent(rec, "last"))

	require.NoError(t, p.client.Emit(context.Background(), transport.Server, "x", []byte("1")))

	assert.Equal(t, []string{"last:alice:1"}, waitCalls(t, rec, 1))
	assert.Equal(t, 2, p.serverLog.Count("Handler failed."))
	assert.Equal(t, 2.0, promtest.ToFloat64(p.counter("netbus_handler_failures_total", map[string]string{"side": "server"})))
}

func TestOn_UndeclaredEventWarns(t *testing.T) {
	t.Parallel()

	p := newPair(t, Contract{}, Contract{})
	p.server.On("nobody-sends-this", recordEvent(testutil.NewRecorder(1), "x"))
	assert.Equal(t, 1, p.serverLog.Count("not declared incoming"))
}

func TestBroadcast_ReachesEveryClient(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	hub := memory.NewHub()
	serverEP, err := hub.Create("room")
	require.NoError(t, err)
	t.Cleanup(func() { serverEP.Close() })
	server := New(serverEP, Contract{})

	rec := testutil.NewRecorder(8)
	for _, name := range []transport.Peer{"alice", "bob"} {
		ep, err := hub.AttachAs(context.Background(), "room", name)
		require.NoError(t, err)
		client := New(ep, NewContract([]string{"news"}, nil))
		client.On("news", recordEvent(rec, string(name)))
	}

	// --- Act ---
	require.NoError(t, server.Broadcast(context.Background(), "news", []byte("hi")))

	// --- Assert ---
	assert.ElementsMatch(t, []string{"alice:server:hi", "bob:server:hi"}, waitCalls(t, rec, 2))
}

func TestEmit_UnknownPeer(t *testing.T) {
	t.Parallel()

	p := newPair(t, Contract{}, Contract{})
	err := p.server.Emit(context.Background(), "ghost", "x", nil)
	require.ErrorIs(t, err, transport.ErrUnknownPeer)
}

func TestEmit_EmptyHandle(t *testing.T) {
	t.Parallel()

	p := newPair(t, Contract{}, Contract{})
	require.ErrorIs(t, p.client.Emit(context.Background(), transport.Server, "", nil), wire.ErrEmptyHandle)
	require.ErrorIs(t, p.client.Broadcast(context.Background(), "", nil), wire.ErrEmptyHandle)
}

func TestInvoke_ReplyReachesCaller(t *testing.T) {
	t.Parallel()

	p := newPair(t, NewContract(nil, []string{"whoami"}), Contract{})
	p.server.Handle("whoami", func(_ context.Context, sender transport.Peer, payload []byte) ([]byte, error) {
		return []byte(fmt.Sprintf("%s/%s", sender, payload)), nil
	})

	result, err := p.client.Invoke(context.Background(), transport.Server, "whoami", []byte("q"))
	require.NoError(t, err)
	assert.Equal(t, "alice/q", string(result))
	assert.Equal(t, 1.0, promtest.ToFloat64(p.counter("netbus_invocations_total", map[string]string{"side": "client", "outcome": metrics.OutcomeOK})))
}

func TestHandle_LastRegistrationWins(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := newPair(t, NewContract(nil, []string{"f"}), Contract{})
	p.server.Handle("f", func(context.Context, transport.Peer, []byte) ([]byte, error) { return []byte("f1"), nil })
	p.server.Handle("f", func(context.Context, transport.Peer, []byte) ([]byte, error) { return []byte("f2"), nil })

	// --- Act ---
	result, err := p.client.Invoke(context.Background(), transport.Server, "f", nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "f2", string(result))
	assert.Equal(t, 1, p.serverLog.Count("Responder replaced"))
	assert.Equal(t, 1.0, promtest.ToFloat64(p.counter("netbus_responder_replaced_total", map[string]string{"side": "server"})))
}

func TestInvoke_RemoteStatuses(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := newPair(t, NewContract(nil, []string{"unanswered", "fails", "panics", "dropped"}), Contract{})
	p.server.Handle("fails", func(context.Context, transport.Peer, []byte) ([]byte, error) {
		return nil, errors.New("secret detail")
	})
	p.server.Handle("panics", func(context.Context, transport.Peer, []byte) ([]byte, error) {
		panic("kaboom")
	})
	p.server.Handle("dropped", func(context.Context, transport.Peer, []byte) ([]byte, error) {
		return []byte("never"), nil
	})
	require.True(t, p.server.Unhandle("dropped"))

	testCases := []struct {
		handle string
		want   error
	}{
		{handle: "undeclared", want: ErrUnknownHandle},
		{handle: "unanswered", want: ErrNoResponder},
		{handle: "dropped", want: ErrNoResponder},
		{handle: "fails", want: ErrRemoteFailure},
		{handle: "panics", want: ErrRemoteFailure},
	}

	for _, tc := range testCases {
		t.Run(tc.handle, func(t *testing.T) {
			// --- Act ---
			result, err := p.client.Invoke(context.Background(), transport.Server, tc.handle, nil)

			// --- Assert ---
			require.ErrorIs(t, err, tc.want)
			assert.Nil(t, result)
			assert.NotContains(t, err.Error(), "secret detail")
		})
	}
	assert.Equal(t, 1, p.serverLog.Count("Rejecting call with unknown handle."))
	assert.Equal(t, 2, p.serverLog.Count("Responder failed."))
}

func TestInvoke_Timeout(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := newPair(t, NewContract(nil, []string{"slow"}), Contract{}, WithInvokeTimeout(30*time.Millisecond))
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	p.server.Handle("slow", func(context.Context, transport.Peer, []byte) ([]byte, error) {
		<-release
		return nil, nil
	})

	// --- Act ---
	_, err := p.client.Invoke(context.Background(), transport.Server, "slow", nil)

	// --- Assert ---
	require.ErrorIs(t, err, ErrInvokeTimeout)
	assert.Equal(t, 1.0, promtest.ToFloat64(p.counter("netbus_invocations_total", map[string]string{"outcome": metrics.OutcomeTimeout})))
}

func TestInvoke_CallerContextWins(t *testing.T) {
	t.Parallel()

	p := newPair(t, NewContract(nil, []string{"slow"}), Contract{}, WithInvokeTimeout(0))
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	p.server.Handle("slow", func(context.Context, transport.Peer, []byte) ([]byte, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.client.Invoke(ctx, transport.Server, "slow", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrInvokeTimeout)
}

func TestInvoke_NestedCallBackToCaller(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The server answers "outer" by invoking "inner" on the calling client.
	p := newPair(t,
		NewContract(nil, []string{"outer"}),
		NewContract(nil, []string{"inner"}),
	)
	p.client.Handle("inner", func(_ context.Context, _ transport.Peer, payload []byte) ([]byte, error) {
		return append(payload, '!'), nil
	})
	p.server.Handle("outer", func(ctx context.Context, sender transport.Peer, payload []byte) ([]byte, error) {
		return p.server.Invoke(ctx, sender, "inner", payload)
	})

	// --- Act ---
	result, err := p.client.Invoke(context.Background(), transport.Server, "outer", []byte("hey"))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "hey!", string(result))
}

func TestPingPong_FireAndForget(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := newPair(t,
		NewContract([]string{"ping"}, nil),
		NewContract([]string{"pong"}, nil),
		WithCodec(wire.MsgPack),
	)
	p.server.On("ping", func(ctx context.Context, sender transport.Peer, payload []byte) error {
		n, err := strconv.Atoi(string(payload))
		if err != nil {
			return err
		}
		return p.server.Emit(ctx, sender, "pong", []byte(strconv.Itoa(n+1)))
	})
	rec := testutil.NewRecorder(4)
	p.client.On("pong", recordEvent(rec, "pong"))

	// --- Act ---
	require.NoError(t, p.client.Emit(context.Background(), transport.Server, "ping", []byte("41")))

	// --- Assert ---
	assert.Equal(t, []string{"pong:server:42"}, waitCalls(t, rec, 1))
}

func TestVerbose_TracesTraffic(t *testing.T) {
	t.Parallel()

	p := newPair(t, NewContract([]string{"x"}, []string{"f"}), Contract{}, WithVerbose(true))
	rec := testutil.NewRecorder(2)
	p.server.On("x", recordEvent(rec, "x"))
	p.server.Handle("f", func(context.Context, transport.Peer, []byte) ([]byte, error) { return nil, nil })

	ctx := context.Background()
	require.NoError(t, p.client.Emit(ctx, transport.Server, "x", nil))
	_, err := p.client.Invoke(ctx, transport.Server, "f", nil)
	require.NoError(t, err)
	waitCalls(t, rec, 1)

	assert.Equal(t, 1, p.clientLog.Count("Emitting event."))
	assert.Equal(t, 1, p.clientLog.Count("Invoking function."))
	assert.Equal(t, 1, p.serverLog.Count("Event received."))
	assert.Equal(t, 1, p.serverLog.Count("Function called."))
	assert.Equal(t, 1, p.serverLog.Count("Handler registered."))
	assert.Equal(t, 1, p.serverLog.Count("Responder registered."))
}
