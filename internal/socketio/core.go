// Package socketio carries both physical channels over socket.io. Event
// frames travel on the "netbus:events" event. Calls travel on
// "netbus:functions" as (kind, id, frame) triples correlated by a uuid, so
// either side can call the other. Frames are base64 strings so they survive
// every socket.io parser unchanged.
package socketio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/netbus/internal/transport"
)

// Call frame kinds.
const (
	kindRequest     = "req"
	kindResponse    = "res"
	kindNoResponder = "none"
)

// queueSize bounds the number of undelivered event frames per endpoint.
const queueSize = 256

var errBadArgs = errors.New("unexpected socket.io arguments")

type delivery struct {
	from  transport.Peer
	frame []byte
}

type callResult struct {
	frame []byte
	err   error
}

type pendingCall struct {
	peer  transport.Peer
	reply chan callResult
}

// emitFunc sends one socket.io event to a single peer.
type emitFunc func(event string, args ...any)

// core is the state both ends share: the installed consumers, the ordered
// event queue and the table of calls waiting for a reply.
type core struct {
	logger *slog.Logger

	mu        sync.RWMutex
	inbox     transport.Inbox
	responder transport.Responder

	pendingMu sync.Mutex
	pending   map[string]pendingCall

	queue     chan delivery
	done      chan struct{}
	closeOnce sync.Once
}

func newCore(logger *slog.Logger) *core {
	if logger == nil {
		logger = slog.Default()
	}
	c := &core{
		logger:  logger,
		pending: make(map[string]pendingCall),
		queue:   make(chan delivery, queueSize),
		done:    make(chan struct{}),
	}
	go c.deliverLoop()
	return c
}

func (c *core) deliverLoop() {
	for {
		select {
		case d := <-c.queue:
			c.mu.RLock()
			inbox := c.inbox
			c.mu.RUnlock()
			if inbox != nil {
				inbox(context.Background(), d.from, d.frame)
			}
		case <-c.done:
			return
		}
	}
}

// Receive implements transport.EventChannel.
func (c *core) Receive(inbox transport.Inbox) {
	c.mu.Lock()
	c.inbox = inbox
	c.mu.Unlock()
}

// Serve implements transport.CallChannel.
func (c *core) Serve(responder transport.Responder) {
	c.mu.Lock()
	c.responder = responder
	c.mu.Unlock()
}

func (c *core) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *core) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.pendingMu.Lock()
		for id, p := range c.pending {
			p.reply <- callResult{err: transport.ErrClosed}
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
}

// onEvent queues one inbound event frame.
func (c *core) onEvent(from transport.Peer, args []any) {
	frames, err := stringArgs(args, 1)
	if err != nil {
		c.logger.Warn("Dropping event with bad arguments.", "sender", from, "error", err)
		return
	}
	frame, err := decodeFrame(frames[0])
	if err != nil {
		c.logger.Warn("Dropping event with bad frame encoding.", "sender", from, "error", err)
		return
	}
	select {
	case c.queue <- delivery{from: from, frame: frame}:
	case <-c.done:
	}
}

// onFunction handles one inbound call triple: a request to serve or the
// reply to one of our own calls.
func (c *core) onFunction(from transport.Peer, reply emitFunc, args []any) {
	parts, err := stringArgs(args, 3)
	if err != nil {
		c.logger.Warn("Dropping call with bad arguments.", "sender", from, "error", err)
		return
	}
	kind, id := parts[0], parts[1]
	frame, err := decodeFrame(parts[2])
	if err != nil {
		c.logger.Warn("Dropping call with bad frame encoding.", "sender", from, "id", id, "error", err)
		return
	}

	switch kind {
	case kindRequest:
		c.mu.RLock()
		responder := c.responder
		c.mu.RUnlock()
		if responder == nil {
			reply(transport.FunctionChannelName, kindNoResponder, id, "")
			return
		}
		// Calls are served concurrently so a responder may itself call back.
		go func() {
			out := responder(context.Background(), from, frame)
			reply(transport.FunctionChannelName, kindResponse, id, encodeFrame(out))
		}()
	case kindResponse, kindNoResponder:
		c.pendingMu.Lock()
		p, ok := c.pending[id]
		delete(c.pending, id)
		c.pendingMu.Unlock()
		if !ok {
			c.logger.Debug("Ignoring reply to an unknown or expired call.", "sender", from, "id", id)
			return
		}
		if kind == kindNoResponder {
			p.reply <- callResult{err: transport.ErrNoResponder}
			return
		}
		p.reply <- callResult{frame: frame}
	default:
		c.logger.Warn("Dropping call with unknown kind.", "sender", from, "kind", kind)
	}
}

// call sends a request through emit and waits for the matching reply.
func (c *core) call(ctx context.Context, to transport.Peer, emit emitFunc, frame []byte) ([]byte, error) {
	if c.closed() {
		return nil, transport.ErrClosed
	}
	id := uuid.NewString()
	reply := make(chan callResult, 1)

	c.pendingMu.Lock()
	c.pending[id] = pendingCall{peer: to, reply: reply}
	c.pendingMu.Unlock()

	emit(transport.FunctionChannelName, kindRequest, id, encodeFrame(frame))

	select {
	case res := <-reply:
		return res.frame, res.err
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *core) forget(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// failPeer fails every call waiting on peer.
func (c *core) failPeer(peer transport.Peer, err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, p := range c.pending {
		if p.peer == peer {
			p.reply <- callResult{err: err}
			delete(c.pending, id)
		}
	}
}

func encodeFrame(frame []byte) string {
	return base64.StdEncoding.EncodeToString(frame)
}

func decodeFrame(s string) ([]byte, error) {
	frame, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

// stringArgs returns the first n arguments as strings.
func stringArgs(args []any, n int) ([]string, error) {
	if len(args) < n {
		return nil, fmt.Errorf("%w: want %d, got %d", errBadArgs, n, len(args))
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		s, ok := args[i].(string)
		if !ok {
			return nil, fmt.Errorf("%w: argument %d is %T, not a string", errBadArgs, i, args[i])
		}
		out[i] = s
	}
	return out, nil
}
