package netbus

import (
	"context"
	"fmt"

	"github.com/specialistvlad/netbus/internal/router"
	"github.com/specialistvlad/netbus/internal/transport"
	"github.com/specialistvlad/netbus/internal/transport/memory"
)

// Peer identifies the other side of a connection.
type Peer = transport.Peer

// Server is the peer clients address the server as.
const Server = transport.Server

// Endpoint is one side of a connection with both physical channels attached.
type Endpoint = transport.Endpoint

// Hub is an in-process transport: the server creates a link once and clients
// attach to it by name.
type Hub = memory.Hub

// NewHub creates an empty in-process hub.
func NewHub() *Hub {
	return memory.NewHub()
}

// Errors returned by Invoke.
var (
	ErrUnknownHandle = router.ErrUnknownHandle
	ErrNoResponder   = router.ErrNoResponder
	ErrRemoteFailure = router.ErrRemoteFailure
	ErrMalformed     = router.ErrMalformed
	ErrInvokeTimeout = router.ErrInvokeTimeout
)

// Node is one side of a boundary.
type Node struct {
	r     *router.Router
	codec Codec
}

// NewNode attaches a node to endpoint. incoming is what the other side may
// send to this one.
func NewNode(endpoint Endpoint, incoming Contract, opts ...Option) *Node {
	c := newConfig(opts)
	r := router.New(endpoint, incoming,
		router.WithLogger(c.logger),
		router.WithVerbose(c.verbose),
		router.WithCodec(c.codec),
		router.WithInvokeTimeout(c.invokeTimeout),
		router.WithMetrics(c.metrics),
	)
	return &Node{r: r, codec: c.codec}
}

// Self returns the node's own peer id.
func (n *Node) Self() Peer { return n.r.Self() }

// Unbind removes the listener behind id and reports whether it still existed.
func (n *Node) Unbind(id Identifier) bool { return n.r.Unbind(id) }

// Close closes the node's endpoint.
func (n *Node) Close() error { return n.r.Close() }

// On appends h to the listeners of the incoming event ev. h receives the peer
// that sent the event.
func On[T any](n *Node, ev Event[T], h func(ctx context.Context, sender Peer, args T) error) Identifier {
	if h == nil {
		panic(fmt.Sprintf("netbus: nil handler for %q", ev.name))
	}
	return n.r.On(ev.name, func(ctx context.Context, sender Peer, payload []byte) error {
		var args T
		if err := n.codec.Unmarshal(payload, &args); err != nil {
			return fmt.Errorf("event %q: decode arguments: %w", ev.name, err)
		}
		return h(ctx, sender, args)
	})
}

// Handle makes h the responder of the incoming function fn. A previous
// responder is replaced with a warning.
func Handle[Req, Resp any](n *Node, fn Function[Req, Resp], h func(ctx context.Context, sender Peer, req Req) (Resp, error)) {
	if h == nil {
		panic(fmt.Sprintf("netbus: nil responder for %q", fn.name))
	}
	n.r.Handle(fn.name, func(ctx context.Context, sender Peer, payload []byte) ([]byte, error) {
		var req Req
		if err := n.codec.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("function %q: decode request: %w", fn.name, err)
		}
		resp, err := h(ctx, sender, req)
		if err != nil {
			return nil, err
		}
		return n.codec.Marshal(resp)
	})
}

// Emit sends ev to one peer. There is no acknowledgement.
func Emit[T any](ctx context.Context, n *Node, to Peer, ev Event[T], args T) error {
	payload, err := n.codec.Marshal(args)
	if err != nil {
		return fmt.Errorf("event %q: encode arguments: %w", ev.name, err)
	}
	return n.r.Emit(ctx, to, ev.name, payload)
}

// Broadcast sends ev to every connected peer.
func Broadcast[T any](ctx context.Context, n *Node, ev Event[T], args T) error {
	payload, err := n.codec.Marshal(args)
	if err != nil {
		return fmt.Errorf("event %q: encode arguments: %w", ev.name, err)
	}
	return n.r.Broadcast(ctx, ev.name, payload)
}

// Invoke calls fn on peer to and waits for its reply.
func Invoke[Req, Resp any](ctx context.Context, n *Node, to Peer, fn Function[Req, Resp], req Req) (Resp, error) {
	var resp Resp
	payload, err := n.codec.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("function %q: encode request: %w", fn.name, err)
	}
	result, err := n.r.Invoke(ctx, to, fn.name, payload)
	if err != nil {
		return resp, err
	}
	if err := n.codec.Unmarshal(result, &resp); err != nil {
		return resp, fmt.Errorf("function %q: decode reply: %w", fn.name, err)
	}
	return resp, nil
}
