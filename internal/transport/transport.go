// Package transport defines the two physical channels a boundary router
// needs: a fire-and-forget event channel and a call/reply channel. Both carry
// opaque frames; framing and validation belong to the router.
package transport

import (
	"context"
	"errors"
)

// Peer identifies the other side of a connection.
type Peer string

// Server is the peer id clients use to address the server.
const Server Peer = "server"

// Well-known channel names. Both sides locate the channels by these names
// without further coordination.
const (
	EventChannelName    = "netbus:events"
	FunctionChannelName = "netbus:functions"
)

var (
	// ErrUnknownPeer is returned when a frame is addressed to a peer that is
	// not connected.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("endpoint closed")

	// ErrNoResponder is returned by Call when the remote endpoint serves no
	// call channel.
	ErrNoResponder = errors.New("remote endpoint serves no calls")
)

// Inbox consumes frames received on the event channel.
type Inbox func(ctx context.Context, from Peer, frame []byte)

// Responder answers one frame received on the call channel. The returned
// frame is sent back to the caller.
type Responder func(ctx context.Context, from Peer, frame []byte) []byte

// EventChannel is the fire-and-forget channel.
type EventChannel interface {
	// Send delivers frame to one peer.
	Send(ctx context.Context, to Peer, frame []byte) error
	// Broadcast delivers frame to every connected peer.
	Broadcast(ctx context.Context, frame []byte) error
	// Receive installs the consumer of inbound frames, replacing any
	// previous one.
	Receive(inbox Inbox)
}

// CallChannel is the request/response channel.
type CallChannel interface {
	// Call sends frame to one peer and waits for exactly one reply.
	Call(ctx context.Context, to Peer, frame []byte) ([]byte, error)
	// Serve installs the responder for inbound requests, replacing any
	// previous one.
	Serve(responder Responder)
}

// Endpoint is one side of a connection with both physical channels attached.
type Endpoint interface {
	Self() Peer
	Events() EventChannel
	Calls() CallChannel
	Close() error
}
