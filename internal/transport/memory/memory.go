// Package memory is an in-process transport. A Hub owns named links; the
// server side creates a link exactly once and clients wait for it and attach.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/netbus/internal/transport"
)

// ErrAlreadyCreated is returned when a link name is created twice.
var ErrAlreadyCreated = errors.New("link already created")

// queueSize bounds the number of undelivered event frames per endpoint.
const queueSize = 64

// Hub is a registry of links addressed by name.
type Hub struct {
	mu      sync.Mutex
	links   map[string]*link
	created map[string]chan struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		links:   make(map[string]*link),
		created: make(map[string]chan struct{}),
	}
}

type link struct {
	name    string
	mu      sync.RWMutex
	server  *Endpoint
	clients map[transport.Peer]*Endpoint
}

// signal returns the channel closed once name is created. Callers hold h.mu.
func (h *Hub) signal(name string) chan struct{} {
	ch, ok := h.created[name]
	if !ok {
		ch = make(chan struct{})
		h.created[name] = ch
	}
	return ch
}

// Create creates the named link and returns its server endpoint.
func (h *Hub) Create(name string) (*Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.links[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyCreated, name)
	}
	l := &link{name: name, clients: make(map[transport.Peer]*Endpoint)}
	l.server = newEndpoint(transport.Server, l, true)
	h.links[name] = l
	close(h.signal(name))
	return l.server, nil
}

// Attach waits until the named link exists and connects a client endpoint
// with a generated peer id.
func (h *Hub) Attach(ctx context.Context, name string) (*Endpoint, error) {
	return h.AttachAs(ctx, name, transport.Peer(uuid.NewString()))
}

// AttachAs is Attach with a caller-chosen peer id.
func (h *Hub) AttachAs(ctx context.Context, name string, peer transport.Peer) (*Endpoint, error) {
	h.mu.Lock()
	ready := h.signal(name)
	h.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for link %q: %w", name, ctx.Err())
	}

	h.mu.Lock()
	l := h.links[name]
	h.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.server.isClosed() {
		return nil, fmt.Errorf("link %q: %w", name, transport.ErrClosed)
	}
	if _, taken := l.clients[peer]; taken || peer == transport.Server {
		return nil, fmt.Errorf("peer %q already attached to link %q", peer, name)
	}
	e := newEndpoint(peer, l, false)
	l.clients[peer] = e
	return e, nil
}

type delivery struct {
	from  transport.Peer
	frame []byte
}

// Endpoint is one side of a link. It implements both physical channels.
// Inbound event frames are handled one at a time, in arrival order; inbound
// calls are served concurrently.
type Endpoint struct {
	self     transport.Peer
	link     *link
	isServer bool

	mu        sync.RWMutex
	inbox     transport.Inbox
	responder transport.Responder

	queue     chan delivery
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ transport.Endpoint     = (*Endpoint)(nil)
	_ transport.EventChannel = (*Endpoint)(nil)
	_ transport.CallChannel  = (*Endpoint)(nil)
)

func newEndpoint(self transport.Peer, l *link, isServer bool) *Endpoint {
	e := &Endpoint{
		self:     self,
		link:     l,
		isServer: isServer,
		queue:    make(chan delivery, queueSize),
		done:     make(chan struct{}),
	}
	go e.deliverLoop()
	return e
}

func (e *Endpoint) deliverLoop() {
	for {
		select {
		case d := <-e.queue:
			e.mu.RLock()
			inbox := e.inbox
			e.mu.RUnlock()
			if inbox != nil {
				inbox(context.Background(), d.from, d.frame)
			}
		case <-e.done:
			return
		}
	}
}

// Self returns the endpoint's own peer id.
func (e *Endpoint) Self() transport.Peer { return e.self }

// Events returns the event channel.
func (e *Endpoint) Events() transport.EventChannel { return e }

// Calls returns the call channel.
func (e *Endpoint) Calls() transport.CallChannel { return e }

// Peers returns the ids of the endpoints this endpoint can address.
func (e *Endpoint) Peers() []transport.Peer {
	if !e.isServer {
		return []transport.Peer{transport.Server}
	}
	e.link.mu.RLock()
	defer e.link.mu.RUnlock()
	out := make([]transport.Peer, 0, len(e.link.clients))
	for p := range e.link.clients {
		out = append(out, p)
	}
	return out
}

func (e *Endpoint) isClosed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// resolve returns the endpoint addressed by to.
func (e *Endpoint) resolve(to transport.Peer) (*Endpoint, error) {
	if e.isClosed() {
		return nil, transport.ErrClosed
	}
	if !e.isServer {
		if to != transport.Server && to != "" {
			return nil, fmt.Errorf("%w: %q", transport.ErrUnknownPeer, to)
		}
		return e.link.server, nil
	}
	e.link.mu.RLock()
	target, ok := e.link.clients[to]
	e.link.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", transport.ErrUnknownPeer, to)
	}
	return target, nil
}

// Send implements transport.EventChannel.
func (e *Endpoint) Send(ctx context.Context, to transport.Peer, frame []byte) error {
	target, err := e.resolve(to)
	if err != nil {
		return err
	}
	return target.enqueue(ctx, e.self, frame)
}

// Broadcast implements transport.EventChannel. On a client endpoint the only
// peer is the server.
func (e *Endpoint) Broadcast(ctx context.Context, frame []byte) error {
	if e.isClosed() {
		return transport.ErrClosed
	}
	if !e.isServer {
		return e.link.server.enqueue(ctx, e.self, frame)
	}

	e.link.mu.RLock()
	targets := make([]*Endpoint, 0, len(e.link.clients))
	for _, c := range e.link.clients {
		targets = append(targets, c)
	}
	e.link.mu.RUnlock()

	var errs []error
	for _, target := range targets {
		if err := target.enqueue(ctx, e.self, frame); err != nil {
			errs = append(errs, fmt.Errorf("peer %q: %w", target.self, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Endpoint) enqueue(ctx context.Context, from transport.Peer, frame []byte) error {
	d := delivery{from: from, frame: append([]byte(nil), frame...)}
	select {
	case e.queue <- d:
		return nil
	case <-e.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements transport.EventChannel.
func (e *Endpoint) Receive(inbox transport.Inbox) {
	e.mu.Lock()
	e.inbox = inbox
	e.mu.Unlock()
}

// Serve implements transport.CallChannel.
func (e *Endpoint) Serve(responder transport.Responder) {
	e.mu.Lock()
	e.responder = responder
	e.mu.Unlock()
}

// Call implements transport.CallChannel.
func (e *Endpoint) Call(ctx context.Context, to transport.Peer, frame []byte) ([]byte, error) {
	target, err := e.resolve(to)
	if err != nil {
		return nil, err
	}

	target.mu.RLock()
	responder := target.responder
	target.mu.RUnlock()
	if responder == nil {
		return nil, transport.ErrNoResponder
	}

	request := append([]byte(nil), frame...)
	replies := make(chan []byte, 1)
	go func() {
		replies <- responder(context.Background(), e.self, request)
	}()

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-target.done:
		return nil, transport.ErrClosed
	case <-e.done:
		return nil, transport.ErrClosed
	}
}

// Close detaches the endpoint. Closing the server endpoint closes every
// client of the link.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)

		e.link.mu.Lock()
		var clients []*Endpoint
		if e.isServer {
			for _, c := range e.link.clients {
				clients = append(clients, c)
			}
			e.link.clients = make(map[transport.Peer]*Endpoint)
		} else {
			delete(e.link.clients, e.self)
		}
		e.link.mu.Unlock()

		for _, c := range clients {
			c.Close()
		}
	})
	return nil
}
