// Package router carries handle-keyed operations across a client/server
// boundary. Events travel fire-and-forget on the endpoint's event channel and
// fan out to every listener; functions travel on the call channel and are
// answered by exactly one responder.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/specialistvlad/netbus/internal/ctxlog"
	"github.com/specialistvlad/netbus/internal/dispatch"
	"github.com/specialistvlad/netbus/internal/handlers"
	"github.com/specialistvlad/netbus/internal/metrics"
	"github.com/specialistvlad/netbus/internal/transport"
	"github.com/specialistvlad/netbus/internal/wire"
)

// EventHandler receives one inbound event together with the peer that sent it.
type EventHandler func(ctx context.Context, sender transport.Peer, payload []byte) error

// Responder answers one inbound function call.
type Responder func(ctx context.Context, sender transport.Peer, payload []byte) ([]byte, error)

// Identifier is returned by On and consumed by Unbind.
type Identifier = dispatch.Identifier[string]

type inbound struct {
	sender  transport.Peer
	payload []byte
}

// Router is one side of a boundary.
type Router struct {
	endpoint transport.Endpoint
	incoming Contract
	opts     options
	side     string
	logger   *slog.Logger

	events     *dispatch.Dispatcher[string, inbound]
	responders *handlers.Slots[Responder]
}

// New attaches a router to both channels of endpoint. incoming lists the
// operations this side accepts.
func New(endpoint transport.Endpoint, incoming Contract, opts ...Option) *Router {
	o := options{
		codec:         wire.JSON,
		invokeTimeout: DefaultInvokeTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	side := "client"
	if endpoint.Self() == transport.Server {
		side = "server"
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("side", side)

	r := &Router{
		endpoint:   endpoint,
		incoming:   incoming,
		opts:       o,
		side:       side,
		logger:     logger,
		responders: handlers.New[Responder](logger),
	}
	r.events = dispatch.New[string, inbound](
		dispatch.WithName(side),
		dispatch.WithLogger(logger),
		dispatch.WithVerbose(o.verbose),
		dispatch.WithFailureHook(func(herr *dispatch.HandlerError) {
			o.metrics.HandlerFailed(side, herr.Handle)
		}),
	)

	endpoint.Events().Receive(r.onEvent)
	endpoint.Calls().Serve(r.onCall)

	logger.Debug("Router initialized.", "events", incoming.Events(), "functions", incoming.Functions(), "codec", o.codec.Name())
	return r
}

// Self returns the local peer id.
func (r *Router) Self() transport.Peer { return r.endpoint.Self() }

// Codec returns the codec frames are encoded with.
func (r *Router) Codec() wire.Codec { return r.opts.codec }

// Close closes the underlying endpoint.
func (r *Router) Close() error { return r.endpoint.Close() }

// On appends h to the listeners of the incoming event handle.
func (r *Router) On(handle string, h EventHandler) Identifier {
	if h == nil {
		panic(fmt.Sprintf("router: nil event handler for %q", handle))
	}
	if !r.incoming.HasEvent(handle) {
		r.logger.Warn("Listening on an event that is not declared incoming; it will never be delivered.", "event", handle)
	}
	return r.events.Listen(handle, func(ctx context.Context, in inbound) error {
		return h(ctx, in.sender, in.payload)
	})
}

// Unbind removes the listener behind id and reports whether it still existed.
func (r *Router) Unbind(id Identifier) bool {
	return r.events.Unbind(id)
}

// Handle installs responder as the only answer to the incoming function
// handle, replacing any previous one.
func (r *Router) Handle(handle string, responder Responder) {
	if responder == nil {
		panic(fmt.Sprintf("router: nil responder for %q", handle))
	}
	if !r.incoming.HasFunction(handle) {
		r.logger.Warn("Handling a function that is not declared incoming; it will never be called.", "function", handle)
	}
	if r.responders.Set(handle, responder) {
		r.opts.metrics.ResponderReplaced(r.side)
	}
	if r.opts.verbose {
		r.logger.Info("Responder registered.", "side", r.side, "function", handle)
	}
}

// Unhandle clears the responder of handle and reports whether one was set.
func (r *Router) Unhandle(handle string) bool {
	return r.responders.Remove(handle)
}

// Emit sends one event to peer to. There is no acknowledgement.
func (r *Router) Emit(ctx context.Context, to transport.Peer, handle string, payload []byte) error {
	frame, err := wire.EncodeMessage(r.opts.codec, handle, payload)
	if err != nil {
		return err
	}
	if r.opts.verbose {
		r.logger.Info("Emitting event.", "event", handle, "to", to, "bytes", len(payload))
	}
	if err := r.endpoint.Events().Send(ctx, to, frame); err != nil {
		return fmt.Errorf("emit %q to %q: %w", handle, to, err)
	}
	return nil
}

// Broadcast sends one event to every connected peer.
func (r *Router) Broadcast(ctx context.Context, handle string, payload []byte) error {
	frame, err := wire.EncodeMessage(r.opts.codec, handle, payload)
	if err != nil {
		return err
	}
	if r.opts.verbose {
		r.logger.Info("Broadcasting event.", "event", handle, "bytes", len(payload))
	}
	if err := r.endpoint.Events().Broadcast(ctx, frame); err != nil {
		return fmt.Errorf("broadcast %q: %w", handle, err)
	}
	return nil
}

// Invoke calls function handle on peer to and waits for its single reply.
func (r *Router) Invoke(ctx context.Context, to transport.Peer, handle string, payload []byte) ([]byte, error) {
	result, outcome, err := r.invoke(ctx, to, handle, payload)
	r.opts.metrics.Invoked(r.side, handle, outcome)
	return result, err
}

func (r *Router) invoke(ctx context.Context, to transport.Peer, handle string, payload []byte) ([]byte, string, error) {
	frame, err := wire.EncodeMessage(r.opts.codec, handle, payload)
	if err != nil {
		return nil, metrics.OutcomeError, err
	}

	callCtx := ctx
	if r.opts.invokeTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.invokeTimeout)
		defer cancel()
	}

	if r.opts.verbose {
		r.logger.Info("Invoking function.", "function", handle, "to", to, "bytes", len(payload))
	}
	raw, err := r.endpoint.Calls().Call(callCtx, to, frame)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, metrics.OutcomeTimeout, fmt.Errorf("invoke %q on %q after %s: %w", handle, to, r.opts.invokeTimeout, ErrInvokeTimeout)
	case errors.Is(err, transport.ErrNoResponder):
		return nil, metrics.OutcomeNoResponder, fmt.Errorf("invoke %q on %q: %w: %w", handle, to, ErrNoResponder, err)
	default:
		return nil, metrics.OutcomeError, fmt.Errorf("invoke %q on %q: %w", handle, to, err)
	}

	reply, err := wire.DecodeReply(r.opts.codec, raw)
	if err != nil {
		return nil, metrics.OutcomeError, fmt.Errorf("invoke %q on %q: %w: %w", handle, to, ErrMalformed, err)
	}
	switch reply.Status {
	case wire.StatusOK:
		return reply.Result, metrics.OutcomeOK, nil
	case wire.StatusUnknownHandle:
		return nil, metrics.OutcomeUnknownHandle, fmt.Errorf("invoke %q on %q: %w", handle, to, ErrUnknownHandle)
	case wire.StatusNoResponder:
		return nil, metrics.OutcomeNoResponder, fmt.Errorf("invoke %q on %q: %w", handle, to, ErrNoResponder)
	case wire.StatusFailed:
		return nil, metrics.OutcomeFailed, fmt.Errorf("invoke %q on %q: %w", handle, to, ErrRemoteFailure)
	case wire.StatusMalformed:
		return nil, metrics.OutcomeError, fmt.Errorf("invoke %q on %q: remote rejected the request: %w", handle, to, ErrMalformed)
	default:
		return nil, metrics.OutcomeError, fmt.Errorf("invoke %q on %q: unknown reply status %q: %w", handle, to, reply.Status, ErrMalformed)
	}
}

func (r *Router) onEvent(ctx context.Context, from transport.Peer, frame []byte) {
	msg, err := wire.DecodeMessage(r.opts.codec, frame)
	if err != nil {
		r.logger.Warn("Dropping malformed event frame.", "sender", from, "error", err)
		r.opts.metrics.Rejected(r.side, "events")
		return
	}
	if !r.incoming.HasEvent(msg.Handle) {
		r.logger.Warn("Dropping event with unknown handle.", "sender", from, "event", msg.Handle)
		r.opts.metrics.Rejected(r.side, "events")
		return
	}

	if r.opts.verbose {
		r.logger.Info("Event received.", "sender", from, "event", msg.Handle, "bytes", len(msg.Args))
	}
	r.opts.metrics.Dispatched(r.side, msg.Handle)
	// Failures are logged and counted by the dispatcher.
	_ = r.events.Dispatch(ctxlog.WithLogger(ctx, r.logger), msg.Handle, inbound{sender: from, payload: msg.Args})
}

func (r *Router) onCall(ctx context.Context, from transport.Peer, frame []byte) []byte {
	msg, err := wire.DecodeMessage(r.opts.codec, frame)
	if err != nil {
		r.logger.Warn("Rejecting malformed call frame.", "sender", from, "error", err)
		r.opts.metrics.Rejected(r.side, "functions")
		return r.reply(wire.StatusMalformed, nil)
	}
	if !r.incoming.HasFunction(msg.Handle) {
		r.logger.Warn("Rejecting call with unknown handle.", "sender", from, "function", msg.Handle)
		r.opts.metrics.Rejected(r.side, "functions")
		return r.reply(wire.StatusUnknownHandle, nil)
	}
	responder, ok := r.responders.Get(msg.Handle)
	if !ok {
		r.logger.Warn("Rejecting call to a function with no responder.", "sender", from, "function", msg.Handle)
		r.opts.metrics.Rejected(r.side, "functions")
		return r.reply(wire.StatusNoResponder, nil)
	}

	if r.opts.verbose {
		r.logger.Info("Function called.", "sender", from, "function", msg.Handle, "bytes", len(msg.Args))
	}
	r.opts.metrics.Dispatched(r.side, msg.Handle)
	result, err := respond(ctxlog.WithLogger(ctx, r.logger), responder, from, msg.Args)
	if err != nil {
		r.logger.Warn("Responder failed.", "sender", from, "function", msg.Handle, "error", err)
		r.opts.metrics.HandlerFailed(r.side, msg.Handle)
		return r.reply(wire.StatusFailed, nil)
	}
	return r.reply(wire.StatusOK, result)
}

func respond(ctx context.Context, responder Responder, from transport.Peer, payload []byte) (result []byte, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &dispatch.PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return responder(ctx, from, payload)
}

func (r *Router) reply(status wire.Status, result []byte) []byte {
	frame, err := wire.EncodeReply(r.opts.codec, status, result)
	if err != nil {
		r.logger.Error("Failed to encode reply.", "status", status, "error", err)
		frame, _ = wire.EncodeReply(r.opts.codec, wire.StatusFailed, nil)
	}
	return frame
}
