// Package netbus is a typed, handle-keyed event multiplexer.
//
// Operations are declared once as typed descriptors, Event[T] and
// Function[Req, Resp], and then used on either a local Bus or a boundary
// Node. A Bus dispatches in process: every listener of a handle runs in
// registration order, primary listeners before post listeners. A Node sits on
// one side of a client/server boundary that shares two physical channels, one
// for events and one for calls. Events fan out to every listener and carry the
// sender; functions have exactly one responder and return a single reply.
//
// Each side declares the operations it accepts with Declare. Inbound frames
// naming an undeclared handle are logged and dropped, or answered with
// ErrUnknownHandle on the call side, and never reach a handler.
package netbus
