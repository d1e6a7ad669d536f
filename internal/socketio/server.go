package socketio

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/specialistvlad/netbus/internal/transport"
	"github.com/zishang520/socket.io/v2/socket"
)

// Server is the server end of both channels. Every connected socket is a
// peer addressed by its socket id.
type Server struct {
	*core
	io *socket.Server

	clientsMu sync.RWMutex
	clients   map[transport.Peer]*socket.Socket
}

var _ transport.Endpoint = (*Server)(nil)

// NewServer creates the socket.io server and mounts the channel handlers on
// its default namespace. Serve it with Handler.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		core:    newCore(logger.With("transport", "socketio", "side", "server")),
		io:      socket.NewServer(nil, nil),
		clients: make(map[transport.Peer]*socket.Socket),
	}
	s.io.On("connection", func(args ...any) {
		client, ok := args[0].(*socket.Socket)
		if !ok {
			s.logger.Error("Unexpected connection argument.", "type", fmt.Sprintf("%T", args[0]))
			return
		}
		s.attach(client)
	})
	return s
}

// Handler returns the HTTP handler of the socket.io endpoint.
func (s *Server) Handler() http.Handler {
	return s.io.ServeHandler(nil)
}

func (s *Server) attach(client *socket.Socket) {
	peer := transport.Peer(client.Id())
	logger := s.logger.With("peer", peer)

	s.clientsMu.Lock()
	s.clients[peer] = client
	s.clientsMu.Unlock()
	logger.Info("Peer connected.")

	reply := func(event string, args ...any) {
		client.Emit(event, args...)
	}
	client.On(transport.EventChannelName, func(args ...any) {
		s.onEvent(peer, args)
	})
	client.On(transport.FunctionChannelName, func(args ...any) {
		s.onFunction(peer, reply, args)
	})
	client.On("disconnect", func(reason ...any) {
		s.clientsMu.Lock()
		delete(s.clients, peer)
		s.clientsMu.Unlock()
		s.failPeer(peer, fmt.Errorf("%w: %q disconnected", transport.ErrUnknownPeer, peer))
		logger.Info("Peer disconnected.", "reason", fmt.Sprint(reason...))
	})
}

// Self returns transport.Server.
func (s *Server) Self() transport.Peer { return transport.Server }

// Events returns the event channel.
func (s *Server) Events() transport.EventChannel { return s }

// Calls returns the call channel.
func (s *Server) Calls() transport.CallChannel { return s }

// Peers returns the ids of the connected sockets.
func (s *Server) Peers() []transport.Peer {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	out := make([]transport.Peer, 0, len(s.clients))
	for p := range s.clients {
		out = append(out, p)
	}
	return out
}

func (s *Server) client(to transport.Peer) (*socket.Socket, error) {
	if s.closed() {
		return nil, transport.ErrClosed
	}
	s.clientsMu.RLock()
	client, ok := s.clients[to]
	s.clientsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", transport.ErrUnknownPeer, to)
	}
	return client, nil
}

// Send implements transport.EventChannel.
func (s *Server) Send(ctx context.Context, to transport.Peer, frame []byte) error {
	client, err := s.client(to)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	client.Emit(transport.EventChannelName, encodeFrame(frame))
	return nil
}

// Broadcast implements transport.EventChannel.
func (s *Server) Broadcast(ctx context.Context, frame []byte) error {
	if s.closed() {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded := encodeFrame(frame)

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		client.Emit(transport.EventChannelName, encoded)
	}
	return nil
}

// Call implements transport.CallChannel.
func (s *Server) Call(ctx context.Context, to transport.Peer, frame []byte) ([]byte, error) {
	client, err := s.client(to)
	if err != nil {
		return nil, err
	}
	return s.call(ctx, to, func(event string, args ...any) {
		client.Emit(event, args...)
	}, frame)
}

// Close disconnects every peer and stops the server.
func (s *Server) Close() error {
	if s.closed() {
		return nil
	}
	s.shutdown()

	s.clientsMu.Lock()
	clients := s.clients
	s.clients = make(map[transport.Peer]*socket.Socket)
	s.clientsMu.Unlock()

	for _, client := range clients {
		client.Disconnect(true)
	}
	s.io.Close(nil)
	s.logger.Info("Server closed.", "peers", len(clients))
	return nil
}
