package socketio

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/specialistvlad/netbus/internal/transport"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultConnectTimeout bounds Dial when ClientConfig leaves it unset.
const DefaultConnectTimeout = 15 * time.Second

// ClientConfig describes the server to dial.
type ClientConfig struct {
	URL                string
	Namespace          string
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
}

// Client is the client end of both channels. Its only peer is the server.
type Client struct {
	*core
	io *socket.Socket

	selfMu sync.RWMutex
	self   transport.Peer
}

var _ transport.Endpoint = (*Client)(nil)

// Dial connects to a socket.io server and waits for the connection, the
// connect timeout, or ctx, whichever comes first.
func Dial(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("transport", "socketio", "side", "client", "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "/"
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	c := &Client{core: newCore(logger), io: io}

	// The channel listeners go in before Connect so no early frame is lost.
	reply := func(event string, args ...any) {
		io.Emit(event, args...)
	}
	io.On(types.EventName(transport.EventChannelName), func(args ...any) {
		c.onEvent(transport.Server, args)
	})
	io.On(types.EventName(transport.FunctionChannelName), func(args ...any) {
		c.onFunction(transport.Server, reply, args)
	})
	io.On(types.EventName("disconnect"), func(reason ...any) {
		c.failPeer(transport.Server, fmt.Errorf("%w: server disconnected", transport.ErrClosed))
		logger.Info("Disconnected.", "reason", fmt.Sprint(reason...))
	})

	// A reconnect hands out a new socket id, so every connect refreshes it.
	connectChan := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		c.onConnect(transport.Peer(io.Id()))
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = errors.New("unknown connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", errs[0])
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	logger.Debug("Initiating connection...", "namespace", namespace)
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		c.Close()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		c.Close()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}

	logger.Info("Successfully connected", "namespace", namespace, "peer", c.Self())
	return c, nil
}

// onConnect records the socket id of the current connection.
func (c *Client) onConnect(id transport.Peer) {
	c.selfMu.Lock()
	previous := c.self
	c.self = id
	c.selfMu.Unlock()
	if previous != "" && previous != id {
		c.logger.Info("Reconnected with a new socket id.", "peer", id, "previous", previous)
	}
}

// Self returns the socket id the server currently knows this client by.
func (c *Client) Self() transport.Peer {
	c.selfMu.RLock()
	defer c.selfMu.RUnlock()
	return c.self
}

// Events returns the event channel.
func (c *Client) Events() transport.EventChannel { return c }

// Calls returns the call channel.
func (c *Client) Calls() transport.CallChannel { return c }

func (c *Client) check(to transport.Peer) error {
	if c.closed() {
		return transport.ErrClosed
	}
	if to != transport.Server && to != "" {
		return fmt.Errorf("%w: %q", transport.ErrUnknownPeer, to)
	}
	return nil
}

// Send implements transport.EventChannel. The only addressable peer is the
// server.
func (c *Client) Send(ctx context.Context, to transport.Peer, frame []byte) error {
	if err := c.check(to); err != nil {
		return err
	}
	return c.Broadcast(ctx, frame)
}

// Broadcast implements transport.EventChannel.
func (c *Client) Broadcast(ctx context.Context, frame []byte) error {
	if c.closed() {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.io.Emit(transport.EventChannelName, encodeFrame(frame))
	return nil
}

// Call implements transport.CallChannel.
func (c *Client) Call(ctx context.Context, to transport.Peer, frame []byte) ([]byte, error) {
	if err := c.check(to); err != nil {
		return nil, err
	}
	return c.call(ctx, transport.Server, func(event string, args ...any) {
		c.io.Emit(event, args...)
	}, frame)
}

// Close disconnects from the server.
func (c *Client) Close() error {
	if c.closed() {
		return nil
	}
	c.shutdown()
	c.io.Disconnect()
	c.logger.Debug("Disconnected socket client.")
	return nil
}
