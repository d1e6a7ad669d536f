package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/specialistvlad/netbus"
	"github.com/specialistvlad/netbus/internal/config"
	"github.com/specialistvlad/netbus/internal/ctxlog"
	"github.com/specialistvlad/netbus/internal/socketio"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the graceful shutdown of the bus server.
const shutdownTimeout = 5 * time.Second

// Run executes the process described by the loaded configuration: a bus
// server that serves until ctx ends, or a client that runs its steps and
// returns.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	if a.logFile != nil {
		defer a.logFile.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.config.HealthcheckPort > 0 {
		g.Go(func() error {
			return a.runHealthCheckServer(gctx)
		})
	}

	switch {
	case a.model.Server != nil:
		g.Go(func() error {
			return a.runServer(gctx)
		})
	case a.model.Client != nil:
		g.Go(func() error {
			// The client is done after its last step, which also ends the
			// health check server.
			defer cancel()
			return a.runClient(gctx)
		})
	}

	err := g.Wait()
	a.logger.Debug("App.Run method finished.", "error", err)
	return err
}

// anyEvent and anyFunction describe configured handles whose arguments are
// only known at run time.
func anyEvent(name string) netbus.Event[any] { return netbus.NewEvent[any](name) }

func anyFunction(name string) netbus.Function[any, any] { return netbus.NewFunction[any, any](name) }

func serverContract(cfg *config.Server) netbus.Contract {
	ops := make([]netbus.Operation, 0, len(cfg.Events)+len(cfg.Functions))
	for _, e := range cfg.Events {
		ops = append(ops, anyEvent(e.Name))
	}
	for _, f := range cfg.Functions {
		ops = append(ops, anyFunction(f.Name))
	}
	return netbus.Declare(ops...)
}

func (a *App) runServer(ctx context.Context) error {
	cfg := a.model.Server
	opts, err := a.nodeOptions()
	if err != nil {
		return err
	}

	endpoint := socketio.NewServer(a.logger)
	node := netbus.NewNode(endpoint, serverContract(cfg), opts...)
	defer node.Close()

	for _, e := range cfg.Events {
		ev, rebroadcast := anyEvent(e.Name), e.Rebroadcast
		netbus.On(node, ev, func(ctx context.Context, sender netbus.Peer, args any) error {
			a.logger.Info("Event received.", "event", ev.Name(), "sender", sender, "args", args)
			if !rebroadcast {
				return nil
			}
			return netbus.Broadcast(ctx, node, ev, args)
		})
	}
	for _, f := range cfg.Functions {
		fn, reply := anyFunction(f.Name), f.Reply
		netbus.Handle(node, fn, func(_ context.Context, sender netbus.Peer, req any) (any, error) {
			if reply == config.ReplyPeer {
				return string(sender), nil
			}
			return req, nil
		})
	}

	r := chi.NewRouter()
	r.Handle("/socket.io/*", endpoint.Handler())
	r.Get("/health", a.healthHandler)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %w", cfg.Listen, err)
	}
	httpServer := &http.Server{Handler: r}
	a.logger.Info("🚀 Bus server listening", "address", ln.Addr().String(),
		"events", len(cfg.Events), "functions", len(cfg.Functions))
	if a.listening != nil {
		a.listening <- ln.Addr()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("bus server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("🏁 Shutting down bus server...")
	node.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bus server shutdown failed: %w", err)
	}
	return nil
}

// stepResult is the line printed for every invoke step.
type stepResult struct {
	Step   int    `json:"step"`
	Handle string `json:"handle"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (a *App) runClient(ctx context.Context) error {
	cfg := a.model.Client
	opts, err := a.nodeOptions()
	if err != nil {
		return err
	}

	endpoint, err := socketio.Dial(ctx, socketio.ClientConfig{
		URL:                cfg.URL,
		Namespace:          cfg.Namespace,
		ConnectTimeout:     cfg.ConnectTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, a.logger)
	if err != nil {
		return err
	}

	ops := make([]netbus.Operation, 0, len(cfg.Listen))
	for _, name := range cfg.Listen {
		ops = append(ops, anyEvent(name))
	}
	node := netbus.NewNode(endpoint, netbus.Declare(ops...), opts...)
	defer node.Close()

	for _, name := range cfg.Listen {
		ev := anyEvent(name)
		netbus.On(node, ev, func(_ context.Context, sender netbus.Peer, args any) error {
			a.logger.Info("Event received.", "event", ev.Name(), "sender", sender, "args", args)
			return nil
		})
	}

	a.logger.Info("🚀 Running client steps...", "count", len(cfg.Steps))
	out := json.NewEncoder(a.outW)
	var errs []error
	for i, step := range cfg.Steps {
		res, err := a.runStep(ctx, node, step)
		if err != nil {
			a.logger.Error("Step failed.", "step", i, "kind", step.Kind, "handle", step.Handle, "error", err)
			errs = append(errs, fmt.Errorf("step #%d (%s %q): %w", i, step.Kind, step.Handle, err))
		}
		if step.Kind != config.StepInvoke {
			continue
		}
		line := stepResult{Step: i, Handle: step.Handle, Result: res}
		if err != nil {
			line.Error = err.Error()
		}
		if err := out.Encode(line); err != nil {
			return fmt.Errorf("failed to write step result: %w", err)
		}
	}
	a.logger.Info("🏁 Client steps finished.", "failed", len(errs))
	return errors.Join(errs...)
}

func (a *App) runStep(ctx context.Context, node *netbus.Node, step *config.Step) (any, error) {
	var args any
	if len(step.Args) > 0 {
		if err := json.Unmarshal(step.Args, &args); err != nil {
			return nil, fmt.Errorf("failed to decode arguments: %w", err)
		}
	}

	switch step.Kind {
	case config.StepEmit:
		return nil, netbus.Emit(ctx, node, netbus.Server, anyEvent(step.Handle), args)
	case config.StepBroadcast:
		return nil, netbus.Broadcast(ctx, node, anyEvent(step.Handle), args)
	case config.StepInvoke:
		return netbus.Invoke(ctx, node, netbus.Server, anyFunction(step.Handle), args)
	default:
		return nil, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}
