package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/specialistvlad/netbus/internal/ctxlog"
	"github.com/specialistvlad/netbus/internal/registry"
)

// Handler is a listener for one handle. Its return value is only used to
// report failure; dispatch is fire-and-forget.
type Handler[A any] func(ctx context.Context, args A) error

// Identifier is the capability returned by Listen and ListenPost. It is a
// plain lookup key resolved through the dispatcher that issued it, so holding
// one keeps nothing alive. Owner names that dispatcher; any other dispatcher
// ignores the identifier.
type Identifier[K comparable] struct {
	Owner  uint64
	Table  registry.Table
	Handle K
	ID     registry.ID
}

// owners numbers dispatchers so identifiers cannot cross between them.
var owners atomic.Uint64

// IsZero reports whether the identifier was never issued.
func (id Identifier[K]) IsZero() bool {
	return id.ID == 0
}

// Dispatcher fans a handle out to its primary handlers, then its post
// handlers, each in registration order.
type Dispatcher[K comparable, A any] struct {
	owner    uint64
	opts     options
	handlers *registry.Registry[K, Handler[A]]
}

// New creates a dispatcher with its own registry.
func New[K comparable, A any](opts ...Option) *Dispatcher[K, A] {
	o := options{name: "dispatcher"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Dispatcher[K, A]{
		owner:    owners.Add(1),
		opts:     o,
		handlers: registry.New[K, Handler[A]](),
	}
}

// Listen registers h as a primary handler for handle.
func (d *Dispatcher[K, A]) Listen(handle K, h Handler[A]) Identifier[K] {
	return d.register(registry.Primary, handle, h)
}

// ListenPost registers h as a post handler for handle.
func (d *Dispatcher[K, A]) ListenPost(handle K, h Handler[A]) Identifier[K] {
	return d.register(registry.Post, handle, h)
}

func (d *Dispatcher[K, A]) register(t registry.Table, handle K, h Handler[A]) Identifier[K] {
	if h == nil {
		panic(fmt.Sprintf("%s: nil handler for %v", d.opts.name, handle))
	}
	id := d.handlers.Register(t, handle, h)
	if d.opts.verbose {
		d.logger(context.Background()).Info("Handler registered.", "dispatcher", d.opts.name, "handle", handle, "table", t.String(), "id", uint64(id))
	}
	return Identifier[K]{Owner: d.owner, Table: t, Handle: handle, ID: id}
}

// Unbind removes the registration behind id. It reports whether the
// registration still existed; calling it again returns false.
func (d *Dispatcher[K, A]) Unbind(id Identifier[K]) bool {
	if id.Owner != d.owner {
		if !id.IsZero() {
			d.logger(context.Background()).Warn("Ignoring identifier issued by another dispatcher.", "dispatcher", d.opts.name, "handle", id.Handle, "id", uint64(id.ID))
		}
		return false
	}
	removed := d.handlers.Unregister(id.Table, id.Handle, id.ID)
	if d.opts.verbose {
		d.logger(context.Background()).Info("Handler unbound.", "dispatcher", d.opts.name, "handle", id.Handle, "table", id.Table.String(), "id", uint64(id.ID), "removed", removed)
	}
	return removed
}

// Dispatch invokes every handler of handle with args. Both tables are
// snapshotted before the first handler runs. A failing or panicking handler
// does not stop the chain; all failures are logged and returned joined.
// A handle with no handlers is a no-op.
func (d *Dispatcher[K, A]) Dispatch(ctx context.Context, handle K, args A) error {
	primary := d.handlers.Handlers(registry.Primary, handle)
	post := d.handlers.Handlers(registry.Post, handle)

	logger := d.logger(ctx)
	if d.opts.verbose {
		logger.Info("Dispatching.", "dispatcher", d.opts.name, "handle", handle, "primary", len(primary), "post", len(post))
	}

	var errs []error
	errs = d.run(ctx, logger, handle, registry.Primary, primary, args, errs)
	errs = d.run(ctx, logger, handle, registry.Post, post, args, errs)
	return errors.Join(errs...)
}

func (d *Dispatcher[K, A]) run(ctx context.Context, logger *slog.Logger, handle K, t registry.Table, hs []Handler[A], args A, errs []error) []error {
	for i, h := range hs {
		err := invoke(ctx, h, args)
		if err == nil {
			continue
		}
		herr := &HandlerError{Handle: fmt.Sprint(handle), Table: t, Position: i, Err: err}
		logger.Warn("Handler failed.", "dispatcher", d.opts.name, "handle", handle, "table", t.String(), "position", i, "error", err)
		if d.opts.onFailure != nil {
			d.opts.onFailure(herr)
		}
		errs = append(errs, herr)
	}
	return errs
}

func invoke[A any](ctx context.Context, h Handler[A], args A) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return h(ctx, args)
}

// Count returns the number of handlers registered for handle in table t.
func (d *Dispatcher[K, A]) Count(t registry.Table, handle K) int {
	return d.handlers.Count(t, handle)
}

// Len returns the number of live registrations.
func (d *Dispatcher[K, A]) Len() int {
	return d.handlers.Len()
}

func (d *Dispatcher[K, A]) logger(ctx context.Context) *slog.Logger {
	return ctxlog.Or(ctx, d.opts.logger)
}
