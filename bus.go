package netbus

import (
	"context"
	"fmt"

	"github.com/specialistvlad/netbus/internal/dispatch"
)

// Identifier is returned by every listen call and consumed by Unbind on the
// Bus or Node that issued it.
type Identifier = dispatch.Identifier[string]

const localSide = "local"

// Bus dispatches events in process.
type Bus struct {
	d       *dispatch.Dispatcher[string, any]
	metrics *Metrics
}

// NewBus creates an empty bus. Codec and invoke timeout options are ignored.
func NewBus(opts ...Option) *Bus {
	c := newConfig(opts)
	return &Bus{
		d: dispatch.New[string, any](
			dispatch.WithName(localSide),
			dispatch.WithLogger(c.logger),
			dispatch.WithVerbose(c.verbose),
			dispatch.WithFailureHook(func(herr *dispatch.HandlerError) {
				c.metrics.HandlerFailed(localSide, herr.Handle)
			}),
		),
		metrics: c.metrics,
	}
}

// Listen registers h as a primary listener of ev.
func Listen[T any](b *Bus, ev Event[T], h func(ctx context.Context, args T) error) Identifier {
	return b.d.Listen(ev.name, typed(ev, h))
}

// ListenPost registers h as a post listener of ev. Post listeners run after
// every primary listener.
func ListenPost[T any](b *Bus, ev Event[T], h func(ctx context.Context, args T) error) Identifier {
	return b.d.ListenPost(ev.name, typed(ev, h))
}

func typed[T any](ev Event[T], h func(context.Context, T) error) dispatch.Handler[any] {
	if h == nil {
		panic(fmt.Sprintf("netbus: nil handler for %q", ev.name))
	}
	return func(ctx context.Context, args any) error {
		// A nil interface argument is the zero value of an interface-typed T.
		if args == nil {
			var zero T
			return h(ctx, zero)
		}
		v, ok := args.(T)
		if !ok {
			return fmt.Errorf("event %q: unexpected argument type %T", ev.name, args)
		}
		return h(ctx, v)
	}
}

// Dispatch runs every listener of ev with args: primary listeners, then post
// listeners, each in registration order. Listener failures do not stop the
// chain; they are returned joined. An event nobody listens to is a no-op.
func Dispatch[T any](ctx context.Context, b *Bus, ev Event[T], args T) error {
	b.metrics.Dispatched(localSide, ev.name)
	return b.d.Dispatch(ctx, ev.name, args)
}

// Unbind removes the listener behind id. It reports whether the listener was
// still registered; repeated calls return false.
func (b *Bus) Unbind(id Identifier) bool {
	return b.d.Unbind(id)
}

// Listeners returns the number of live listeners on the bus.
func (b *Bus) Listeners() int {
	return b.d.Len()
}
