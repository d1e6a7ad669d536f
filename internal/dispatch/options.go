package dispatch

import "log/slog"

type options struct {
	name      string
	logger    *slog.Logger
	verbose   bool
	onFailure func(*HandlerError)
}

// Option configures a Dispatcher.
type Option func(*options)

// WithName sets the name used in diagnostics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the diagnostic sink. Without it the logger is taken from
// the dispatch context, falling back to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithVerbose traces every registration, unbind and dispatch at info level.
func WithVerbose(verbose bool) Option {
	return func(o *options) {
		o.verbose = verbose
	}
}

// WithFailureHook is called once for every failed handler invocation.
func WithFailureHook(fn func(*HandlerError)) Option {
	return func(o *options) {
		o.onFailure = fn
	}
}
