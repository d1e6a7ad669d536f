package router

import (
	"log/slog"
	"time"

	"github.com/specialistvlad/netbus/internal/metrics"
	"github.com/specialistvlad/netbus/internal/wire"
)

// DefaultInvokeTimeout bounds Invoke when no timeout option is given.
const DefaultInvokeTimeout = 10 * time.Second

type options struct {
	logger        *slog.Logger
	verbose       bool
	codec         wire.Codec
	invokeTimeout time.Duration
	metrics       *metrics.Metrics
}

// Option configures a Router.
type Option func(*options)

// WithLogger sets the diagnostic sink.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithVerbose traces every registration, send and receipt at info level.
func WithVerbose(verbose bool) Option {
	return func(o *options) {
		o.verbose = verbose
	}
}

// WithCodec sets the frame codec. Both sides must agree on it.
func WithCodec(c wire.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithInvokeTimeout bounds every Invoke. Zero leaves only the caller's
// context in charge.
func WithInvokeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.invokeTimeout = d
	}
}

// WithMetrics records router activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
