package netbus

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/netbus/internal/metrics"
	"github.com/specialistvlad/netbus/internal/router"
	"github.com/specialistvlad/netbus/internal/wire"
)

// Codec encodes payloads and frames.
type Codec = wire.Codec

// Built-in codecs.
var (
	JSON    Codec = wire.JSON
	MsgPack Codec = wire.MsgPack
)

// CodecByName returns the codec called name: "json" (also the empty string)
// or "msgpack".
func CodecByName(name string) (Codec, error) {
	return wire.CodecByName(name)
}

// Metrics records bus activity. Share one value between every bus and node of
// a process.
type Metrics = metrics.Metrics

// NewMetrics creates the bus collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return metrics.New(reg)
}

type config struct {
	logger        *slog.Logger
	verbose       bool
	codec         Codec
	invokeTimeout time.Duration
	metrics       *Metrics
}

func newConfig(opts []Option) config {
	c := config{
		codec:         wire.JSON,
		invokeTimeout: router.DefaultInvokeTimeout,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option configures a Bus or a Node.
type Option func(*config)

// WithLogger sets the diagnostic sink. The default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithVerbose traces every registration and dispatch at info level.
func WithVerbose(verbose bool) Option {
	return func(c *config) {
		c.verbose = verbose
	}
}

// WithCodec sets the payload codec. Both sides of a boundary must use the
// same one. The default is JSON.
func WithCodec(codec Codec) Option {
	return func(c *config) {
		c.codec = codec
	}
}

// WithInvokeTimeout bounds every Invoke made by a Node. Zero leaves only the
// caller's context in charge. The default is ten seconds.
func WithInvokeTimeout(d time.Duration) Option {
	return func(c *config) {
		c.invokeTimeout = d
	}
}

// WithMetrics records activity into m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}
