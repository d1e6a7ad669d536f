package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/netbus"
	"github.com/specialistvlad/netbus/internal/config"
	"github.com/specialistvlad/netbus/internal/ctxlog"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	logFile io.Closer
	config  *Config
	model   *config.Model

	promRegistry *prometheus.Registry
	metrics      *netbus.Metrics
	httpServer   *http.Server

	// listening, when set, receives the bound address of the bus server.
	listening chan<- net.Addr
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and metrics registry.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	logW, logFile := logWriter(outW, appConfig.LogFile)
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	reg := prometheus.NewRegistry()
	return &App{
		outW:         outW,
		logger:       logger,
		logFile:      logFile,
		config:       appConfig,
		model:        model,
		promRegistry: reg,
		metrics:      netbus.NewMetrics(reg),
	}
}

// Model returns the loaded configuration. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

// nodeOptions builds the bus options shared by both modes.
func (a *App) nodeOptions() ([]netbus.Option, error) {
	codec, err := netbus.CodecByName(a.model.Codec)
	if err != nil {
		return nil, err
	}
	return []netbus.Option{
		netbus.WithLogger(a.logger),
		netbus.WithVerbose(a.model.Verbose),
		netbus.WithCodec(codec),
		netbus.WithInvokeTimeout(a.model.InvokeTimeout),
		netbus.WithMetrics(a.metrics),
	}, nil
}
