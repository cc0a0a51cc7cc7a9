// Package app wires connstate components together with fx.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"connstate/internal/config"
	"connstate/internal/host"
	"connstate/internal/logging"
	"connstate/internal/metrics"
	"connstate/internal/monitor"
	"connstate/internal/netpath"
	"connstate/internal/plugin"
	"connstate/internal/server"
)

var logger = logging.Logger("app")

// Module provides every component derived from a config.Config. A
// netpath.Source must be supplied separately (see SystemSource).
var Module = fx.Options(
	fx.Provide(
		metrics.New,
		newMonitor,
		newBus,
		newPlugin,
		newServer,
	),
	fx.Invoke(registerServer),
)

// New builds the daemon application for cfg.
func New(cfg config.Config, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(SystemSource),
		Module,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logging.Logger("fx").Slog()}
		}),
	}
	return fx.New(append(opts, extra...)...)
}

// SystemSource builds the configured OS notification source.
func SystemSource(cfg config.Config) (netpath.Source, error) {
	inspector := netpath.NewInspector()
	inspector.SysRoot = cfg.SysfsRoot
	src, err := netpath.New(cfg.SourceKind(), inspector, cfg.PollInterval(), clock.New())
	if err != nil {
		return nil, fmt.Errorf("path source: %w", err)
	}
	return src, nil
}

func newMonitor(cfg config.Config, src netpath.Source, col *metrics.Collector) *monitor.ConnectivityMonitor {
	return monitor.New(src, monitor.WithProbeTimeout(cfg.ProbeTimeout()), monitor.WithMetrics(col))
}

func newBus(lc fx.Lifecycle, cfg config.Config) *host.Bus {
	bus := host.NewBus(cfg.SignalBuffer)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return bus.Close() }})
	return bus
}

// newPlugin starts the monitor as soon as the plugin is constructed, and
// registers Close so the subscription is released on every teardown path.
func newPlugin(lc fx.Lifecycle, cfg config.Config, mon *monitor.ConnectivityMonitor, bus *host.Bus, col *metrics.Collector) *plugin.Plugin {
	p := plugin.New(mon, bus,
		plugin.WithChangedSignal(cfg.EmitChangedSignal),
		plugin.WithMetrics(col))
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return p.Close() }})
	return p
}

func newServer(cfg config.Config, p *plugin.Plugin, mon *monitor.ConnectivityMonitor, bus *host.Bus, col *metrics.Collector) *server.Server {
	return server.New(server.Options{
		Addr:         cfg.ListenAddr,
		State:        p,
		Interfaces:   mon,
		Signals:      bus,
		Metrics:      col.Handler(),
		WriteTimeout: cfg.WriteTimeout(),
	})
}

func registerServer(lc fx.Lifecycle, cfg config.Config, srv *server.Server, p *plugin.Plugin) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := p.StartErr(); err != nil {
				logger.Warn("serving without live connectivity updates", "error", err)
			}
			ln, err := net.Listen("tcp", cfg.ListenAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
			}
			go func() {
				if err := srv.Serve(ln); err != nil {
					logger.Error("server stopped", "error", err)
				}
			}()
			logger.Info("connstate listening", "addr", ln.Addr().String())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("server shutdown: %w", err)
			}
			return nil
		},
	})
}
