// Package plugin adapts a ConnectivityMonitor to a host signal system.
//
// The Plugin owns its monitor for its whole lifetime. It re-emits monitor
// transitions as named signals and answers state queries with the
// host-facing record form.
package plugin

import (
	"errors"
	"sync"

	"connstate/internal/logging"
	"connstate/internal/metrics"
	"connstate/internal/models"
	"connstate/internal/monitor"
)

var logger = logging.Logger("plugin")

// Signal names emitted by the Plugin.
const (
	SignalConnectionEstablished = "connection_established"
	SignalConnectionLost        = "connection_lost"
	SignalConnectionChanged     = "connection_changed"
)

// Emitter delivers named signals to the host. Established and lost carry
// no arguments; changed carries the models.Record of the new snapshot.
type Emitter interface {
	EmitSignal(name string, args ...any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(name string, args ...any)

// EmitSignal implements Emitter.
func (f EmitterFunc) EmitSignal(name string, args ...any) { f(name, args...) }

// Monitor is the part of monitor.ConnectivityMonitor the Plugin drives.
type Monitor interface {
	Start(onChange func(models.ConnectionInfo)) error
	Stop()
	Current() models.ConnectionInfo
}

var _ Monitor = (*monitor.ConnectivityMonitor)(nil)

// Option configures a Plugin.
type Option func(*Plugin)

// WithChangedSignal toggles the generic connection_changed signal.
func WithChangedSignal(enabled bool) Option {
	return func(p *Plugin) { p.emitChanged = enabled }
}

// WithMetrics counts emitted signals.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Plugin) { p.metrics = c }
}

// Plugin is the host-facing facade.
type Plugin struct {
	monitor     Monitor
	emitter     Emitter
	emitChanged bool
	metrics     *metrics.Collector

	mu       sync.Mutex
	active   bool
	last     *models.ConnectionInfo
	startErr error
	closed   bool
}

// New creates the facade and starts its monitor. A subscription failure is
// logged and leaves the facade reporting Unknown/inactive; it never panics.
func New(mon Monitor, emitter Emitter, opts ...Option) *Plugin {
	p := &Plugin{
		monitor:     mon,
		emitter:     emitter,
		emitChanged: true,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := mon.Start(p.onChange); err != nil {
		p.mu.Lock()
		p.startErr = err
		p.mu.Unlock()
		if errors.Is(err, monitor.ErrSubscriptionFailed) {
			logger.Warn("connectivity unavailable, reporting unknown state", "error", err)
		} else {
			logger.Error("connectivity monitor did not start", "error", err)
		}
	}
	return p
}

// Signals lists the signal names the Plugin may emit.
func (p *Plugin) Signals() []string {
	names := []string{SignalConnectionEstablished, SignalConnectionLost}
	if p.emitChanged {
		names = append(names, SignalConnectionChanged)
	}
	return names
}

// GetConnectionState returns the current snapshot as a host record: the
// last snapshot signalled to the host, or the monitor's probe before that.
func (p *Plugin) GetConnectionState() models.Record {
	p.mu.Lock()
	failed := p.startErr != nil
	last := p.last
	p.mu.Unlock()

	switch {
	case failed:
		return models.ConnectionInfo{}.Record()
	case last != nil:
		return last.Record()
	default:
		return p.monitor.Current().Record()
	}
}

// StartErr returns the error New got from the monitor, if any.
func (p *Plugin) StartErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startErr
}

// Close stops the monitor. It is safe to call more than once.
func (p *Plugin) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.monitor.Stop()
	return nil
}

func (p *Plugin) onChange(info models.ConnectionInfo) {
	p.mu.Lock()
	wasActive := p.active
	p.active = info.IsActive
	p.last = &info
	p.mu.Unlock()

	if p.emitChanged {
		p.emit(SignalConnectionChanged, info.Record())
	}
	switch {
	case info.IsActive && !wasActive:
		p.emit(SignalConnectionEstablished)
	case !info.IsActive && wasActive:
		p.emit(SignalConnectionLost)
	}
}

func (p *Plugin) emit(name string, args ...any) {
	p.metrics.IncSignal(name)
	if p.emitter == nil {
		return
	}
	p.emitter.EmitSignal(name, args...)
}
