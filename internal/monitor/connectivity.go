package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"connstate/internal/logging"
	"connstate/internal/metrics"
	"connstate/internal/models"
	"connstate/internal/netpath"
)

var logger = logging.Logger("monitor")

// DefaultProbeTimeout bounds the synchronous probe performed by Current.
const DefaultProbeTimeout = 2 * time.Second

var (
	// ErrAlreadyStarted is returned by Start on a started monitor.
	ErrAlreadyStarted = errors.New("monitor: already started")
	// ErrSubscriptionFailed wraps the source error when Start cannot subscribe.
	ErrSubscriptionFailed = errors.New("monitor: path subscription failed")
)

// ConnectivityMonitor turns raw path notifications into connection
// transitions. onChange runs on the source's delivery goroutine, once per
// distinct snapshot, never concurrently with itself.
type ConnectivityMonitor struct {
	source       netpath.Source
	probeTimeout time.Duration
	metrics      *metrics.Collector

	lifecycleMu sync.Mutex
	sub         netpath.Subscription

	deliverMu sync.Mutex
	onChange  func(models.ConnectionInfo)

	mu        sync.RWMutex
	started   bool
	latest    *models.ConnectionInfo
	probed    *models.ConnectionInfo
	available []models.ConnectionInfo

	probeMu sync.Mutex
}

// Option configures a ConnectivityMonitor.
type Option func(*ConnectivityMonitor)

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *ConnectivityMonitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *ConnectivityMonitor) { m.metrics = c }
}

// New creates a stopped monitor reading from source.
func New(source netpath.Source, opts ...Option) *ConnectivityMonitor {
	m := &ConnectivityMonitor{
		source:       source,
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the source. A nil onChange is allowed.
func (m *ConnectivityMonitor) Start(onChange func(models.ConnectionInfo)) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.sub != nil {
		return ErrAlreadyStarted
	}

	m.deliverMu.Lock()
	m.onChange = onChange
	m.deliverMu.Unlock()

	m.mu.Lock()
	m.started = true
	m.mu.Unlock()

	sub, err := m.source.Subscribe(m.handle)
	if err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrSubscriptionFailed, err)
	}
	m.sub = sub

	logger.Info("connectivity monitor started")
	return nil
}

// Stop cancels the subscription. It is a no-op when not started.
func (m *ConnectivityMonitor) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.sub == nil {
		return
	}

	m.mu.Lock()
	m.started = false
	m.mu.Unlock()

	m.sub.Cancel()
	m.sub = nil
	logger.Info("connectivity monitor stopped")
}

// Started reports whether the monitor holds a live subscription.
func (m *ConnectivityMonitor) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// Current returns the last emitted snapshot. Before the first emission it
// probes the source once, bounded by the probe timeout; a failed probe
// yields the zero snapshot.
func (m *ConnectivityMonitor) Current() models.ConnectionInfo {
	if info, ok := m.cached(); ok {
		return info
	}

	m.probeMu.Lock()
	defer m.probeMu.Unlock()

	if info, ok := m.cached(); ok {
		return info
	}

	info := m.probe()
	m.mu.Lock()
	m.probed = &info
	if m.latest != nil {
		info = *m.latest
	}
	m.mu.Unlock()
	return info
}

// Available returns one snapshot per usable interface of the latest path.
func (m *ConnectivityMonitor) Available() []models.ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.available) == 0 {
		return nil
	}
	out := make([]models.ConnectionInfo, len(m.available))
	copy(out, m.available)
	return out
}

func (m *ConnectivityMonitor) cached() (models.ConnectionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.latest != nil {
		return *m.latest, true
	}
	if m.probed != nil {
		return *m.probed, true
	}
	return models.ConnectionInfo{}, false
}

func (m *ConnectivityMonitor) probe() models.ConnectionInfo {
	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	defer cancel()

	type result struct {
		path netpath.Path
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := m.source.Probe(ctx)
		done <- result{path: p, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			logger.Warn("connectivity probe failed", "error", res.err)
			m.metrics.IncProbeFailure()
			return models.ConnectionInfo{}
		}
		return models.FromPath(res.path)
	case <-ctx.Done():
		logger.Warn("connectivity probe timed out", "timeout", m.probeTimeout)
		m.metrics.IncProbeFailure()
		return models.ConnectionInfo{}
	}
}

func (m *ConnectivityMonitor) handle(path netpath.Path) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	info := models.FromPath(path)
	perInterface := models.PerInterface(path)

	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.available = perInterface
	changed := m.latest == nil || *m.latest != info
	if changed {
		m.latest = &info
	}
	m.mu.Unlock()

	m.metrics.IncNotification(changed)
	if !changed {
		logger.Debug("duplicate path notification suppressed", "path", path.Fingerprint())
		return
	}

	m.metrics.ObserveSnapshot(int(info.Type), info.IsActive)
	logger.Info("connection state changed",
		"type", info.Type.String(),
		"active", info.IsActive,
		"metered", info.IsMetered)

	if m.onChange != nil {
		m.onChange(info)
	}
}
