// Package metrics exposes Prometheus instrumentation for the connectivity
// monitor and the signal facade.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "connstate"

// Collector groups the connstate metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	Notifications prometheus.Counter
	Transitions   prometheus.Counter
	Suppressed    prometheus.Counter
	ProbeFailures prometheus.Counter
	Signals       *prometheus.CounterVec
	Active        prometheus.Gauge
	Type          prometheus.Gauge
}

// New registers all metrics on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Raw path notifications received from the OS source.",
		}),
		Transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Notifications that changed the connection snapshot.",
		}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_total",
			Help:      "Notifications dropped because the snapshot did not change.",
		}),
		ProbeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_failures_total",
			Help:      "Synchronous state probes that failed or timed out.",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals emitted to the host, by name.",
		}, []string{"signal"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_active",
			Help:      "1 when the last snapshot reported a usable path.",
		}),
		Type: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_type",
			Help:      "Connection type enum value of the last snapshot.",
		}),
	}
	c.registry.MustRegister(
		c.Notifications, c.Transitions, c.Suppressed, c.ProbeFailures,
		c.Signals, c.Active, c.Type,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveSnapshot records the published connection state.
func (c *Collector) ObserveSnapshot(typ int, active bool) {
	if c == nil {
		return
	}
	c.Type.Set(float64(typ))
	if active {
		c.Active.Set(1)
	} else {
		c.Active.Set(0)
	}
}

// IncNotification counts a raw notification; changed tells whether it
// produced a transition.
func (c *Collector) IncNotification(changed bool) {
	if c == nil {
		return
	}
	c.Notifications.Inc()
	if changed {
		c.Transitions.Inc()
	} else {
		c.Suppressed.Inc()
	}
}

// IncProbeFailure counts a failed probe.
func (c *Collector) IncProbeFailure() {
	if c == nil {
		return
	}
	c.ProbeFailures.Inc()
}

// IncSignal counts an emitted signal.
func (c *Collector) IncSignal(name string) {
	if c == nil {
		return
	}
	c.Signals.WithLabelValues(name).Inc()
}
