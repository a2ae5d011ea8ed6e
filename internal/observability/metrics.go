// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pce"

// Metrics holds the dispatch metrics of the plugin host. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	EventsDispatched *prometheus.CounterVec
	Interceptions    *prometheus.CounterVec
	PluginFailures   *prometheus.CounterVec
	AttachedPlugins  prometheus.Gauge
	DispatchDuration *prometheus.HistogramVec
}

// NewMetrics creates the plugin host metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dispatched_total",
				Help:      "Total number of events dispatched to plugins by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		Interceptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_interceptions_total",
				Help:      "Total number of events intercepted by plugin and kind",
			},
			[]string{"plugin", "kind"},
		),
		PluginFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_failures_total",
				Help:      "Total number of contained plugin failures by plugin and code",
			},
			[]string{"plugin", "code"},
		),
		AttachedPlugins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "attached_plugins",
				Help:      "Number of plugin instances attached to the editor",
			},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent dispatching one event to all plugins by kind",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.EventsDispatched,
		m.Interceptions,
		m.PluginFailures,
		m.AttachedPlugins,
		m.DispatchDuration,
	)
	return m
}

// RecordDispatch records one dispatched event. plugin is the intercepting
// plugin, or "" if the event was not intercepted.
func (m *Metrics) RecordDispatch(kind, plugin string, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "continued"
	if plugin != "" {
		outcome = "intercepted"
		m.Interceptions.WithLabelValues(plugin, kind).Inc()
	}
	m.EventsDispatched.WithLabelValues(kind, outcome).Inc()
	m.DispatchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordFailure records a contained plugin failure.
func (m *Metrics) RecordFailure(plugin, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.PluginFailures.WithLabelValues(plugin, code).Inc()
}

// SetAttached sets the number of attached plugin instances.
func (m *Metrics) SetAttached(n int) {
	if m == nil {
		return
	}
	m.AttachedPlugins.Set(float64(n))
}
