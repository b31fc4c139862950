// Package adapter integrates the bus with external observability systems:
// prometheus counters, OpenTelemetry meters/tracers, health endpoints, and an
// audit log. Every adapter is a bus.Observer; compose them with
// bus.MultiObserver.
package adapter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/plugin-bus/api"
	"github.com/srediag/plugin-bus/pkg/bus"
)

// Metrics counts bus activity with prometheus.
type Metrics struct {
	published  prometheus.Counter
	skipped    prometheus.Counter
	dispatched prometheus.Counter
	failed     prometheus.Counter
	dropped    *prometheus.CounterVec
}

// NewMetrics creates and registers the bus counters. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugin_bus_events_published_total",
			Help: "Outbound events delivered to the bridge.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugin_bus_publishes_skipped_total",
			Help: "Outbound events skipped because no bridge was attached.",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugin_bus_calls_dispatched_total",
			Help: "Inbound calls invoked successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugin_bus_calls_failed_total",
			Help: "Inbound calls whose method returned an error.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plugin_bus_calls_dropped_total",
			Help: "Inbound calls dropped before invocation.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.published, m.skipped, m.dispatched, m.failed, m.dropped)
	return m
}

func (m *Metrics) EventPublished(api.OutboundEvent) { m.published.Inc() }
func (m *Metrics) PublishSkipped(api.OutboundEvent) { m.skipped.Inc() }
func (m *Metrics) CallDispatched(api.InboundCall)   { m.dispatched.Inc() }
func (m *Metrics) CallFailed(api.InboundCall, error) {
	m.failed.Inc()
}

func (m *Metrics) CallDropped(_ api.InboundCall, reason bus.DropReason) {
	m.dropped.WithLabelValues(string(reason)).Inc()
}
