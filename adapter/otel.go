package adapter

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/plugin-bus/api"
	"github.com/srediag/plugin-bus/pkg/bus"
)

// Telemetry instruments bus activity with an OpenTelemetry meter and tracer.
type Telemetry struct {
	tracer trace.Tracer

	published  metric.Int64Counter
	skipped    metric.Int64Counter
	dispatched metric.Int64Counter
	dropped    metric.Int64Counter
	failed     metric.Int64Counter
}

// NewTelemetry builds the bus instruments on meter and tracer.
func NewTelemetry(meter metric.Meter, tracer trace.Tracer) (*Telemetry, error) {
	t := &Telemetry{tracer: tracer}
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			errs = append(errs, err)
		}
		return c
	}
	t.published = counter("plugin_bus.events.published", "Outbound events delivered to the bridge.")
	t.skipped = counter("plugin_bus.publishes.skipped", "Outbound events skipped without a bridge.")
	t.dispatched = counter("plugin_bus.calls.dispatched", "Inbound calls invoked successfully.")
	t.dropped = counter("plugin_bus.calls.dropped", "Inbound calls dropped before invocation.")
	t.failed = counter("plugin_bus.calls.failed", "Inbound calls whose method returned an error.")
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

func (t *Telemetry) EventPublished(api.OutboundEvent) {
	t.published.Add(context.Background(), 1)
}

func (t *Telemetry) PublishSkipped(api.OutboundEvent) {
	t.skipped.Add(context.Background(), 1)
}

func (t *Telemetry) CallDispatched(call api.InboundCall) {
	ctx := context.Background()
	_, span := t.tracer.Start(ctx, call.Module+"."+call.Method)
	span.End()
	t.dispatched.Add(ctx, 1)
}

func (t *Telemetry) CallDropped(api.InboundCall, bus.DropReason) {
	t.dropped.Add(context.Background(), 1)
}

func (t *Telemetry) CallFailed(api.InboundCall, error) {
	t.failed.Add(context.Background(), 1)
}
