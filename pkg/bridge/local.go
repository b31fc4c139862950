// Package bridge provides transports implementing api.Bridge: an in-memory
// channel bridge for tests and embedded hosts, and a TCP bridge speaking
// newline-delimited JSON.
package bridge

import (
	"github.com/srediag/plugin-bus/api"
	"github.com/srediag/plugin-bus/internal/logging"
)

// Local is an in-process bridge backed by channels. The host feeds calls in
// with Call and reads published events from Events.
type Local struct {
	calls  chan api.InboundCall
	events chan api.OutboundEvent
	log    *logging.Logger
}

// NewLocal creates a local bridge with the given channel buffer (64 when
// buffer <= 0).
func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = 64
	}
	return &Local{
		calls:  make(chan api.InboundCall, buffer),
		events: make(chan api.OutboundEvent, buffer),
		log:    logging.New("bridge/local"),
	}
}

// BroadcastSerializedEvent implements api.Bridge. A full events channel
// drops the event rather than blocking the bus's delivery loop.
func (l *Local) BroadcastSerializedEvent(ev api.OutboundEvent) {
	select {
	case l.events <- ev:
	default:
		l.log.Warnf("events channel full, dropping %s/%s", ev.Module, ev.Event)
	}
}

// Calls implements api.Bridge.
func (l *Local) Calls() <-chan api.InboundCall { return l.calls }

// Call feeds one inbound call descriptor to the bus.
func (l *Local) Call(c api.InboundCall) { l.calls <- c }

// Events exposes the published events for the host side to consume.
func (l *Local) Events() <-chan api.OutboundEvent { return l.events }

// Close shuts the inbound stream down. Consumers see the channel close.
func (l *Local) Close() { close(l.calls) }
