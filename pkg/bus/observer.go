package bus

import "github.com/srediag/plugin-bus/api"

// DropReason classifies why an inbound call was silently dropped.
type DropReason string

const (
	DropUnknownModule DropReason = "unknown_module"
	DropNoAPI         DropReason = "no_api"
	DropUnknownMethod DropReason = "unknown_method"
	DropArityMismatch DropReason = "arity_mismatch"
)

// Observer receives bus activity. Drops and skips produce no error on the
// bus itself; an observer is the supported way to add visibility. Callbacks
// run on the delivery goroutine and must not block.
type Observer interface {
	// EventPublished fires after an outbound event reached the bridge.
	EventPublished(ev api.OutboundEvent)
	// PublishSkipped fires when an event was dropped because no bridge is set.
	PublishSkipped(ev api.OutboundEvent)
	// CallDispatched fires after a method invocation returned without error.
	CallDispatched(call api.InboundCall)
	// CallDropped fires when an inbound call could not be routed.
	CallDropped(call api.InboundCall, reason DropReason)
	// CallFailed fires when an invoked method returned an error.
	CallFailed(call api.InboundCall, err error)
}

// NopObserver discards everything. Embed it to implement Observer partially.
type NopObserver struct{}

func (NopObserver) EventPublished(api.OutboundEvent)        {}
func (NopObserver) PublishSkipped(api.OutboundEvent)        {}
func (NopObserver) CallDispatched(api.InboundCall)          {}
func (NopObserver) CallDropped(api.InboundCall, DropReason) {}
func (NopObserver) CallFailed(api.InboundCall, error)       {}

type multiObserver []Observer

// MultiObserver fans bus activity out to several observers in order.
func MultiObserver(obs ...Observer) Observer {
	return multiObserver(obs)
}

func (m multiObserver) EventPublished(ev api.OutboundEvent) {
	for _, o := range m {
		o.EventPublished(ev)
	}
}

func (m multiObserver) PublishSkipped(ev api.OutboundEvent) {
	for _, o := range m {
		o.PublishSkipped(ev)
	}
}

func (m multiObserver) CallDispatched(call api.InboundCall) {
	for _, o := range m {
		o.CallDispatched(call)
	}
}

func (m multiObserver) CallDropped(call api.InboundCall, reason DropReason) {
	for _, o := range m {
		o.CallDropped(call, reason)
	}
}

func (m multiObserver) CallFailed(call api.InboundCall, err error) {
	for _, o := range m {
		o.CallFailed(call, err)
	}
}
