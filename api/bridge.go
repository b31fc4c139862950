package api

// OutboundEvent is the wire descriptor for an event leaving the bus.
type OutboundEvent struct {
	Module string `json:"module"`
	Event  string `json:"event"`
	Data   any    `json:"data"`
}

// InboundCall is the wire descriptor for a method invocation arriving from
// the host. Data holds one plain JSON value per positional argument.
type InboundCall struct {
	Module string `json:"module"`
	Method string `json:"method"`
	Data   []any  `json:"data"`
}

// Bridge is the transport a bus publishes through and consumes calls from.
// It is a pure conduit: payload contents are opaque to it. A bus has at most
// one active bridge at a time.
type Bridge interface {
	// BroadcastSerializedEvent publishes an event descriptor outward.
	BroadcastSerializedEvent(ev OutboundEvent)
	// Calls is the stream of inbound call descriptors. The channel closes
	// when the bridge shuts down.
	Calls() <-chan InboundCall
}
