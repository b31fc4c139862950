// Package api defines the public contracts of plugin-bus: the module
// capability, the method table consumed by inbound dispatch, and the bridge
// transport with its two wire descriptor shapes.
package api

import (
	"github.com/srediag/plugin-bus/pkg/event"
	"github.com/srediag/plugin-bus/pkg/lifecycle"
)

// Module is the capability a type must provide to be registered on the bus.
// Events, API, and Lifecycle may each return nil when the module does not
// carry that surface.
type Module interface {
	// SerializableKey is the module's identity on the wire. It must be
	// non-empty and unique among currently registered modules.
	SerializableKey() string
	// Events lists the module's declared domain events, or nil.
	Events() *event.List
	// API exposes the module's inbound method surface, or nil.
	API() MethodTable
	// Lifecycle exposes the module's transition signals, or nil.
	Lifecycle() *lifecycle.Signals
}

// MethodTable resolves method names for inbound dispatch.
type MethodTable interface {
	Method(name string) (Method, bool)
}

// Method is one dispatchable entry of a MethodTable. Arity gates dispatch:
// the bus never invokes a method with a mismatched argument count.
type Method interface {
	Arity() int
	Invoke(args []any) error
}
