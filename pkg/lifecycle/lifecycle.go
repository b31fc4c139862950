// Package lifecycle provides the four module transition signals
// (willLoad/didLoad/willUnload/didUnload) and a controller that enforces the
// legal transition order, firing each signal exactly once per transition.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/srediag/plugin-bus/pkg/event"
)

// Transition signal names as they appear on the wire.
const (
	EventWillLoad   = "willLoad"
	EventDidLoad    = "didLoad"
	EventWillUnload = "willUnload"
	EventDidUnload  = "didUnload"
)

// State of a controlled module.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoaded   State = "loaded"
)

// ErrInvalidTransition is returned when Load/Unload is called in the wrong state.
var ErrInvalidTransition = errors.New("lifecycle: invalid transition")

// Signals bundles the four transition events. The firing key stays with the
// Controller; holders of a Signals value can only subscribe.
type Signals struct {
	willLoad   *event.Event
	didLoad    *event.Event
	willUnload *event.Event
	didUnload  *event.Event
}

func newSignals(dk event.DispatchKey) *Signals {
	return &Signals{
		willLoad:   event.New(EventWillLoad, dk),
		didLoad:    event.New(EventDidLoad, dk),
		willUnload: event.New(EventWillUnload, dk),
		didUnload:  event.New(EventDidUnload, dk),
	}
}

func (s *Signals) WillLoad() *event.Event   { return s.willLoad }
func (s *Signals) DidLoad() *event.Event    { return s.didLoad }
func (s *Signals) WillUnload() *event.Event { return s.willUnload }
func (s *Signals) DidUnload() *event.Event  { return s.didUnload }

// All returns the signals in wire order.
func (s *Signals) All() []*event.Event {
	return []*event.Event{s.willLoad, s.didLoad, s.willUnload, s.didUnload}
}

// Controller owns a Signals set and drives it through load/unload
// transitions.
type Controller struct {
	mu      sync.Mutex
	state   State
	dk      event.DispatchKey
	signals *Signals
}

// NewController returns a controller in the unloaded state.
func NewController() *Controller {
	dk := event.NewDispatchKey()
	return &Controller{
		state:   StateUnloaded,
		dk:      dk,
		signals: newSignals(dk),
	}
}

// Signals returns the subscribe-only view of the controller's signals.
func (c *Controller) Signals() *Signals { return c.signals }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Load moves unloaded→loaded, firing willLoad then didLoad.
func (c *Controller) Load() error {
	return c.transition(StateUnloaded, StateLoaded, "load")
}

// Unload moves loaded→unloaded, firing willUnload then didUnload.
func (c *Controller) Unload() error {
	return c.transition(StateLoaded, StateUnloaded, "unload")
}

// Reload is an Unload followed by a Load.
func (c *Controller) Reload() error {
	if err := c.Unload(); err != nil {
		return err
	}
	return c.Load()
}

func (c *Controller) transition(from, to State, name string) error {
	c.mu.Lock()
	if c.state != from {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, name, state)
	}
	c.state = to
	c.mu.Unlock()

	var will, did *event.Event
	if to == StateLoaded {
		will, did = c.signals.willLoad, c.signals.didLoad
	} else {
		will, did = c.signals.willUnload, c.signals.didUnload
	}
	// The controller holds the key, so neither fire can fail.
	_ = will.Fire(nil, c.dk)
	_ = did.Fire(nil, c.dk)
	return nil
}
