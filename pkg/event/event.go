// Package event provides named broadcast events whose firing is gated by an
// unforgeable dispatch key. Anyone may subscribe; only the key holder may fire.
package event

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/srediag/plugin-bus/internal/logging"
)

// ErrWrongDispatchKey is returned by Fire when the caller does not hold the
// event's owning dispatch key. No listener is notified in that case.
var ErrWrongDispatchKey = errors.New("event: fire requires the owning dispatch key")

var log = logging.New("event")

// DispatchKey is an opaque capability required to fire an event. Keys compare
// by identity; the zero value matches nothing.
type DispatchKey struct {
	h *keyHolder
}

// keyHolder must not be zero-sized, otherwise distinct allocations could
// share an address and keys would collide.
type keyHolder struct {
	_ [1]byte
}

// NewDispatchKey mints a fresh key. The returned value is the only way to
// fire events constructed with it.
func NewDispatchKey() DispatchKey {
	return DispatchKey{h: new(keyHolder)}
}

func (k DispatchKey) matches(other DispatchKey) bool {
	return k.h != nil && k.h == other.h
}

// Listener receives the payload of a successful fire.
type Listener func(payload any)

// Event is a named broadcast source. Listener invocation order equals
// subscription order, and a failing listener never stops the fan-out.
type Event struct {
	key      string
	dispatch DispatchKey

	mu        sync.Mutex
	listeners []*Subscription
}

// New creates an event with the given key, owned by dk.
func New(key string, dk DispatchKey) *Event {
	return &Event{key: key, dispatch: dk}
}

// Key returns the event's identity.
func (e *Event) Key() string { return e.key }

// Subscribe registers fn for every future successful fire. It takes effect
// for the next fire after it returns; a fire already in progress does not see
// the new listener.
func (e *Event) Subscribe(fn Listener) *Subscription {
	s := &Subscription{owner: e, fn: fn}
	e.mu.Lock()
	e.listeners = append(e.listeners, s)
	e.mu.Unlock()
	return s
}

// Fire notifies all current listeners with payload. It fails with
// ErrWrongDispatchKey unless dk is the key the event was created with.
func (e *Event) Fire(payload any, dk DispatchKey) error {
	if !e.dispatch.matches(dk) {
		return ErrWrongDispatchKey
	}
	e.mu.Lock()
	snapshot := make([]*Subscription, len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.Unlock()

	for _, s := range snapshot {
		s.deliver(e.key, payload)
	}
	return nil
}

func (e *Event) remove(target *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.listeners {
		if s == target {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	owner     *Event
	fn        Listener
	closed    atomic.Bool
	closeOnce sync.Once
}

// Close removes the listener. It only affects deliveries that have not
// started yet and may be called from within a listener.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.owner.remove(s)
	})
}

func (s *Subscription) deliver(key string, payload any) {
	if s.closed.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("event %q: listener panic: %v", key, r)
		}
	}()
	s.fn(payload)
}
