package event

import (
	"errors"
	"fmt"
)

// ErrDuplicateEventKey is returned by NewList when two events share a key.
var ErrDuplicateEventKey = errors.New("event: duplicate event key in list")

// List is the ordered set of events a module declares. The list identity is
// immutable after construction; individual events remain live.
type List struct {
	events []*Event
}

// NewList builds a list, rejecting duplicate event keys.
func NewList(evs ...*Event) (*List, error) {
	seen := make(map[string]struct{}, len(evs))
	for _, ev := range evs {
		if _, dup := seen[ev.Key()]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEventKey, ev.Key())
		}
		seen[ev.Key()] = struct{}{}
	}
	list := make([]*Event, len(evs))
	copy(list, evs)
	return &List{events: list}, nil
}

// MustList is NewList, panicking on duplicate keys.
func MustList(evs ...*Event) *List {
	l, err := NewList(evs...)
	if err != nil {
		panic(err)
	}
	return l
}

// All returns the events in declaration order.
func (l *List) All() []*Event {
	out := make([]*Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of declared events.
func (l *List) Len() int { return len(l.events) }
