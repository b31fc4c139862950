// Package bus implements the serialization bus: a registry of modules whose
// lifecycle and domain events are forwarded to a bridge, and a dispatcher
// mapping the bridge's inbound calls onto module method tables.
//
// Delivery is cooperative: every outbound publish and inbound dispatch runs
// on one FIFO queue consumed by a single goroutine, so no two notifications
// are processed concurrently with respect to bus state.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Workiva/go-datastructures/queue"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/plugin-bus/api"
	"github.com/srediag/plugin-bus/internal/logging"
	"github.com/srediag/plugin-bus/pkg/event"
	"github.com/srediag/plugin-bus/pkg/serial"
)

var (
	// ErrEmptyKey rejects registration of a module without an identity.
	ErrEmptyKey = errors.New("bus: module has an empty serializable key")
	// ErrDuplicateKey rejects registration under a key already in use.
	ErrDuplicateKey = errors.New("bus: serializable key already registered")
)

// Bus is the registry and router. Construct with New; a process-wide
// instance is available through Shared.
type Bus struct {
	modules    cmap.ConcurrentMap[string, api.Module]
	deliveries *queue.Queue
	queueHint  int64
	obs        Observer
	log        *logging.Logger

	mu          sync.Mutex
	bridge      api.Bridge
	stopInbound chan struct{}
	subs        []*event.Subscription

	disposeOnce sync.Once
}

// New creates a bus and starts its delivery loop.
func New(opts ...Option) *Bus {
	b := &Bus{
		modules:   cmap.New[api.Module](),
		queueHint: 64,
		obs:       NopObserver{},
		log:       logging.New("bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.deliveries = queue.New(b.queueHint)
	go b.deliverLoop()
	return b
}

var (
	sharedOnce sync.Once
	shared     *Bus
)

// Shared returns the process-wide bus, created lazily on first use.
func Shared() *Bus {
	sharedOnce.Do(func() {
		shared = New()
	})
	return shared
}

// Register inserts m into the registry and subscribes the bus to its
// lifecycle signals and declared events. An empty or duplicate key is a
// programming error and fails immediately; nothing is partially registered.
func (b *Bus) Register(m api.Module) error {
	key := m.SerializableKey()
	if key == "" {
		return ErrEmptyKey
	}
	if !b.modules.SetIfAbsent(key, m) {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}

	var subs []*event.Subscription
	if lc := m.Lifecycle(); lc != nil {
		for _, sig := range lc.All() {
			name := sig.Key()
			subs = append(subs, sig.Subscribe(func(any) {
				// Lifecycle transitions always publish null data.
				b.publish(key, name, nil)
			}))
		}
	}
	if evs := m.Events(); evs != nil {
		for _, ev := range evs.All() {
			name := ev.Key()
			subs = append(subs, ev.Subscribe(func(payload any) {
				b.publish(key, name, serial.ToPlain(payload))
			}))
		}
	}

	b.mu.Lock()
	b.subs = append(b.subs, subs...)
	b.mu.Unlock()
	return nil
}

// MustRegister is Register, panicking on error.
func (b *Bus) MustRegister(m api.Module) {
	if err := b.Register(m); err != nil {
		panic(err)
	}
}

// Module returns the registered module for key.
func (b *Bus) Module(key string) (api.Module, bool) {
	return b.modules.Get(key)
}

// Count returns the number of registered modules.
func (b *Bus) Count() int { return b.modules.Count() }

// SetBridge attaches br, replacing any previous bridge and re-targeting the
// inbound consumer. A nil br is ignored and the current bridge is kept.
func (b *Bus) SetBridge(br api.Bridge) {
	if br == nil {
		return
	}
	b.mu.Lock()
	if b.stopInbound != nil {
		close(b.stopInbound)
	}
	stop := make(chan struct{})
	b.bridge = br
	b.stopInbound = stop
	b.mu.Unlock()
	go b.consume(br, stop)
}

// Bridge returns the current bridge, or nil when none is attached.
func (b *Bus) Bridge() api.Bridge {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bridge
}

// Reset clears the registry, closes every subscription taken during
// registration, and detaches the bridge. The bus itself stays usable.
func (b *Bus) Reset() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	if b.stopInbound != nil {
		close(b.stopInbound)
		b.stopInbound = nil
	}
	b.bridge = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	b.modules.Clear()
}

// Close resets the bus and stops its delivery loop. The bus must not be used
// afterwards.
func (b *Bus) Close() {
	b.Reset()
	b.disposeOnce.Do(func() { b.deliveries.Dispose() })
}

// Sync blocks until every delivery enqueued before the call has completed.
func (b *Bus) Sync() {
	done := make(chan struct{})
	b.enqueue(func() { close(done) })
	<-done
}

func (b *Bus) deliverLoop() {
	for {
		items, err := b.deliveries.Get(1)
		if err != nil {
			// Disposed; the loop's work is done.
			return
		}
		for _, item := range items {
			if fn, ok := item.(func()); ok {
				fn()
			}
		}
	}
}

func (b *Bus) enqueue(fn func()) {
	if err := b.deliveries.Put(fn); err != nil {
		b.log.Tracef("delivery queue disposed, dropping work: %v", err)
	}
}

func (b *Bus) publish(module, name string, data any) {
	b.enqueue(func() {
		ev := api.OutboundEvent{Module: module, Event: name, Data: data}
		br := b.Bridge()
		if br == nil {
			b.obs.PublishSkipped(ev)
			b.log.Tracef("no bridge, skipping %s/%s", module, name)
			return
		}
		br.BroadcastSerializedEvent(ev)
		b.obs.EventPublished(ev)
	})
}

func (b *Bus) consume(br api.Bridge, stop chan struct{}) {
	calls := br.Calls()
	for {
		select {
		case <-stop:
			return
		case call, ok := <-calls:
			if !ok {
				return
			}
			b.enqueue(func() { b.dispatch(call) })
		}
	}
}

// dispatch runs on the delivery goroutine. Calls that cannot be routed are
// dropped without error; robustness of the bridge wins over strictness.
func (b *Bus) dispatch(call api.InboundCall) {
	m, ok := b.modules.Get(call.Module)
	if !ok {
		b.drop(call, DropUnknownModule)
		return
	}
	table := m.API()
	if table == nil {
		b.drop(call, DropNoAPI)
		return
	}
	meth, ok := table.Method(call.Method)
	if !ok {
		b.drop(call, DropUnknownMethod)
		return
	}
	if meth.Arity() != len(call.Data) {
		b.drop(call, DropArityMismatch)
		return
	}
	if err := meth.Invoke(call.Data); err != nil {
		b.obs.CallFailed(call, err)
		b.log.Errorf("%s.%s failed: %v", call.Module, call.Method, err)
		return
	}
	b.obs.CallDispatched(call)
}

func (b *Bus) drop(call api.InboundCall, reason DropReason) {
	b.obs.CallDropped(call, reason)
	b.log.Tracef("dropping call %s.%s: %s", call.Module, call.Method, reason)
}
