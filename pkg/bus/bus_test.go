package bus_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/plugin-bus/api"
	"github.com/srediag/plugin-bus/pkg/bridge"
	"github.com/srediag/plugin-bus/pkg/bus"
	"github.com/srediag/plugin-bus/pkg/event"
	"github.com/srediag/plugin-bus/pkg/lifecycle"
)

type character struct {
	Name string
}

func (c *character) FromPlainData(data map[string]any) error {
	name, _ := data["name"].(string)
	if name == "" {
		return errors.New("missing name")
	}
	c.Name = name
	return nil
}

// testModule is a minimal api.Module with one domain event and a small API.
type testModule struct {
	key    string
	ctl    *lifecycle.Controller
	dk     event.DispatchKey
	test   *event.Event
	events *event.List
	table  *bus.MethodTable

	mu      sync.Mutex
	removed []character
	pings   int
}

func newTestModule(key string) *testModule {
	m := &testModule{
		key: key,
		ctl: lifecycle.NewController(),
		dk:  event.NewDispatchKey(),
	}
	m.test = event.New("testEvent", m.dk)
	m.events = event.MustList(m.test)

	t := bus.NewMethodTable()
	bus.Handle1(t, "remove", func(c character) error {
		m.mu.Lock()
		m.removed = append(m.removed, c)
		m.mu.Unlock()
		return nil
	})
	bus.Handle0(t, "ping", func() error {
		m.mu.Lock()
		m.pings++
		m.mu.Unlock()
		return nil
	})
	bus.Handle0(t, "boom", func() error {
		return errors.New("boom")
	})
	m.table = t
	return m
}

func (m *testModule) SerializableKey() string       { return m.key }
func (m *testModule) Events() *event.List           { return m.events }
func (m *testModule) API() api.MethodTable          { return m.table }
func (m *testModule) Lifecycle() *lifecycle.Signals { return m.ctl.Signals() }

func (m *testModule) removedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.removed))
	for i, c := range m.removed {
		out[i] = c.Name
	}
	return out
}

func (m *testModule) pingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

// bareModule has no events, API, or lifecycle.
type bareModule struct {
	key string
}

func (m *bareModule) SerializableKey() string       { return m.key }
func (m *bareModule) Events() *event.List           { return nil }
func (m *bareModule) API() api.MethodTable          { return nil }
func (m *bareModule) Lifecycle() *lifecycle.Signals { return nil }

// recordingObserver counts bus activity under a lock.
type recordingObserver struct {
	mu         sync.Mutex
	published  []api.OutboundEvent
	skipped    int
	dispatched int
	dropped    map[bus.DropReason]int
	failed     int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{dropped: make(map[bus.DropReason]int)}
}

func (o *recordingObserver) EventPublished(ev api.OutboundEvent) {
	o.mu.Lock()
	o.published = append(o.published, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) PublishSkipped(api.OutboundEvent) {
	o.mu.Lock()
	o.skipped++
	o.mu.Unlock()
}

func (o *recordingObserver) CallDispatched(api.InboundCall) {
	o.mu.Lock()
	o.dispatched++
	o.mu.Unlock()
}

func (o *recordingObserver) CallDropped(_ api.InboundCall, reason bus.DropReason) {
	o.mu.Lock()
	o.dropped[reason]++
	o.mu.Unlock()
}

func (o *recordingObserver) CallFailed(api.InboundCall, error) {
	o.mu.Lock()
	o.failed++
	o.mu.Unlock()
}

func (o *recordingObserver) snapshot() (published []api.OutboundEvent, skipped, dispatched, failed int, dropped map[bus.DropReason]int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	published = append([]api.OutboundEvent(nil), o.published...)
	dropped = make(map[bus.DropReason]int, len(o.dropped))
	for k, v := range o.dropped {
		dropped[k] = v
	}
	return published, o.skipped, o.dispatched, o.failed, dropped
}

func readEvent(t *testing.T, br *bridge.Local) api.OutboundEvent {
	t.Helper()
	select {
	case ev := <-br.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound event")
		return api.OutboundEvent{}
	}
}

func assertNoEvent(t *testing.T, br *bridge.Local) {
	t.Helper()
	select {
	case ev := <-br.Events():
		t.Fatalf("unexpected outbound event %s/%s", ev.Module, ev.Event)
	default:
	}
}

type BusSuite struct {
	suite.Suite
	bus *bus.Bus
	br  *bridge.Local
	obs *recordingObserver
	mod *testModule
}

func (s *BusSuite) SetupTest() {
	s.obs = newRecordingObserver()
	s.bus = bus.New(bus.WithObserver(s.obs))
	s.br = bridge.NewLocal(16)
	s.mod = newTestModule("serializableKey")
}

func (s *BusSuite) TearDownTest() {
	s.bus.Close()
}

func (s *BusSuite) TestRegisterAndReset() {
	s.Require().NoError(s.bus.Register(s.mod))
	got, ok := s.bus.Module("serializableKey")
	s.Require().True(ok)
	s.Equal(api.Module(s.mod), got)
	s.Equal(1, s.bus.Count())

	s.bus.Reset()
	_, ok = s.bus.Module("serializableKey")
	s.False(ok)
	s.Equal(0, s.bus.Count())
}

func (s *BusSuite) TestRegisterRejectsDuplicateAndEmptyKeys() {
	s.Require().NoError(s.bus.Register(s.mod))
	err := s.bus.Register(newTestModule("serializableKey"))
	s.ErrorIs(err, bus.ErrDuplicateKey)

	s.ErrorIs(s.bus.Register(&bareModule{key: ""}), bus.ErrEmptyKey)

	s.Panics(func() { s.bus.MustRegister(newTestModule("serializableKey")) })
}

func (s *BusSuite) TestLifecycleTransitionsReachBridgeInOrder() {
	s.bus.MustRegister(s.mod)
	s.bus.SetBridge(s.br)

	s.Require().NoError(s.mod.ctl.Load())
	s.bus.Sync()

	ev := readEvent(s.T(), s.br)
	s.Equal(api.OutboundEvent{Module: "serializableKey", Event: "willLoad", Data: nil}, ev)
	ev = readEvent(s.T(), s.br)
	s.Equal(api.OutboundEvent{Module: "serializableKey", Event: "didLoad", Data: nil}, ev)

	s.Require().NoError(s.mod.ctl.Unload())
	s.bus.Sync()

	s.Equal("willUnload", readEvent(s.T(), s.br).Event)
	s.Equal("didUnload", readEvent(s.T(), s.br).Event)
	assertNoEvent(s.T(), s.br)
}

func (s *BusSuite) TestDomainEventCarriesPayload() {
	s.bus.MustRegister(s.mod)
	s.bus.SetBridge(s.br)

	s.Require().NoError(s.mod.test.Fire(nil, s.mod.dk))
	s.bus.Sync()
	ev := readEvent(s.T(), s.br)
	s.Equal(api.OutboundEvent{Module: "serializableKey", Event: "testEvent", Data: nil}, ev)

	s.Require().NoError(s.mod.test.Fire(map[string]any{"name": "Rob Stark"}, s.mod.dk))
	s.bus.Sync()
	ev = readEvent(s.T(), s.br)
	s.Equal("testEvent", ev.Event)
	s.Equal(map[string]any{"name": "Rob Stark"}, ev.Data)
}

func (s *BusSuite) TestNoBridgeMeansNoInteractions() {
	s.bus.MustRegister(s.mod)

	s.Require().NoError(s.mod.ctl.Load())
	s.Require().NoError(s.mod.test.Fire("x", s.mod.dk))
	s.bus.Sync()

	published, skipped, _, _, _ := s.obs.snapshot()
	s.Empty(published)
	s.Equal(3, skipped, "willLoad, didLoad, testEvent all skipped silently")
	assertNoEvent(s.T(), s.br)
}

func (s *BusSuite) TestNilBridgeAssignmentIsIgnored() {
	s.bus.SetBridge(nil)
	s.Nil(s.bus.Bridge())

	s.bus.SetBridge(s.br)
	s.bus.SetBridge(nil)
	s.Equal(api.Bridge(s.br), s.bus.Bridge())
}

func (s *BusSuite) TestResetDetachesBridge() {
	s.bus.MustRegister(s.mod)
	s.bus.SetBridge(s.br)
	s.bus.Reset()

	s.Nil(s.bus.Bridge())
	s.Require().NoError(s.mod.ctl.Load())
	s.Require().NoError(s.mod.test.Fire("after", s.mod.dk))
	s.bus.Sync()

	assertNoEvent(s.T(), s.br)
	published, skipped, _, _, _ := s.obs.snapshot()
	s.Empty(published)
	s.Equal(0, skipped, "subscriptions are gone, nothing even reaches the bus")
}

func (s *BusSuite) TestInboundCallDispatches() {
	s.bus.MustRegister(s.mod)
	s.bus.SetBridge(s.br)

	s.br.Call(api.InboundCall{
		Module: "serializableKey",
		Method: "remove",
		Data:   []any{map[string]any{"name": "Rob Stark"}},
	})

	s.Require().Eventually(func() bool {
		return len(s.mod.removedNames()) == 1
	}, time.Second, 5*time.Millisecond)
	s.Equal([]string{"Rob Stark"}, s.mod.removedNames())
}

func (s *BusSuite) TestInboundCallArityMismatchIsDropped() {
	s.bus.MustRegister(s.mod)
	s.bus.SetBridge(s.br)

	s.br.Call(api.InboundCall{
		Module: "serializableKey",
		Method: "remove",
		Data:   []any{map[string]any{"name": "Rob Stark"}, map[string]any{"one": "tomany"}},
	})
	// The sentinel proves the mismatched call was processed and skipped.
	s.br.Call(api.InboundCall{Module: "serializableKey", Method: "ping", Data: []any{}})

	s.Require().Eventually(func() bool {
		return s.mod.pingCount() == 1
	}, time.Second, 5*time.Millisecond)
	s.Empty(s.mod.removedNames())

	_, _, _, _, dropped := s.obs.snapshot()
	s.Equal(1, dropped[bus.DropArityMismatch])
}

func (s *BusSuite) TestInboundCallUnknownTargetsAreDropped() {
	s.bus.MustRegister(s.mod)
	s.bus.MustRegister(&bareModule{key: "mute"})
	s.bus.SetBridge(s.br)

	s.br.Call(api.InboundCall{Module: "nobody", Method: "remove", Data: []any{}})
	s.br.Call(api.InboundCall{Module: "mute", Method: "remove", Data: []any{}})
	s.br.Call(api.InboundCall{Module: "serializableKey", Method: "vanish", Data: []any{}})
	s.br.Call(api.InboundCall{Module: "serializableKey", Method: "ping", Data: []any{}})

	s.Require().Eventually(func() bool {
		return s.mod.pingCount() == 1
	}, time.Second, 5*time.Millisecond)

	_, _, dispatched, _, dropped := s.obs.snapshot()
	s.Equal(1, dispatched)
	s.Equal(1, dropped[bus.DropUnknownModule])
	s.Equal(1, dropped[bus.DropNoAPI])
	s.Equal(1, dropped[bus.DropUnknownMethod])
}

func (s *BusSuite) TestHandlerErrorIsSurfacedToObserver() {
	s.bus.MustRegister(s.mod)
	s.bus.SetBridge(s.br)

	s.br.Call(api.InboundCall{Module: "serializableKey", Method: "boom", Data: []any{}})

	s.Require().Eventually(func() bool {
		_, _, _, failed, _ := s.obs.snapshot()
		return failed == 1
	}, time.Second, 5*time.Millisecond)
}

func (s *BusSuite) TestReplacingBridgeRetargetsInbound() {
	s.bus.MustRegister(s.mod)
	s.bus.SetBridge(s.br)

	next := bridge.NewLocal(16)
	s.bus.SetBridge(next)

	next.Call(api.InboundCall{Module: "serializableKey", Method: "ping", Data: []any{}})
	s.Require().Eventually(func() bool {
		return s.mod.pingCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Events now land on the replacement bridge.
	s.Require().NoError(s.mod.test.Fire(nil, s.mod.dk))
	s.bus.Sync()
	assertNoEvent(s.T(), s.br)
	s.Equal("testEvent", readEvent(s.T(), next).Event)
}

func TestBusSuite(t *testing.T) {
	suite.Run(t, new(BusSuite))
}

func TestSharedBusIsSingleton(t *testing.T) {
	a := bus.Shared()
	b := bus.Shared()
	require.NotNil(t, a)
	assert.Same(t, a, b)
}

func TestEncoderPayloadIsFlattened(t *testing.T) {
	b := bus.New()
	defer b.Close()
	br := bridge.NewLocal(4)
	b.SetBridge(br)

	m := newTestModule("encoder")
	b.MustRegister(m)

	require.NoError(t, m.test.Fire(statsPayload{Label: "ok"}, m.dk))
	b.Sync()
	ev := readEvent(t, br)
	assert.Equal(t, map[string]any{"label": "ok"}, ev.Data)
}

type statsPayload struct {
	Label string
}

func (p statsPayload) ToPlainData() any {
	return map[string]any{"label": p.Label}
}
