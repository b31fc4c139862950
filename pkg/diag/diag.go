// Package diag ships a ready-made diagnostics module: the host asks it to
// sample disk and memory usage, and it answers by firing its stats event back
// across the bridge. It doubles as the reference implementation of the
// api.Module capability.
package diag

import (
	"errors"
	"sync"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/srediag/plugin-bus/api"
	"github.com/srediag/plugin-bus/pkg/bus"
	"github.com/srediag/plugin-bus/pkg/event"
	"github.com/srediag/plugin-bus/pkg/lifecycle"
)

const (
	// Key is the module's serializable key.
	Key = "diagnostics"
	// EventStats carries a sampled Stats payload.
	EventStats = "stats"
)

// Stats is one diagnostics sample.
type Stats struct {
	Path           string
	DiskTotal      uint64
	DiskFree       uint64
	DiskUsedPct    float64
	MemTotal       uint64
	MemAvailable   uint64
	MemUsedPercent float64
}

// ToPlainData flattens the sample for the wire.
func (s Stats) ToPlainData() any {
	return map[string]any{
		"path":           s.Path,
		"diskTotal":      s.DiskTotal,
		"diskFree":       s.DiskFree,
		"diskUsedPct":    s.DiskUsedPct,
		"memTotal":       s.MemTotal,
		"memAvailable":   s.MemAvailable,
		"memUsedPercent": s.MemUsedPercent,
	}
}

// Module implements api.Module.
type Module struct {
	mu   sync.Mutex
	path string

	ctl    *lifecycle.Controller
	dk     event.DispatchKey
	stats  *event.Event
	events *event.List
	table  *bus.MethodTable
}

// New creates a diagnostics module sampling the filesystem at path.
func New(path string) *Module {
	m := &Module{
		path: path,
		ctl:  lifecycle.NewController(),
		dk:   event.NewDispatchKey(),
	}
	m.stats = event.New(EventStats, m.dk)
	m.events = event.MustList(m.stats)

	t := bus.NewMethodTable()
	bus.Handle0(t, "sample", m.sample)
	bus.Handle1(t, "setPath", m.setPath)
	m.table = t
	return m
}

func (m *Module) SerializableKey() string       { return Key }
func (m *Module) Events() *event.List           { return m.events }
func (m *Module) API() api.MethodTable          { return m.table }
func (m *Module) Lifecycle() *lifecycle.Signals { return m.ctl.Signals() }

// Load drives the module through its load transition.
func (m *Module) Load() error { return m.ctl.Load() }

// Unload drives the module through its unload transition.
func (m *Module) Unload() error { return m.ctl.Unload() }

// Stats is the subscribe side of the stats event, for in-process consumers.
func (m *Module) Stats() *event.Event { return m.stats }

func (m *Module) sample() error {
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	du, err := disk.Usage(path)
	if err != nil {
		return err
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return err
	}
	return m.stats.Fire(Stats{
		Path:           path,
		DiskTotal:      du.Total,
		DiskFree:       du.Free,
		DiskUsedPct:    du.UsedPercent,
		MemTotal:       vm.Total,
		MemAvailable:   vm.Available,
		MemUsedPercent: vm.UsedPercent,
	}, m.dk)
}

func (m *Module) setPath(path string) error {
	if path == "" {
		return errors.New("diag: empty path")
	}
	m.mu.Lock()
	m.path = path
	m.mu.Unlock()
	return nil
}
