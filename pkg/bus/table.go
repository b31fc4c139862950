package bus

import (
	"fmt"

	"github.com/srediag/plugin-bus/api"
	"github.com/srediag/plugin-bus/pkg/serial"
)

// MethodTable is the concrete api.MethodTable built at module construction
// time. Each entry carries its arity and per-argument deserialization, so
// dispatch needs no reflection. Registration happens through the HandleN
// functions; a duplicate name is a programming error and panics.
type MethodTable struct {
	methods map[string]*method
}

// NewMethodTable returns an empty table.
func NewMethodTable() *MethodTable {
	return &MethodTable{methods: make(map[string]*method)}
}

// Method implements api.MethodTable.
func (t *MethodTable) Method(name string) (api.Method, bool) {
	m, ok := t.methods[name]
	return m, ok
}

// Names returns the registered method names, unordered.
func (t *MethodTable) Names() []string {
	names := make([]string, 0, len(t.methods))
	for name := range t.methods {
		names = append(names, name)
	}
	return names
}

func (t *MethodTable) register(name string, arity int, invoke func(args []any) error) {
	if _, dup := t.methods[name]; dup {
		panic(fmt.Sprintf("bus: method %q registered twice", name))
	}
	t.methods[name] = &method{arity: arity, invoke: invoke}
}

type method struct {
	arity  int
	invoke func(args []any) error
}

func (m *method) Arity() int { return m.arity }

func (m *method) Invoke(args []any) error { return m.invoke(args) }

// Handle0 registers a no-argument method.
func Handle0(t *MethodTable, name string, fn func() error) {
	t.register(name, 0, func([]any) error {
		return fn()
	})
}

// Handle1 registers a one-argument method. The argument is rebuilt with
// serial.Decode, so A may implement serial.PlainDecoder or be any
// JSON-compatible type.
func Handle1[A any](t *MethodTable, name string, fn func(A) error) {
	t.register(name, 1, func(args []any) error {
		a, err := serial.Decode[A](args[0])
		if err != nil {
			return err
		}
		return fn(a)
	})
}

// Handle2 registers a two-argument method.
func Handle2[A, B any](t *MethodTable, name string, fn func(A, B) error) {
	t.register(name, 2, func(args []any) error {
		a, err := serial.Decode[A](args[0])
		if err != nil {
			return err
		}
		b, err := serial.Decode[B](args[1])
		if err != nil {
			return err
		}
		return fn(a, b)
	})
}

// Handle3 registers a three-argument method.
func Handle3[A, B, C any](t *MethodTable, name string, fn func(A, B, C) error) {
	t.register(name, 3, func(args []any) error {
		a, err := serial.Decode[A](args[0])
		if err != nil {
			return err
		}
		b, err := serial.Decode[B](args[1])
		if err != nil {
			return err
		}
		c, err := serial.Decode[C](args[2])
		if err != nil {
			return err
		}
		return fn(a, b, c)
	})
}
