package bus_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/plugin-bus/pkg/bus"
)

func TestMethodTableLookupAndArity(t *testing.T) {
	table := bus.NewMethodTable()
	bus.Handle0(table, "zero", func() error { return nil })
	bus.Handle1(table, "one", func(string) error { return nil })
	bus.Handle2(table, "two", func(string, int) error { return nil })
	bus.Handle3(table, "three", func(string, int, bool) error { return nil })

	for name, arity := range map[string]int{"zero": 0, "one": 1, "two": 2, "three": 3} {
		m, ok := table.Method(name)
		require.True(t, ok, name)
		assert.Equal(t, arity, m.Arity(), name)
	}

	_, ok := table.Method("missing")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"zero", "one", "two", "three"}, table.Names())
}

func TestMethodTableDuplicatePanics(t *testing.T) {
	table := bus.NewMethodTable()
	bus.Handle0(table, "dup", func() error { return nil })
	assert.Panics(t, func() {
		bus.Handle1(table, "dup", func(string) error { return nil })
	})
}

func TestMethodTableDecodesArguments(t *testing.T) {
	table := bus.NewMethodTable()

	var gotName string
	var gotCount int
	bus.Handle2(table, "take", func(c character, count int) error {
		gotName = c.Name
		gotCount = count
		return nil
	})

	m, ok := table.Method("take")
	require.True(t, ok)
	require.NoError(t, m.Invoke([]any{map[string]any{"name": "Rob Stark"}, float64(2)}))
	assert.Equal(t, "Rob Stark", gotName)
	assert.Equal(t, 2, gotCount)
}

func TestMethodTableDecodeFailureReturnsError(t *testing.T) {
	table := bus.NewMethodTable()
	called := false
	bus.Handle1(table, "take", func(character) error {
		called = true
		return nil
	})

	m, _ := table.Method("take")
	err := m.Invoke([]any{"not a map"})
	assert.Error(t, err)
	assert.False(t, called, "a handler never runs on malformed arguments")
}

func TestMethodTableHandlerErrorPropagates(t *testing.T) {
	table := bus.NewMethodTable()
	sentinel := errors.New("sentinel")
	bus.Handle0(table, "fail", func() error { return sentinel })

	m, _ := table.Method("fail")
	assert.ErrorIs(t, m.Invoke(nil), sentinel)
}

func BenchmarkMethodInvoke(b *testing.B) {
	table := bus.NewMethodTable()
	bus.Handle1(table, "take", func(character) error { return nil })
	m, _ := table.Method("take")
	args := []any{map[string]any{"name": "Rob Stark"}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Invoke(args)
	}
}
