package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_InsertionOrder(t *testing.T) {
	var em Emitter[int]
	var got []string

	em.AddListener(func(v int) { got = append(got, "a") })
	em.AddListener(func(v int) { got = append(got, "b") })
	em.AddListener(func(v int) { got = append(got, "c") })

	em.Emit(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestEmitter_NoListenersDiscards(t *testing.T) {
	var em Emitter[string]
	require.NotPanics(t, func() { em.Emit("dropped") })
	assert.Equal(t, 0, em.Len())
}

func TestEmitter_Dispose(t *testing.T) {
	var em Emitter[int]
	var a, b int

	disposeA := em.AddListener(func(v int) { a += v })
	em.AddListener(func(v int) { b += v })

	em.Emit(1)
	disposeA()
	disposeA()
	em.Emit(1)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, em.Len())
}

func TestEmitter_DisposeDuringEmit(t *testing.T) {
	var em Emitter[int]
	var calls []string

	var disposeSecond Disposer
	em.AddListener(func(int) {
		calls = append(calls, "first")
		disposeSecond()
	})
	disposeSecond = em.AddListener(func(int) { calls = append(calls, "second") })

	// The snapshot taken at Emit time still includes the second listener.
	em.Emit(0)
	em.Emit(0)

	assert.Equal(t, []string{"first", "second", "first"}, calls)
}

func TestEmitter_Clear(t *testing.T) {
	var em Emitter[int]
	em.AddListener(func(int) { t.Fatal("listener should have been cleared") })
	em.Clear()
	em.Emit(1)
}

func TestBus_RoutesByKey(t *testing.T) {
	var bus Bus[string]
	var created, destroyed []string

	bus.On("Target.targetCreated", func(v string) { created = append(created, v) })
	dispose := bus.On("Target.targetDestroyed", func(v string) { destroyed = append(destroyed, v) })

	bus.Emit("Target.targetCreated", "t1")
	bus.Emit("Target.targetDestroyed", "t1")
	bus.Emit("Page.loadEventFired", "ignored")

	dispose()
	bus.Emit("Target.targetDestroyed", "t2")

	assert.Equal(t, []string{"t1"}, created)
	assert.Equal(t, []string{"t1"}, destroyed)
	assert.Equal(t, 1, bus.Len("Target.targetCreated"))
	assert.Equal(t, 0, bus.Len("Target.targetDestroyed"))
	assert.Equal(t, 0, bus.Len("unknown"))
}
