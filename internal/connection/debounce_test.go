package connection

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted[T any] struct {
	mu   sync.Mutex
	vals []T
}

func (e *emitted[T]) add(v T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vals = append(e.vals, v)
}

func (e *emitted[T]) get() []T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]T(nil), e.vals...)
}

func TestDebouncer_LastValueWins(t *testing.T) {
	clock := &fakeClock{}
	var out emitted[int]
	d := NewDebouncer(300*time.Millisecond, 0, clock.AfterFunc, out.add)

	d.Push(1)
	d.Push(2)
	d.Push(3)
	assert.Empty(t, out.get())
	assert.True(t, d.Pending())
	assert.Equal(t, 1, clock.activeCount(), "earlier windows are stopped")

	clock.fire(t, 300*time.Millisecond)

	assert.Equal(t, []int{3}, out.get())
	assert.False(t, d.Pending())
	assert.Equal(t, 3, d.Last())
}

func TestDebouncer_SuppressesRepeat(t *testing.T) {
	clock := &fakeClock{}
	var out emitted[string]
	d := NewDebouncer(time.Second, "idle", clock.AfterFunc, out.add)

	d.Push("idle")
	clock.fire(t, time.Second)
	assert.Empty(t, out.get())

	d.Push("busy")
	clock.fire(t, time.Second)
	d.Push("busy")
	clock.fire(t, time.Second)
	assert.Equal(t, []string{"busy"}, out.get())
}

func TestDebouncer_FlushNow(t *testing.T) {
	clock := &fakeClock{}
	var out emitted[int]
	d := NewDebouncer(time.Second, 0, clock.AfterFunc, out.add)

	d.Push(5)
	d.FlushNow()

	assert.Equal(t, []int{5}, out.get())
	assert.False(t, d.Pending())
	assert.Equal(t, 0, clock.activeCount())

	// Nothing pending: no emission.
	d.FlushNow()
	assert.Equal(t, []int{5}, out.get())
}

func TestDebouncer_StaleTimerIgnored(t *testing.T) {
	clock := &fakeClock{}
	var out emitted[int]
	d := NewDebouncer(time.Second, 0, clock.AfterFunc, out.add)

	d.Push(1)
	stale := clock.take(func(*fakeTimer) bool { return true })
	d.FlushNow()

	stale.f()
	assert.Equal(t, []int{1}, out.get())
}

func TestDebouncer_Stop(t *testing.T) {
	clock := &fakeClock{}
	var out emitted[int]
	d := NewDebouncer(time.Second, 0, clock.AfterFunc, out.add)

	d.Push(1)
	d.Stop()
	d.Push(2)

	assert.False(t, d.Pending())
	assert.Equal(t, 0, clock.activeCount())
	d.FlushNow()
	assert.Empty(t, out.get())
}

func TestDebouncer_FlushWaitsForInFlightEmit(t *testing.T) {
	clock := &fakeClock{}
	var out emitted[int]
	entered := make(chan struct{})
	release := make(chan struct{})
	d := NewDebouncer(300*time.Millisecond, 0, clock.AfterFunc, func(v int) {
		if v == 1 {
			close(entered)
			<-release
		}
		out.add(v)
	})

	d.Push(1)
	tm := clock.take(func(ft *fakeTimer) bool { return ft.d == 300*time.Millisecond })
	require.NotNil(t, tm)
	go tm.f()
	<-entered

	d.Push(2)
	done := make(chan struct{})
	go func() {
		d.FlushNow()
		close(done)
	}()

	assert.Never(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	<-done

	assert.Equal(t, []int{1, 2}, out.get())
	assert.Equal(t, 2, d.Last())
}
