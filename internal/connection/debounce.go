package connection

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of values into one emission after a quiet
// window. The last value wins, and a value equal to the last one emitted is
// suppressed. Emissions never overlap and arrive in the order values were
// taken, so emit must not call FlushNow.
type Debouncer[T comparable] struct {
	window    time.Duration
	afterFunc AfterFunc
	emit      func(T)

	emitMu sync.Mutex // held across take and emit

	mu         sync.Mutex
	timer      Timer
	token      uint64
	pending    T
	hasPending bool
	last       T
	stopped    bool
}

// NewDebouncer creates a Debouncer whose last-emitted value starts at initial.
func NewDebouncer[T comparable](window time.Duration, initial T, afterFunc AfterFunc, emit func(T)) *Debouncer[T] {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Debouncer[T]{
		window:    window,
		afterFunc: afterFunc,
		emit:      emit,
		last:      initial,
	}
}

// Push records v and restarts the window. Never emits synchronously.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = v
	d.hasPending = true
	d.token++
	token := d.token
	d.timer = d.afterFunc(d.window, func() { d.fire(token) })
}

// FlushNow cancels the window and emits any pending value on the caller's goroutine.
func (d *Debouncer[T]) FlushNow() {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	v, ok := d.takeLocked()
	d.mu.Unlock()

	if ok {
		d.emit(v)
	}
}

// Stop cancels the window and drops any pending value. Later pushes are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.takeLocked()
}

// Pending reports whether a window is open.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Last returns the last emitted value.
func (d *Debouncer[T]) Last() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Debouncer[T]) fire(token uint64) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	if token != d.token {
		d.mu.Unlock()
		return
	}
	v, ok := d.takeLocked()
	d.mu.Unlock()

	if ok {
		d.emit(v)
	}
}

// takeLocked clears the window and returns the pending value if it differs
// from the last emission. Must be called with lock held.
func (d *Debouncer[T]) takeLocked() (T, bool) {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.token++

	var zero T
	if !d.hasPending {
		return zero, false
	}
	v := d.pending
	d.pending = zero
	d.hasPending = false

	if v == d.last {
		return zero, false
	}
	d.last = v
	return v, true
}
