package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTimer is a manually fired Timer.
type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock records AfterFunc calls so tests can fire them deterministically.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) take(match func(*fakeTimer) bool) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && match(t) {
			t.fired = true
			return t
		}
	}
	return nil
}

// fire runs the oldest active timer armed with duration d.
func (c *fakeClock) fire(t *testing.T, d time.Duration) {
	t.Helper()
	tm := c.take(func(ft *fakeTimer) bool { return ft.d == d })
	require.NotNil(t, tm, "no active timer for %s", d)
	tm.f()
}

// fireAny runs the oldest active timer.
func (c *fakeClock) fireAny(t *testing.T) {
	t.Helper()
	tm := c.take(func(*fakeTimer) bool { return true })
	require.NotNil(t, tm, "no active timer")
	tm.f()
}

func (c *fakeClock) countActive(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.d == d {
			n++
		}
	}
	return n
}

func (c *fakeClock) activeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeNow is a manually advanced clock for heartbeat bookkeeping.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeNow() *fakeNow {
	return &fakeNow{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (n *fakeNow) now() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.t
}

func (n *fakeNow) advance(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.t = n.t.Add(d)
}

// fakeSocket records sends and lets tests inject frames and closes.
type fakeSocket struct {
	mu      sync.Mutex
	events  SocketEvents
	started bool
	sent    []string
	closed  bool
	sendErr error
}

func (s *fakeSocket) Start(events SocketEvents) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	s.started = true
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, string(data))
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) deliver(frame string) {
	s.mu.Lock()
	ev := s.events
	s.mu.Unlock()
	ev.OnFrame([]byte(frame))
}

func (s *fakeSocket) drop(err error) {
	s.mu.Lock()
	ev := s.events
	s.mu.Unlock()
	ev.OnClose(err)
}

func (s *fakeSocket) sentFrames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) failSends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// fakeDialer hands out fakeSockets.
type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	err     error
	hold    chan struct{} // when set, Dial waits for it (or ctx) before returning
	sockets []*fakeSocket
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Socket, error) {
	d.mu.Lock()
	d.dials++
	err, hold := d.err, d.hold
	d.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := &fakeSocket{}
	d.mu.Lock()
	d.sockets = append(d.sockets, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) setHold(ch chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = ch
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) socketCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

func (d *fakeDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// observed holds what a recordingObserver saw.
type observed struct {
	transitions [][2]State
	scheduled   []time.Duration
	exhausted   int
	dropped     []string
	queued      int
	evicted     int
	misses      []int
}

// recordingObserver records Observer callbacks.
type recordingObserver struct {
	mu  sync.Mutex
	got observed
}

func (o *recordingObserver) StateChanged(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got.transitions = append(o.got.transitions, [2]State{from, to})
}

func (o *recordingObserver) ReconnectScheduled(_ int, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got.scheduled = append(o.got.scheduled, delay)
}

func (o *recordingObserver) ReconnectsExhausted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got.exhausted++
}

func (o *recordingObserver) FrameReceived(string) {}

func (o *recordingObserver) FrameDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got.dropped = append(o.got.dropped, reason)
}

func (o *recordingObserver) FrameSent() {}

func (o *recordingObserver) Queued(evicted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got.queued++
	if evicted {
		o.got.evicted++
	}
}

func (o *recordingObserver) HeartbeatMissed(misses int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got.misses = append(o.got.misses, misses)
}

func (o *recordingObserver) snapshot() observed {
	o.mu.Lock()
	defer o.mu.Unlock()
	return observed{
		transitions: append([][2]State(nil), o.got.transitions...),
		scheduled:   append([]time.Duration(nil), o.got.scheduled...),
		exhausted:   o.got.exhausted,
		dropped:     append([]string(nil), o.got.dropped...),
		queued:      o.got.queued,
		evicted:     o.got.evicted,
		misses:      append([]int(nil), o.got.misses...),
	}
}
