package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/loadtest-dash/internal/protocol"
	"github.com/rickgao/loadtest-dash/internal/router"
)

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the default gorilla dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithRegistry sets the registry inbound messages are dispatched to.
func WithRegistry(r *router.Registry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithObserver sets the instrumentation observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithAfterFunc replaces time.AfterFunc for the connect, reconnect,
// cooldown, heartbeat and debounce timers.
func WithAfterFunc(f AfterFunc) Option {
	return func(m *Manager) {
		m.afterFunc = f
	}
}

// WithClock replaces time.Now for heartbeat bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

type stateObserver struct {
	id uint64
	fn func(State)
}

// Manager owns the single connection to the backend.
type Manager struct {
	cfg       Config
	logger    *slog.Logger
	dialer    Dialer
	registry  *router.Registry
	observer  Observer
	afterFunc AfterFunc
	now       func() time.Time

	sched    *Scheduler
	debounce *Debouncer[State]

	mu           sync.Mutex
	state        State
	gen          uint64 // bumped per dial and per socket close
	sock         Socket
	dialCancel   context.CancelFunc
	connectTimer Timer
	hb           Heartbeat
	hbTimer      Timer
	hbToken      uint64
	queue        *OutboundQueue
	waiters      []chan error
	probes       []chan bool

	// Held subscription announcements, in registration order
	announcements map[uint64][]byte
	annOrder      []uint64
	nextAnnID     uint64
	flushed       map[uint64]bool // announcements sent by the current connect's flush

	framesReceived int64
	framesDropped  int64
	framesSent     int64

	obsMu     sync.Mutex
	observers []stateObserver
	nextObsID uint64
}

// NewManager creates a Manager in the Disconnected state. Nothing is dialed
// until Connect is called.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:           cfg,
		logger:        logger,
		observer:      nopObserver{},
		afterFunc:     realAfterFunc,
		now:           time.Now,
		state:         Disconnected,
		hb:            NewHeartbeat(cfg.HeartbeatTimeout, cfg.HeartbeatMissThreshold),
		queue:         NewOutboundQueue(cfg.QueueCapacity),
		announcements: make(map[uint64][]byte),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = NewWSDialer(cfg.WriteTimeout, logger)
	}
	if m.registry == nil {
		m.registry = router.NewRegistry(logger)
	}

	m.sched = NewScheduler(
		Backoff{Base: cfg.ReconnectBase, Multiplier: cfg.ReconnectMultiplier, Cap: cfg.ReconnectCap},
		cfg.MaxReconnectAttempts,
		cfg.ReconnectCooldown,
		m.afterFunc,
		m.onReconnectTimer,
		m.onCooldown,
	)
	m.debounce = NewDebouncer(cfg.StateDebounce, Disconnected, m.afterFunc, m.notifyObservers)

	return m
}

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Connect opens the connection and blocks until it is usable, the attempt
// fails, or ctx is done. While an attempt is in flight, callers share its
// outcome. Returns nil immediately when already connected.
func (m *Manager) Connect(ctx context.Context) error {
	ch := make(chan error, 1)

	m.mu.Lock()
	m.waiters = append(m.waiters, ch)
	m.handle(EventConnectRequested, nil)
	m.mu.Unlock()

	// Settled under the lock when already connected.
	select {
	case err := <-ch:
		return err
	default:
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		m.mu.Lock()
		m.removeWaiter(ch)
		m.mu.Unlock()
		select {
		case err := <-ch:
			return err
		default:
			return ctx.Err()
		}
	}
}

// Disconnect closes the connection and stops every timer, including any
// pending state notification, which is delivered before Disconnect returns.
// The outbound queue is cleared; held announcements are kept.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.handle(EventDisconnectRequested, ErrDisconnected)
	m.mu.Unlock()

	m.debounce.FlushNow()

	m.logger.Info("disconnected by request")
}

// Reconnect drops the current connection and schedules a new attempt
// through the backoff scheduler.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("reconnect requested", "state", m.state)
	m.handle(EventReconnectForced, ErrDisconnected)
}

// ResetAndReconnect tears down everything (socket, timers, attempt counter,
// queue) and connects again from scratch.
func (m *Manager) ResetAndReconnect(ctx context.Context) error {
	m.mu.Lock()
	m.logger.Info("resetting connection")
	m.handle(EventDisconnectRequested, ErrDisconnected)
	m.mu.Unlock()

	return m.Connect(ctx)
}

// Send writes payload now if the socket is usable and returns true.
// Otherwise it queues the encoded payload and returns false.
func (m *Manager) Send(payload any) bool {
	data, err := protocol.Encode(payload)
	if err != nil {
		m.logger.Warn("failed to encode payload", "error", err)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isOpenLocked() {
		if err := m.writeLocked(data); err == nil {
			return true
		}
	}
	m.enqueueLocked(QueuedItem{Data: data})
	return false
}

// Announce holds a subscription announcement. It is sent now when the socket
// is usable (queued otherwise) and replayed after every reconnect until
// withdraw is called.
func (m *Manager) Announce(payload any) (withdraw func()) {
	data, err := protocol.Encode(payload)
	if err != nil {
		m.logger.Warn("failed to encode announcement", "error", err)
		return func() {}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAnnID++
	id := m.nextAnnID
	m.announcements[id] = data
	m.annOrder = append(m.annOrder, id)

	sent := false
	if m.isOpenLocked() {
		sent = m.writeLocked(data) == nil
	}
	if !sent {
		m.enqueueLocked(QueuedItem{Data: data, AnnouncementID: id})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.withdrawLocked(id)
		})
	}
}

// RequestTimeSeriesHistory sends "get_time_series" if the socket is usable.
// It is never queued.
func (m *Manager) RequestTimeSeriesHistory() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpenLocked() {
		return false
	}
	return m.writeLocked([]byte(protocol.TimeSeriesRequest)) == nil
}

// CheckStability sends "ping" and waits up to the probe timeout for "pong".
// A missing pong marks a Connected link Unstable and schedules a reconnect,
// which a late pong cancels. A second miss drops the link.
// Returns false without probing when the socket is not usable.
func (m *Manager) CheckStability(ctx context.Context) bool {
	m.mu.Lock()
	if !m.isOpenLocked() {
		m.mu.Unlock()
		return false
	}
	gen := m.gen
	ch := make(chan bool, 1)
	m.probes = append(m.probes, ch)
	if err := m.writeLocked([]byte(protocol.Ping)); err != nil {
		m.removeProbe(ch)
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	timer := time.NewTimer(m.cfg.ProbeTimeout)
	defer timer.Stop()

	var ok bool
	select {
	case ok = <-ch:
	case <-timer.C:
	case <-ctx.Done():
		m.mu.Lock()
		m.removeProbe(ch)
		m.mu.Unlock()
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeProbe(ch)
	if gen != m.gen {
		return ok
	}
	if ok {
		m.handle(EventProbeSucceeded, nil)
	} else {
		m.logger.Warn("stability probe failed", "state", m.state)
		m.handle(EventProbeFailed, ErrStaleConnection)
	}
	return ok
}

// SubscribeState registers fn for debounced state changes. fn is called
// immediately with the current state. Notifications are delivered one at a
// time; fn must not call Disconnect.
func (m *Manager) SubscribeState(fn func(State)) (unsubscribe func()) {
	m.obsMu.Lock()
	m.nextObsID++
	id := m.nextObsID
	next := make([]stateObserver, len(m.observers), len(m.observers)+1)
	copy(next, m.observers)
	m.observers = append(next, stateObserver{id: id, fn: fn})
	m.obsMu.Unlock()

	fn(m.State())

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		for i, o := range m.observers {
			if o.id == id {
				next := make([]stateObserver, 0, len(m.observers)-1)
				next = append(next, m.observers[:i]...)
				m.observers = append(next, m.observers[i+1:]...)
				return
			}
		}
	}
}

// State returns the current (undebounced) state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the state is Connected.
func (m *Manager) IsConnected() bool {
	return m.State() == Connected
}

// IsSocketOpen reports whether a socket is attached and usable.
func (m *Manager) IsSocketOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isOpenLocked()
}

// MaxReconnectAttempts returns the configured automatic attempt limit.
func (m *Manager) MaxReconnectAttempts() int {
	return m.cfg.MaxReconnectAttempts
}

// Registry returns the registry inbound messages are dispatched to.
func (m *Manager) Registry() *router.Registry {
	return m.registry
}

// Subscribe registers fn for one message kind.
func (m *Manager) Subscribe(kind protocol.Kind, fn router.Handler) func() {
	return m.registry.Subscribe(kind, fn)
}

// SubscribeType registers fn for a raw type string.
func (m *Manager) SubscribeType(typ string, fn router.Handler) func() {
	return m.registry.SubscribeType(typ, fn)
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	st := Stats{
		State:               m.state,
		QueueLen:            m.queue.Len(),
		QueueEvicted:        m.queue.Evicted(),
		Announcements:       len(m.annOrder),
		FramesReceived:      m.framesReceived,
		FramesDropped:       m.framesDropped,
		FramesSent:          m.framesSent,
		ConnectTimerPending: m.connectTimer != nil,
		HeartbeatRunning:    m.hbTimer != nil,
	}
	m.mu.Unlock()

	st.ReconnectAttempts = m.sched.Attempts()
	st.ReconnectPending = m.sched.Pending()
	st.CooldownPending = m.sched.CoolingDown()
	st.DebouncePending = m.debounce.Pending()
	return st
}

// -----------------------------------------------------------------------------
// Event handling
// -----------------------------------------------------------------------------

// handle applies one event. Must be called with m.mu held.
func (m *Manager) handle(ev Event, cause error) {
	from := m.state
	to, effects := Transition(from, ev)
	m.state = to

	for _, eff := range effects {
		m.run(eff, cause)
	}

	if from != to {
		m.logger.Debug("state changed",
			"from", from,
			"to", to,
			"event", ev,
		)
		m.observer.StateChanged(from, to)
		m.debounce.Push(to)
	}
}

// run performs one effect. Must be called with m.mu held.
func (m *Manager) run(eff Effect, cause error) {
	switch eff {
	case EffectDial:
		m.sched.CancelPending()
		m.gen++
		gen := m.gen
		ctx, cancel := context.WithCancel(context.Background())
		m.dialCancel = cancel
		go m.dial(ctx, gen)

	case EffectStartConnectTimer:
		gen := m.gen
		m.connectTimer = m.afterFunc(m.cfg.ConnectTimeout, func() { m.onConnectTimeout(gen) })

	case EffectStopConnectTimer:
		if m.connectTimer != nil {
			m.connectTimer.Stop()
			m.connectTimer = nil
		}

	case EffectCloseSocket:
		if m.dialCancel != nil {
			m.dialCancel()
			m.dialCancel = nil
		}
		if m.sock != nil {
			if err := m.sock.Close(); err != nil {
				m.logger.Debug("socket close failed", "error", err)
			}
			m.sock = nil
		}
		m.gen++
		m.failProbes()

	case EffectStartHeartbeat:
		m.hb.Reset(m.now())
		m.armHeartbeatLocked()

	case EffectStopHeartbeat:
		if m.hbTimer != nil {
			m.hbTimer.Stop()
			m.hbTimer = nil
		}
		m.hbToken++

	case EffectRequestHistory:
		if err := m.writeLocked([]byte(protocol.TimeSeriesRequest)); err != nil {
			m.logger.Warn("failed to request time series history", "error", err)
		}

	case EffectFlushQueue:
		m.flushLocked()

	case EffectReplaySubscriptions:
		m.replayLocked()

	case EffectResetAttempts:
		m.sched.Reset()

	case EffectScheduleReconnect:
		m.scheduleLocked()

	case EffectCancelReconnect:
		m.sched.Cancel()

	case EffectClearQueue:
		if n := m.queue.Clear(); n > 0 {
			m.logger.Debug("cleared outbound queue", "count", n)
		}

	case EffectResolveConnect:
		m.settleWaiters(nil)

	case EffectRejectConnect:
		if cause == nil {
			cause = ErrDisconnected
		}
		m.settleWaiters(cause)
	}
}

// flushLocked drains the queue and remembers which announcements it sent.
func (m *Manager) flushLocked() {
	m.flushed = make(map[uint64]bool)

	n, err := m.queue.Drain(func(item QueuedItem) error {
		if err := m.writeLocked(item.Data); err != nil {
			return err
		}
		if item.AnnouncementID != 0 {
			m.flushed[item.AnnouncementID] = true
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("queue flush interrupted",
			"sent", n,
			"remaining", m.queue.Len(),
			"error", err,
		)
		return
	}
	if n > 0 {
		m.logger.Debug("flushed outbound queue", "count", n)
	}
}

// replayLocked re-sends held announcements the preceding flush did not send.
func (m *Manager) replayLocked() {
	flushed := m.flushed
	m.flushed = nil

	for _, id := range m.annOrder {
		if flushed[id] {
			continue
		}
		if err := m.writeLocked(m.announcements[id]); err != nil {
			m.logger.Warn("announcement replay interrupted", "error", err)
			return
		}
	}
}

func (m *Manager) scheduleLocked() {
	result, attempt, delay := m.sched.Schedule()
	switch result {
	case Scheduled:
		m.logger.Info("scheduling reconnection",
			"attempt", attempt,
			"max_attempts", m.cfg.MaxReconnectAttempts,
			"delay", delay,
		)
		m.observer.ReconnectScheduled(attempt, delay)
	case Exhausted:
		m.logger.Error("maximum reconnection attempts reached, cooling down",
			"attempts", attempt,
			"cooldown", m.cfg.ReconnectCooldown,
		)
		m.observer.ReconnectsExhausted()
	}
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	sock, err := m.dialer.Dial(ctx, m.cfg.URL)
	m.onDialResult(gen, sock, err)
}

func (m *Manager) onDialResult(gen uint64, sock Socket, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != Connecting {
		if sock != nil {
			sock.Close()
		}
		return
	}

	if err != nil {
		m.logger.Warn("dial failed", "url", m.cfg.URL, "error", err)
		m.handle(EventOpenFailed, fmt.Errorf("dial %s: %w", m.cfg.URL, err))
		return
	}

	m.sock = sock
	sock.Start(SocketEvents{
		OnFrame: func(data []byte) { m.onFrame(gen, data) },
		OnClose: func(err error) { m.onClose(gen, err) },
	})

	m.logger.Info("connected", "url", m.cfg.URL)
	m.handle(EventOpened, nil)
}

func (m *Manager) onConnectTimeout(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != Connecting {
		return
	}
	m.connectTimer = nil
	m.logger.Warn("connect timed out", "timeout", m.cfg.ConnectTimeout)
	m.handle(EventOpenFailed, ErrConnectTimeout)
}

func (m *Manager) onClose(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}
	m.logger.Warn("connection lost", "state", m.state, "error", err)
	m.handle(EventClosed, fmt.Errorf("%w: %v", ErrClosed, err))
}

func (m *Manager) onFrame(gen uint64, data []byte) {
	frame, err := protocol.Decode(data)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.framesDropped++
		m.observer.FrameDropped(dropReason(err))
		m.mu.Unlock()
		m.logger.Warn("dropping undecodable frame", "error", err, "size", len(data))
		return
	}
	m.framesReceived++

	switch frame.Control {
	case protocol.ControlPing:
		m.observer.FrameReceived(protocol.Ping)
		if err := m.writeLocked([]byte(protocol.Pong)); err != nil {
			m.logger.Debug("failed to answer ping", "error", err)
		}
		m.mu.Unlock()
		return

	case protocol.ControlPong:
		m.observer.FrameReceived(protocol.Pong)
		m.hb.Reset(m.now())
		m.answerProbes()
		m.handle(EventProbeSucceeded, nil)
		m.mu.Unlock()
		return
	}

	m.observer.FrameReceived(frame.Message.Type)
	m.mu.Unlock()

	m.registry.Dispatch(frame.Message)
}

func (m *Manager) onReconnectTimer(token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sched.claim(token) {
		return
	}
	m.logger.Info("attempting reconnection", "attempt", m.sched.Attempts())
	m.handle(EventReconnectTimerFired, nil)
}

func (m *Manager) onCooldown(token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sched.claimCooldown(token) {
		return
	}
	m.logger.Info("reconnect cooldown elapsed, attempts reset", "state", m.state)
}

// armHeartbeatLocked schedules the next heartbeat tick. Must be called with m.mu held.
func (m *Manager) armHeartbeatLocked() {
	m.hbToken++
	token := m.hbToken
	m.hbTimer = m.afterFunc(m.cfg.HeartbeatInterval, func() { m.onHeartbeat(token) })
}

func (m *Manager) onHeartbeat(token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token != m.hbToken || m.hbTimer == nil {
		return
	}
	m.hbTimer = nil
	if m.heartbeatTick() {
		m.armHeartbeatLocked()
	}
}

// heartbeatTick runs one probe interval. Returns false once probing should stop.
// Must be called with m.mu held.
func (m *Manager) heartbeatTick() bool {
	if !m.state.Open() {
		return false
	}

	before := m.hb.Misses()
	action := m.hb.Tick(m.now())
	if misses := m.hb.Misses(); misses > before {
		m.logger.Warn("heartbeat missed",
			"misses", misses,
			"last_pong", m.hb.LastProof(),
			"timeout", m.cfg.HeartbeatTimeout,
		)
		m.observer.HeartbeatMissed(misses)
	}

	if action == HeartbeatDead {
		m.logger.Warn("connection stale, forcing reconnect")
		m.handle(EventReconnectForced, ErrStaleConnection)
		return false
	}

	if err := m.writeLocked([]byte(protocol.Ping)); err != nil {
		m.logger.Debug("failed to send ping", "error", err)
	}
	return true
}

// -----------------------------------------------------------------------------
// Helpers (all require m.mu held)
// -----------------------------------------------------------------------------

func (m *Manager) isOpenLocked() bool {
	return m.sock != nil && m.state.Open()
}

func (m *Manager) writeLocked(data []byte) error {
	if m.sock == nil {
		return ErrNotConnected
	}
	if err := m.sock.Send(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	m.framesSent++
	m.observer.FrameSent()
	return nil
}

func (m *Manager) enqueueLocked(item QueuedItem) {
	evicted := m.queue.Push(item)
	if evicted {
		m.logger.Warn("outbound queue full, dropped oldest item",
			"capacity", m.cfg.QueueCapacity,
			"evicted_total", m.queue.Evicted(),
		)
	}
	m.observer.Queued(evicted)
}

func (m *Manager) withdrawLocked(id uint64) {
	if _, ok := m.announcements[id]; !ok {
		return
	}
	delete(m.announcements, id)
	for i, v := range m.annOrder {
		if v == id {
			m.annOrder = append(m.annOrder[:i:i], m.annOrder[i+1:]...)
			break
		}
	}
	m.queue.Remove(id)
}

func (m *Manager) settleWaiters(err error) {
	for _, w := range m.waiters {
		w <- err
	}
	m.waiters = nil
}

func (m *Manager) removeWaiter(ch chan error) {
	for i, w := range m.waiters {
		if w == ch {
			m.waiters = append(m.waiters[:i:i], m.waiters[i+1:]...)
			return
		}
	}
}

func (m *Manager) answerProbes() {
	for _, p := range m.probes {
		select {
		case p <- true:
		default:
		}
	}
	m.probes = nil
}

func (m *Manager) failProbes() {
	for _, p := range m.probes {
		select {
		case p <- false:
		default:
		}
	}
	m.probes = nil
}

func (m *Manager) removeProbe(ch chan bool) {
	for i, p := range m.probes {
		if p == ch {
			m.probes = append(m.probes[:i:i], m.probes[i+1:]...)
			return
		}
	}
}

// notifyObservers runs on the debouncer's goroutine, outside m.mu.
func (m *Manager) notifyObservers(s State) {
	m.obsMu.Lock()
	observers := m.observers
	m.obsMu.Unlock()

	for _, o := range observers {
		o.fn(s)
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMissingType):
		return "missing_type"
	case errors.Is(err, protocol.ErrMalformedFrame):
		return "malformed"
	default:
		return "other"
	}
}
