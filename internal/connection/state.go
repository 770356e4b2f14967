package connection

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Unstable
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Unstable:
		return "unstable"
	default:
		return "unknown"
	}
}

// Open reports whether the socket is usable in this state.
func (s State) Open() bool {
	return s == Connected || s == Unstable
}

// Event is an input to the state machine.
type Event int

const (
	EventConnectRequested Event = iota
	EventOpened
	EventOpenFailed
	EventClosed
	EventProbeFailed
	EventProbeSucceeded
	EventReconnectForced
	EventDisconnectRequested
	EventReconnectTimerFired
)

func (e Event) String() string {
	switch e {
	case EventConnectRequested:
		return "connect_requested"
	case EventOpened:
		return "opened"
	case EventOpenFailed:
		return "open_failed"
	case EventClosed:
		return "closed"
	case EventProbeFailed:
		return "probe_failed"
	case EventProbeSucceeded:
		return "probe_succeeded"
	case EventReconnectForced:
		return "reconnect_forced"
	case EventDisconnectRequested:
		return "disconnect_requested"
	case EventReconnectTimerFired:
		return "reconnect_timer_fired"
	default:
		return "unknown"
	}
}

// Effect is a side effect the Manager performs after a transition.
type Effect int

const (
	EffectDial Effect = iota
	EffectStartConnectTimer
	EffectStopConnectTimer
	EffectCloseSocket
	EffectStartHeartbeat
	EffectStopHeartbeat
	EffectRequestHistory
	EffectFlushQueue
	EffectReplaySubscriptions
	EffectResetAttempts
	EffectScheduleReconnect
	EffectCancelReconnect
	EffectClearQueue
	EffectResolveConnect
	EffectRejectConnect
)

var (
	dialEffects = []Effect{EffectDial, EffectStartConnectTimer}

	openedEffects = []Effect{
		EffectStopConnectTimer,
		EffectResetAttempts,
		EffectStartHeartbeat,
		EffectRequestHistory,
		EffectFlushQueue,
		EffectReplaySubscriptions,
		EffectResolveConnect,
	}

	connectFailedEffects = []Effect{
		EffectStopConnectTimer,
		EffectCloseSocket,
		EffectRejectConnect,
		EffectScheduleReconnect,
	}

	lostEffects = []Effect{
		EffectStopHeartbeat,
		EffectCloseSocket,
		EffectScheduleReconnect,
	}

	// A failed probe starts the reconnect but keeps the socket for a late pong.
	degradedEffects = []Effect{EffectScheduleReconnect}

	recoveredEffects = []Effect{EffectCancelReconnect, EffectResetAttempts}

	redialEffects = []Effect{
		EffectStopHeartbeat,
		EffectCloseSocket,
		EffectDial,
		EffectStartConnectTimer,
	}

	disconnectEffects = []Effect{
		EffectCancelReconnect,
		EffectStopConnectTimer,
		EffectStopHeartbeat,
		EffectCloseSocket,
		EffectClearQueue,
		EffectRejectConnect,
		EffectResetAttempts,
	}
)

// Transition returns the next state and the effects to run for event e in
// state s. Pairs not listed leave the state unchanged with no effects.
// The returned slice must not be modified.
func Transition(s State, e Event) (State, []Effect) {
	if e == EventDisconnectRequested {
		return Disconnected, disconnectEffects
	}

	switch s {
	case Disconnected:
		switch e {
		case EventConnectRequested, EventReconnectTimerFired:
			return Connecting, dialEffects
		case EventReconnectForced:
			return Disconnected, []Effect{EffectScheduleReconnect}
		}

	case Connecting:
		switch e {
		case EventOpened:
			return Connected, openedEffects
		case EventOpenFailed, EventClosed, EventReconnectForced:
			return Disconnected, connectFailedEffects
		}

	case Connected:
		switch e {
		case EventConnectRequested:
			return Connected, []Effect{EffectResolveConnect}
		case EventProbeFailed:
			return Unstable, degradedEffects
		case EventClosed, EventReconnectForced:
			return Disconnected, lostEffects
		}

	case Unstable:
		switch e {
		case EventConnectRequested:
			return Unstable, []Effect{EffectResolveConnect}
		case EventProbeSucceeded:
			return Connected, recoveredEffects
		case EventReconnectTimerFired:
			return Connecting, redialEffects
		case EventProbeFailed, EventClosed, EventReconnectForced:
			return Disconnected, lostEffects
		}
	}

	return s, nil
}
