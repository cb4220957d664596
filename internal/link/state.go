package link

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ListenerState is the receive-loop task handle state.
type ListenerState int32

const (
	ListenerNotStarted ListenerState = iota
	ListenerRunning
	ListenerStopped
)

func (s ListenerState) String() string {
	switch s {
	case ListenerNotStarted:
		return "not_started"
	case ListenerRunning:
		return "running"
	case ListenerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
