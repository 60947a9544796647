package connection

// State represents the connection lifecycle state. Exactly one state is
// active at a time and transitions are driven only by the Manager.
type State uint8

const (
	// StateDisconnected is the initial state and the result of an
	// explicit disconnect.
	StateDisconnected State = iota
	// StateConnecting means a dial (or bounded auth retry) is in flight.
	StateConnecting
	// StateConnected means the transport handshake completed.
	StateConnected
	// StateReconnecting means the transport dropped and is redialing on
	// its own.
	StateReconnecting
	// StateError means connection attempts exhausted their retries. Only
	// an explicit Connect call exits this state.
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
