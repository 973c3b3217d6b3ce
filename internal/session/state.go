package session

// State is the session's position in its lifecycle.
type State int

// Session states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateRegistering
	StateOperating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRegistering:
		return "registering"
	case StateOperating:
		return "operating"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// live reports whether the state has an established connection.
func (s State) live() bool {
	return s == StateConnected || s == StateRegistering || s == StateOperating
}
