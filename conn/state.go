package conn

import "context"

// State is a connection state machine state. Run and Error are terminal
// for the default polling driver: once either is reached the driver stops
// advancing the machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateTLSHandshake
	StateBinding
	StateRun
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateTLSHandshake:
		return "tls_handshake"
	case StateBinding:
		return "binding"
	case StateRun:
		return "run"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the default driver should stop ticking the
// machine in this state.
func (s State) Terminal() bool {
	return s == StateRun || s == StateError
}

// StateMachine advances a connection toward a usable state, one step per
// call. Advance returns the state entered and the error that caused a
// transition to StateError, so drivers can inspect failures instead of
// polling blindly.
type StateMachine interface {
	Advance(ctx context.Context) (State, error)
	State() State
}
