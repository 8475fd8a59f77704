package connection

// State represents the connection lifecycle state.
type State uint8

const (
	// StateIdle indicates the connection has not been started.
	StateIdle State = iota

	// StateConnecting indicates a transport attempt is in progress.
	StateConnecting

	// StateAuthenticating indicates the handshake is in progress.
	StateAuthenticating

	// StateReady indicates an authenticated, pumping connection.
	StateReady

	// StateDegraded indicates the transport failed while Ready and the
	// reconnection policy has not yet decided.
	StateDegraded

	// StateReconnecting indicates a backoff delay is running before the
	// next transport attempt.
	StateReconnecting

	// StateClosed is terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateReady:
		return "READY"
	case StateDegraded:
		return "DEGRADED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state permits no further transitions.
func (s State) Terminal() bool {
	return s == StateClosed
}

// Role distinguishes the dialing side from the accepting side.
type Role uint8

const (
	// RoleInitiator dialed the connection and drives reconnection.
	RoleInitiator Role = iota

	// RoleResponder accepted the connection; on transport failure it
	// closes and waits for the initiator to dial again.
	RoleResponder
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "INITIATOR"
	case RoleResponder:
		return "RESPONDER"
	default:
		return "UNKNOWN"
	}
}
