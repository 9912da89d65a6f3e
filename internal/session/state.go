package session

import "time"

// AuthState is the state of the session state machine.
type AuthState int

const (
	// StateUninitialized means no token is held.
	StateUninitialized AuthState = iota

	// StateValid means the token has more than the refresh margin left.
	StateValid

	// StateNearExpiry means the token will be refreshed on next use.
	StateNearExpiry

	// StateRefreshing means a refresh grant is in flight.
	StateRefreshing

	// StateReauthenticating means a device authorization grant is in flight.
	StateReauthenticating

	// StateChallengeExpired means the last device challenge expired before
	// it was approved. A new bootstrap is needed.
	StateChallengeExpired
)

// String returns the string representation of the state.
func (s AuthState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValid:
		return "valid"
	case StateNearExpiry:
		return "near_expiry"
	case StateRefreshing:
		return "refreshing"
	case StateReauthenticating:
		return "reauthenticating"
	case StateChallengeExpired:
		return "challenge_expired"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the session.
type Status struct {
	State           AuthState
	IssuedAt        time.Time
	ExpiresAt       time.Time
	HasRefreshToken bool
}
