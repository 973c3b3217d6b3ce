package session

import "errors"

var (
	// ErrConnectRefused is returned when the broker refuses the handshake.
	// The caller must restart its run sequence from scratch.
	ErrConnectRefused = errors.New("session: connection refused")

	// ErrStopped is returned by operations on a stopped session.
	ErrStopped = errors.New("session: stopped")
)
