package agent

import "errors"

var (
	// ErrInvalidOptions is returned by New when a required collaborator is missing.
	ErrInvalidOptions = errors.New("agent: invalid options")

	// ErrConnectionLost is returned when the session drops before registration.
	ErrConnectionLost = errors.New("agent: connection lost before registration")
)
