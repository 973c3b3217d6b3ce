package dispatch

import "errors"

var (
	// ErrHandlerPanic wraps a panic recovered from a listener.
	ErrHandlerPanic = errors.New("dispatch: listener panicked")

	// ErrClosed is returned by Route after Close.
	ErrClosed = errors.New("dispatch: router closed")
)
