package mqtt

import (
	"errors"
	"fmt"
)

// Sentinel errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails at the
	// transport level (dial, TLS handshake, timeout). Safe to retry.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionRefused is returned when the broker answers CONNECT with a
	// non-zero return code. Inspect *RefusedError for the code.
	ErrConnectionRefused = errors.New("mqtt: connection refused by broker")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTLSConfig is returned when certificate material cannot be loaded.
	ErrTLSConfig = errors.New("mqtt: invalid TLS configuration")
)

// RefusedError carries the CONNACK return code of a refused connection.
type RefusedError struct {
	Code byte
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("%s: code %d (%s)", ErrConnectionRefused, e.Code, refusalReason(e.Code))
}

// Is reports whether target is ErrConnectionRefused.
func (e *RefusedError) Is(target error) bool {
	return target == ErrConnectionRefused
}

// refusalReason maps MQTT 3.1.1 CONNACK codes to text.
func refusalReason(code byte) string {
	switch code {
	case 1:
		return "unacceptable protocol version"
	case 2:
		return "identifier rejected"
	case 3:
		return "server unavailable"
	case 4:
		return "bad username or password"
	case 5:
		return "not authorised"
	default:
		return "unknown"
	}
}
