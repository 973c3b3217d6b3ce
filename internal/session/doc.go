// Package session owns the device's broker connection and its recovery
// policy.
//
// A Session lives for the whole process. Each Connect builds a fresh
// transport from the current connection settings and credentials and
// retries transport failures after a fixed delay without limit. The two
// fault paths are deliberately different:
//
//   - a dropped connection is re-established by the transport library on
//     the same transport; subscriptions are restored and the registry is kept
//   - a refused handshake (non-zero CONNACK) disconnects and surfaces
//     ErrConnectRefused so the caller restarts its whole run sequence
//
// State machine:
//
//	Disconnected -> Connecting -> Connected -> Registering -> Operating
//	Connected/Registering/Operating -> Connecting   (connection lost)
//	* -> Stopped                                    (terminal)
package session
