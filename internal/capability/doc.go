// Package capability defines the device capability handler roles and builds
// the registry that the message router and the orchestrator work from.
//
// # Roles
//
//   - Sensor: produces measurements on every steady-state cycle
//   - Listener: declares operations and templates, handles inbound messages
//   - Initializer: contributes messages published once during registration
//
// One handler value may implement several roles. Factories carry a stable ID
// and Build constructs each ID at most once per build, so a handler listed
// as both Listener and Initializer is one shared instance.
//
// # Snapshots
//
// Build returns an immutable Snapshot. Each full registration builds a new
// one; nothing is mutated after Build returns, so readers need no locks.
package capability
