// Package credentials supplies the tenant credentials used for broker
// authentication.
//
// Credentials are fetched fresh for every connection attempt, so a rotated
// password takes effect on the next reconnect without restarting the agent.
// Two sources exist: the configuration file (ConfigSource) and the SQLite
// store (Store), which also records rotations.
//
// When mutual TLS is active both sources return nil: the client certificate
// is the only credential.
package credentials
