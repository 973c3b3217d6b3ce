// Package maintenance runs the two periodic background tasks that keep a
// device session healthy: the pending-operation poller and the credential
// refresher used in mutual-TLS mode.
package maintenance
