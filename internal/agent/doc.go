// Package agent drives the device session: connect, register, operate, and
// start over after any failure.
//
// One Run cycle:
//
//  1. read the connection settings and fetch credentials
//  2. connect (retries internally until the broker answers)
//  3. wait for the connected flag
//  4. register: announce identity (acknowledged), build the capability
//     registry, announce operations (114), availability (117) and hardware
//     (110), subscribe to s/e, s/ds and one s/dc/<template> per template,
//     start the credential refresher in mutual-TLS mode
//  5. operate: sample sensors every main-loop interval
//
// Any error before step 5 disconnects the session and the cycle restarts
// after a fixed delay. There is no retry limit; only Stop or context
// cancellation ends Run.
package agent
