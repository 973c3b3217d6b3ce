// Package device resolves the identity the agent announces for this device.
//
// The identity is computed once at startup and stays fixed for the life of
// the process: every reconnect and every full restart of the run sequence
// announces the same serial, name and type.
package device
