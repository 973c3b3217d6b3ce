// Package plugins holds the built-in capability handlers and the catalog
// that hands them to the registry.
//
// Handlers:
//   - configuration: reports editable settings (113) and applies
//     configuration updates (513)
//   - system: memory and CPU measurements, restart acknowledgement (510)
//   - command: runs shell commands (511); only when enabled in config
//
// Each handler answers an operation with 501 (executing) followed by 503
// (successful) or 502 (failed).
package plugins
