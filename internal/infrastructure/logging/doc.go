// Package logging provides structured logging for the edge agent.
//
// It wraps log/slog so every package logs through the same handler with
// the same default fields.
//
// # Features
//
//   - JSON output for production, text output for development
//   - Default fields (service, version, device) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - A discard logger for tests and library defaults
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	sessionLog := logger.Component("session")
//	sessionLog.Info("connected", "host", host)
//
// # Security
//
// Never log tenant passwords, device tokens or private key material.
// Credentials are logged by tenant and username only.
package logging
