// Package logging provides structured logging for wifiprov.
//
// This package wraps a global zap logger with convenience functions for the
// events the provisioning tools care about: device HTTP exchanges, poll
// attempts, workflow transitions and bridge WebSocket traffic.
//
// # Log Levels
//
//   - Debug: Device request/response pairs, individual poll attempts, raw bodies
//   - Info: Workflow transitions, bridge connections
//   - Warn: Transport failures while polling, dropped listener events
//   - Error: Startup failures
//
// # Configuration
//
// CLI commands stay silent unless WIFIPROV_LOG_LEVEL is set:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// The bridge server may request JSON output:
//
//	logging.InitializeWithFormat("info", "json")
//
// # Credentials
//
// Passwords are never passed to this package. WebSocket messages are logged
// by size and kind only because connect commands carry the password.
package logging
