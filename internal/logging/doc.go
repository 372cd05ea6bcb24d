// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stderr when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// Stdout is never used: it is inherited by the supervised children.
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"supervisor": "debug",  // Per-module overrides
//			"reactor":    "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Process started", "slot", 0, "pid", 4242)
//
// Levels can be changed later without recreating loggers:
//
//	logging.SetLevels(logging.Config{Level: "debug"})
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t spawn                 # All supervisor logs
//	journalctl -t spawn -f              # Follow live
//	journalctl -t spawn -p warning      # Failures and above
//	journalctl -t spawn MODULE=supervisor SLOT=2
//
// # Configuration
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	supervisor = "debug"
//	reactor = "warn"
package logging
