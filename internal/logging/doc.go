// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// Every chain also feeds an in-memory flight recorder holding the most
// recent entries. The failure policy dumps the recorder to a crash file
// before rebooting, so the lead-up to a fatal condition survives the
// reboot even when the journal does not.
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
//			"process":    "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("mymodule")
//	logger.Info("Starting up", "port", 8080)
//	logger.Debug("Details", "config", cfg)
//	logger.Warn("Something unusual", "error", err)
//	logger.Error("Failed", "error", err)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("process").With("id", id)
//	logger.Info("Process started")  // Includes id in all logs
//
// # Log Levels
//
//	debug - Verbose debugging information
//	info  - General operational messages
//	warn  - Warning conditions
//	error - Error conditions
//
// # Output Destinations
//
// The system automatically detects available outputs:
//
//	Journal available + stdout available → fan-out to both
//	Journal available only              → JournalHandler
//	Stdout available only               → TextHandler or JSONHandler
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t nodewarden              # All nodewarden logs
//	journalctl -t nodewarden -f           # Follow live
//	journalctl -t nodewarden --since "5m" # Last 5 minutes
//	journalctl -t nodewarden -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t nodewarden MODULE=supervisor
//	journalctl -t nodewarden PROCESS_ID=player
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only, and both can be
// changed at runtime through [ApplyLevels].
//
// Example TOML configuration (level and format are reserved keys, any
// other key names a module):
//
//	[logging]
//	level = "info"
//	format = "text"
//	supervisor = "debug"
//	process = "warn"
//	apmode = "error"
package logging
