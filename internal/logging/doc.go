// Package logging provides structured logging for the printhost server.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used throughout the server, and owns the dedicated serial log
// channel whose verbosity is toggled at runtime by the serial.log setting.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (settings diffs, hook timings)
//   - Info: Normal operations (requests, saves, plugin registration)
//   - Warn: Non-fatal issues (coercion failures, hook timeouts)
//   - Error: Failures that abort an operation (persistence errors)
//
// # Structured Logging
//
// All log functions use structured fields:
//
//	logging.Info("Settings saved",
//	    zap.String("path", "/home/pi/.config/printhost/config.yaml"),
//	    zap.Bool("changed", true),
//	)
//
// Components that want their own name in the output take a child logger:
//
//	log := logging.Named("plugin")
//
// # Serial Channel
//
// The serial channel is a second logger writing to its own file. It starts
// suppressed and is switched on and off with SetSerialLogging:
//
//	if err := logging.InitializeSerial(filepath.Join(logsDir, "serial.log")); err != nil {
//	    return err
//	}
//	logging.SetSerialLogging(true)
//	logging.Serial().Debug("Send: M105")
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When the level is empty the PRINTHOST_LOG_LEVEL environment variable is
// consulted. When both are empty logging is silent.
//
// # Output Format
//
// Logs are written to stdout in console format. Level names are colored only
// when stdout is a terminal.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
